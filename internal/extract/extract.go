// Package extract safely unpacks an uploaded zip archive into a
// destination directory.
//
// Every entry path is validated against the destination before any
// filesystem mutation for that entry (zip-slip containment). When all
// file entries share a single top-level path segment that segment is
// stripped, so archives exported as project/... land at the destination
// root. Extraction is a single fail-fast pass: entries written before a
// violation is detected remain on disk, nothing is rolled back.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/sitedrop/internal/log"
	"github.com/keithlinneman/sitedrop/internal/pathutil"
)

const (
	// defaultMaxFileBytes caps a single decompressed file
	defaultMaxFileBytes int64 = 100 * 1024 * 1024 // 100MB

	// defaultMaxTotalBytes caps the total decompressed output
	defaultMaxTotalBytes int64 = 1 * 1024 * 1024 * 1024 // 1GB
)

type Options struct {
	// Overwrite replaces existing files; when false an entry whose
	// target already exists is silently skipped.
	Overwrite bool

	// KeepRoot disables common-root stripping.
	KeepRoot bool

	// Decompression-bomb guards. Zero means the defaults above.
	MaxFileBytes  int64
	MaxTotalBytes int64
}

// Extract unpacks the zip at archivePath into destDir, which must
// already exist. It has no internal concurrency; concurrent calls
// against the same destination are the caller's race to coordinate.
func Extract(ctx context.Context, archivePath, destDir string, opts Options) error {
	L := log.FromContext(ctx)

	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxFileBytes
	}
	if opts.MaxTotalBytes <= 0 {
		opts.MaxTotalBytes = defaultMaxTotalBytes
	}

	dest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolve destination %q: %w: %w", destDir, ErrIO, err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer zr.Close()

	var root string
	if !opts.KeepRoot {
		root = commonRoot(zr.File)
	}

	var total int64
	for _, f := range zr.File {
		name := f.Name
		if root != "" && strings.HasPrefix(name, root) {
			name = name[len(root):]
		}
		// stripping reduced the root directory entry itself to nothing
		if name == "" {
			continue
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		if strings.HasPrefix(name, "/") || !pathutil.Within(dest, target) {
			return fmt.Errorf("entry %q: %w", f.Name, ErrPathTraversal)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory for entry %q: %w: %w", f.Name, ErrIO, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parents for entry %q: %w: %w", f.Name, ErrIO, err)
		}

		if !opts.Overwrite {
			if _, err := os.Lstat(target); err == nil {
				L.Debug(ctx, "skipping existing file", "entry", f.Name)
				continue
			}
		}

		n, err := writeEntry(target, f, opts.MaxFileBytes)
		if err != nil {
			return err
		}
		total += n
		if total > opts.MaxTotalBytes {
			return fmt.Errorf("total extracted size exceeds %d bytes: %w", opts.MaxTotalBytes, ErrIO)
		}

		// best effort: zip permission bits don't always survive other
		// platforms' archivers, and a chmod failure is not worth
		// failing the whole upload over
		if mode := f.Mode().Perm(); mode != 0 {
			if err := os.Chmod(target, mode); err != nil {
				L.Debug(ctx, "chmod failed", "entry", f.Name, "mode", mode, "error", err)
			}
		}
	}

	return nil
}

// writeEntry stream-copies one file entry to target, truncating any
// prior content, and returns the number of bytes written.
func writeEntry(target string, f *zip.File, maxBytes int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open entry %q: %w: %w", f.Name, ErrIO, err)
	}
	defer rc.Close()

	w, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file for entry %q: %w: %w", f.Name, ErrIO, err)
	}

	n, err := io.Copy(w, io.LimitReader(rc, maxBytes+1))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write entry %q: %w: %w", f.Name, ErrIO, err)
	}
	if n > maxBytes {
		return n, fmt.Errorf("entry %q exceeds %d bytes: %w", f.Name, maxBytes, ErrIO)
	}
	return n, nil
}

// commonRoot returns the shared first path segment (plus separator) of
// all file entries, or "" when there isn't exactly one. Directory
// entries are ignored on purpose: an archive with a lone top-level
// directory entry but files under differing top segments has no common
// root.
func commonRoot(files []*zip.File) string {
	root, found := "", false
	for _, f := range files {
		name := f.Name
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		seg, _, _ := strings.Cut(name, "/")
		if !found {
			root, found = seg, true
		} else if seg != root {
			return ""
		}
	}
	if !found || root == "" {
		return ""
	}
	return root + "/"
}
