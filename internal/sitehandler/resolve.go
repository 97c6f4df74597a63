package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/sitedrop/internal/pathutil"
)

// resolvePath maps a URL path to a file within the site FS.
//
// Returns:
// - file: relative file path within FS (no leading slash)
// - redirectTo: if non-empty, caller should redirect to this URL path
// - ok: whether the mapping is valid/found
//
// Containment is enforced here independently of the extractor: NUL bytes,
// backslashes and dot segments are rejected before any FS lookup.
func resolvePath(urlPath string, fsys fs.FS, indexFile string) (file string, redirectTo string, ok bool) {
	p := urlPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") || strings.Contains(p, "..") {
		return "", "", false
	}
	if pathutil.HasDotSegments(p) {
		return "", "", false
	}

	trailingSlash := strings.HasSuffix(p, "/")

	clean := path.Clean(p)
	if trailingSlash && clean != "/" {
		clean += "/"
	}

	// root -> index file
	if clean == "/" {
		if existsFile(fsys, indexFile) {
			return indexFile, "", true
		}
		return "", "", false
	}

	// directory -> <dir>/index file
	if strings.HasSuffix(clean, "/") {
		name := strings.TrimPrefix(clean, "/") + indexFile
		if existsFile(fsys, name) {
			return name, "", true
		}
		return "", "", false
	}

	// exact file match
	name := strings.TrimPrefix(clean, "/")
	if existsFile(fsys, name) {
		return name, "", true
	}

	// pretty URL without slash - if <path>/<index> exists, redirect to the
	// canonical slash URL
	if existsFile(fsys, name+"/"+indexFile) {
		return "", clean + "/", true
	}

	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
