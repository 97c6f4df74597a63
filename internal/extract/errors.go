package extract

import "errors"

// Failure kinds, matchable with errors.Is. Everything Extract returns
// wraps exactly one of these.
var (
	// ErrInvalidArchive means the file could not be opened or parsed as a zip.
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrPathTraversal means an entry resolved outside the destination
	// directory. The wrapping message carries the offending entry name
	// as recorded in the archive.
	ErrPathTraversal = errors.New("entry path escapes destination")

	// ErrIO covers unrecoverable read/write failures after the archive
	// opened, including the decompression size limits.
	ErrIO = errors.New("extraction i/o failure")
)
