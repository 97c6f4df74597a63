package pathutil

import (
	"path/filepath"
	"strings"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Within reports whether target lies inside dir (or is dir itself),
// comparing cleaned paths component-wise. A raw string prefix check
// would accept siblings like /site-evil for dir /site; requiring the
// separator after the directory path avoids that.
func Within(dir, target string) bool {
	dir = filepath.Clean(dir)
	target = filepath.Clean(target)
	if target == dir {
		return true
	}
	// the root directory already ends in a separator after Clean
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(target, dir)
	}
	return strings.HasPrefix(target, dir+string(filepath.Separator))
}
