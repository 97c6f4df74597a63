package pathutil

import "testing"

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b/c", false},
		{"a/b", false},
		{"", false},
		{"/", false},
		{"..", true},
		{"/../a", true},
		{"a/../b", true},
		{"a/.", true},
		{"./a", true},
		{"/a/..hidden", false},
		{"/a/b..c", false},
		{"/.well-known/x", false},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.path); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		name   string
		dir    string
		target string
		want   bool
	}{
		{"direct child", "/site", "/site/index.html", true},
		{"nested child", "/site", "/site/css/a.css", true},
		{"dir itself", "/site", "/site", true},
		{"dir with trailing slash", "/site/", "/site/index.html", true},
		{"parent escape", "/site", "/site/../etc/passwd", false},
		{"absolute outside", "/site", "/etc/passwd", false},
		{"sibling with shared prefix", "/site", "/site-evil/x", false},
		{"uncleaned traversal to sibling", "/site", "/site/a/../../site-evil", false},
		{"traversal back inside", "/site", "/site/a/../b", true},
		{"root dir", "/", "/anything", true},
		{"root dir itself", "/", "/", true},
		{"root dir nested", "/", "/a/b/c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Within(tt.dir, tt.target); got != tt.want {
				t.Errorf("Within(%q, %q) = %v, want %v", tt.dir, tt.target, got, tt.want)
			}
		})
	}
}
