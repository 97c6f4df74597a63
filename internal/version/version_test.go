package version_test

import (
	"testing"

	v "github.com/keithlinneman/sitedrop/internal/version"
)

func TestVCSDirtyTriState(t *testing.T) {
	v.VCSDirty = nil
	info := v.Get()
	if info.VCSDirty != nil {
		t.Fatalf("VCSDirty = %v, want nil", info.VCSDirty)
	}

	trueVal := true
	v.VCSDirty = &trueVal
	info = v.Get()
	if info.VCSDirty == nil || *info.VCSDirty != true {
		t.Fatalf("VCSDirty = %v, want true", info.VCSDirty)
	}
}

func TestShortCommit(t *testing.T) {
	i := v.Info{Commit: "0123456789abcdef0123"}
	if got := i.ShortCommit(); got != "0123456789ab" {
		t.Fatalf("ShortCommit = %q", got)
	}
	i.Commit = "abc"
	if got := i.ShortCommit(); got != "abc" {
		t.Fatalf("ShortCommit = %q", got)
	}
}
