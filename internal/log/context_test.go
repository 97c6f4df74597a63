package log

import (
	"context"
	"testing"
)

func TestFromContextEmpty(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext should never return nil")
	}
	// must be safe to use
	l.Info(context.Background(), "into the void")
}

func TestWithContextRoundTrip(t *testing.T) {
	want := Nop().With("k", "v")
	ctx := WithContext(context.Background(), want)
	if got := FromContext(ctx); got != want {
		t.Fatalf("FromContext = %#v, want %#v", got, want)
	}
}

func TestFromContextWrongValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "not a logger")
	l := FromContext(ctx)
	if l == nil {
		t.Fatal("FromContext should fall back to nop")
	}
}
