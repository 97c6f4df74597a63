package health

import (
	"context"
	"testing"

	"github.com/keithlinneman/sitedrop/internal/xerrors"
)

func TestFixed(t *testing.T) {
	if err := Fixed(true, "").Check(context.Background()); err != nil {
		t.Errorf("Fixed(true) = %v", err)
	}
	err := Fixed(false, "down for repairs").Check(context.Background())
	if err == nil || err.Error() != "down for repairs" {
		t.Errorf("Fixed(false) = %v", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Errorf("Fixed(false, empty reason) = %v", err)
	}
}

func TestAll(t *testing.T) {
	pass := Fixed(true, "")
	fail := Fixed(false, "nope")

	if err := All(pass, pass, nil).Check(context.Background()); err != nil {
		t.Errorf("All passing = %v", err)
	}
	if err := All(pass, fail).Check(context.Background()); err == nil {
		t.Error("All with one failure should fail")
	}
	if err := All().Check(context.Background()); err != nil {
		t.Errorf("All() = %v", err)
	}
}

func TestAllReturnsFirstError(t *testing.T) {
	first := CheckFunc(func(context.Context) error { return xerrors.New("first") })
	second := CheckFunc(func(context.Context) error { return xerrors.New("second") })

	err := All(first, second).Check(context.Background())
	if err == nil || err.Error() != "first" {
		t.Errorf("err = %v, want first", err)
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if err := p.Check(context.Background()); err != nil {
		t.Errorf("open gate = %v", err)
	}

	g.Set("draining for deploy")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining for deploy" {
		t.Errorf("closed gate = %v", err)
	}

	g.Set("")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Errorf("closed gate default reason = %v", err)
	}

	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Errorf("cleared gate = %v", err)
	}
}
