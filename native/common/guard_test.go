package common

import (
	"errors"
	"testing"
)

type pauseFlags map[string]bool

func (p pauseFlags) IsPaused(module string) bool { return p[module] }

func TestGuardNamesPausedModule(t *testing.T) {
	flags := pauseFlags{"vault": true}
	err := Guard(flags, "vault")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err.Error() != "vault: module paused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := Guard(flags, "borrow"); err != nil {
		t.Fatalf("unpaused module blocked: %v", err)
	}
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(flags, ""); err != nil {
		t.Fatalf("unnamed module must not block: %v", err)
	}
}
