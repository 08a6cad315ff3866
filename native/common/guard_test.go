package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	pauses := NewPauseSet("Crowdsale")
	if err := Guard(pauses, "crowdsale"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	pauses.Set("crowdsale", false)
	if err := Guard(pauses, "crowdsale"); err != nil {
		t.Fatalf("expected resumed module, got %v", err)
	}
	if err := Guard(nil, "crowdsale"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
