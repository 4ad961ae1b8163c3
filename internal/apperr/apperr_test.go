package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := Conflict(CodeSlotTaken, "slot is taken")
	err := fmt.Errorf("create hold: %w", base)

	if KindOf(err) != KindConflict {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindConflict)
	}
	if CodeOf(err) != CodeSlotTaken {
		t.Fatalf("code = %q, want %q", CodeOf(err), CodeSlotTaken)
	}
	if !IsConflict(err) {
		t.Fatalf("expected IsConflict")
	}
}

func TestVersionConflict_IsConflict(t *testing.T) {
	err := VersionConflict("appointment")
	if !IsConflict(err) {
		t.Fatalf("version conflict must be reported as conflict")
	}
	if err.Code != CodeVersionConflict {
		t.Fatalf("code = %q", err.Code)
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(NotFound(CodeNotFound, "missing"), cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain error must have empty kind")
	}
}
