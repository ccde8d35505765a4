package auth

import "testing"

func TestStatusTransitions(t *testing.T) {
	s := NewStatus()
	if !s.Valid() {
		t.Error("fresh status must be valid")
	}

	s.MarkInvalid()
	if s.Valid() {
		t.Error("expected invalid after MarkInvalid")
	}

	s.MarkValid()
	if !s.Valid() {
		t.Error("expected valid after MarkValid")
	}
}
