package player

import (
	"errors"
	"testing"
	"time"
)

func fixedDelay(d time.Duration) DelayFunc {
	return func(string) (time.Duration, error) { return d, nil }
}

func TestCooldownFirstPlayAllowed(t *testing.T) {
	g := NewCooldownGate(fixedDelay(30 * time.Second))
	if !g.Allow("g1", time.Now()) {
		t.Error("first play must be allowed")
	}
}

func TestCooldownWindow(t *testing.T) {
	g := NewCooldownGate(fixedDelay(30 * time.Second))
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	g.MarkPlayed("g1", base)

	if g.Allow("g1", base.Add(20*time.Second)) {
		t.Error("play inside the delay window must be blocked")
	}
	if !g.Allow("g1", base.Add(30*time.Second)) {
		t.Error("play exactly at the delay boundary must be allowed")
	}
	if !g.Allow("g1", base.Add(31*time.Second)) {
		t.Error("play after the delay window must be allowed")
	}
}

func TestCooldownBlockedAttemptDoesNotExtendWindow(t *testing.T) {
	g := NewCooldownGate(fixedDelay(30 * time.Second))
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	g.MarkPlayed("g1", base)

	// A rejected attempt must not move the window; only MarkPlayed does.
	g.Allow("g1", base.Add(20*time.Second))
	if !g.Allow("g1", base.Add(31*time.Second)) {
		t.Error("window must be measured from the last completed play")
	}
}

func TestCooldownGuildsIndependent(t *testing.T) {
	g := NewCooldownGate(fixedDelay(30 * time.Second))
	base := time.Now()

	g.MarkPlayed("g1", base)
	if !g.Allow("g2", base) {
		t.Error("cooldown in one guild must not affect another")
	}
}

func TestCooldownDelayLookupErrorAllows(t *testing.T) {
	g := NewCooldownGate(func(string) (time.Duration, error) {
		return 0, errors.New("storage unavailable")
	})
	g.MarkPlayed("g1", time.Now())
	if !g.Allow("g1", time.Now()) {
		t.Error("delay lookup failure must not block playback")
	}
}

func TestCooldownForget(t *testing.T) {
	g := NewCooldownGate(fixedDelay(time.Hour))
	base := time.Now()

	g.MarkPlayed("g1", base)
	g.Forget("g1")
	if !g.Allow("g1", base.Add(time.Second)) {
		t.Error("forgotten guild must behave like a fresh one")
	}
}
