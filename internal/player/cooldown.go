package player

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DelayFunc returns a guild's configured minimum interval between playbacks.
type DelayFunc func(guildID string) (time.Duration, error)

// CooldownGate decides whether a guild is allowed to play right now, based on
// the guild's configured delay and the last successful playback. The first
// playback in a guild is always allowed.
type CooldownGate struct {
	mu    sync.Mutex
	last  map[string]time.Time
	delay DelayFunc
}

func NewCooldownGate(delay DelayFunc) *CooldownGate {
	return &CooldownGate{
		last:  make(map[string]time.Time),
		delay: delay,
	}
}

// Allow reports whether a playback may start in the guild at the given time.
// The delay is looked up on every call so configuration changes apply to the
// next dequeued event, not the next restart.
func (g *CooldownGate) Allow(guildID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.last[guildID]
	if !ok {
		return true
	}

	delay, err := g.delay(guildID)
	if err != nil {
		log.WithFields(log.Fields{
			"guild": guildID,
			"error": err,
		}).Warn("failed to look up sound delay, allowing playback")
		return true
	}

	return now.Sub(last) >= delay
}

// MarkPlayed records a successful playback. Failed playbacks are not
// recorded, so a partial failure does not extend the silence.
func (g *CooldownGate) MarkPlayed(guildID string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[guildID] = at
}

// Forget drops a guild's playback history, e.g. when the bot leaves.
func (g *CooldownGate) Forget(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, guildID)
}
