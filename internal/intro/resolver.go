// Package intro resolves which intro, if any, plays for a user joining a
// voice channel.
package intro

import (
	"fmt"

	"memejoin/internal/storage"
)

// Store is the binding lookup the resolver needs.
type Store interface {
	UserChannelIntros(guildID, username, channelID string) ([]storage.Intro, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the intro bound to (user, guild, channel), or nil when none
// is configured. Most users have no intro, so a miss is a normal outcome, not
// an error. When duplicate bindings exist for the tuple, the intro with the
// lowest id wins so resolution stays deterministic.
func (r *Resolver) Resolve(username, guildID, channelID string) (*storage.Intro, error) {
	intros, err := r.store.UserChannelIntros(guildID, username, channelID)
	if err != nil {
		return nil, fmt.Errorf("binding lookup failed: %w", err)
	}
	if len(intros) == 0 {
		return nil, nil
	}

	best := intros[0]
	for _, candidate := range intros[1:] {
		if candidate.ID < best.ID {
			best = candidate
		}
	}
	return &best, nil
}
