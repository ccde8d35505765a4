package player

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager owns one session per active guild. Sessions are created lazily on
// the first join event and run independently; no cross-guild lock is held
// while a session works.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      Config
	deps     Deps

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(cfg Config, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch routes a join event to its guild's session, creating the session
// on first use. Fire-and-forget: never blocks the caller.
func (m *Manager) Dispatch(ev JoinEvent) {
	m.session(ev.GuildID).Enqueue(ev)
}

func (m *Manager) session(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		s = newSession(m.ctx, guildID, m.cfg, m.deps)
		m.sessions[guildID] = s
	}
	return s
}

// RemoveGuild cancels and forgets a guild's session, e.g. when the bot is
// removed from the guild. Pending events are discarded.
func (m *Manager) RemoveGuild(guildID string) {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.deps.Gate.Forget(guildID)
		log.WithField("guild", guildID).Info("guild session removed")
	}
}

// Shutdown cancels all in-flight playbacks and waits for every session to
// disconnect.
func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		<-s.done
	}
}

// States reports each active guild's session state, for the status surface.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.sessions))
	for guildID, s := range m.sessions {
		out[guildID] = s.State().String()
	}
	return out
}
