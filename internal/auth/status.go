// Package auth tracks credential health and renews expiring Discord tokens
// in the background. It never touches the playback pipeline directly; guild
// sessions only consult the bot-level gate before opening connections.
package auth

import "sync"

// Status is the bot-level credential gate. While invalid, guild sessions
// fail connection attempts fast instead of handing a dead token to the
// voice transport.
type Status struct {
	mu      sync.RWMutex
	invalid bool
}

func NewStatus() *Status {
	return &Status{}
}

// Valid reports whether the bot credential is currently usable.
func (s *Status) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.invalid
}

// MarkInvalid flags the bot credential as unusable until renewed.
func (s *Status) MarkInvalid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
}

// MarkValid clears the invalid flag after a successful renewal or probe.
func (s *Status) MarkValid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = false
}
