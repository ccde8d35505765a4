package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"memejoin/internal/audio"
	"memejoin/internal/storage"
)

type fakeSource struct {
	frames int
	sent   int
}

func (s *fakeSource) Next() ([]byte, error) {
	if s.sent >= s.frames {
		return nil, io.EOF
	}
	s.sent++
	return []byte{0xf8, 0xff, 0xfe}, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeOpener struct {
	frames int
	err    error
}

func (o *fakeOpener) Open(ctx context.Context, intro *storage.Intro) (audio.Source, error) {
	if o.err != nil {
		return nil, o.err
	}
	return &fakeSource{frames: o.frames}, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	intro *storage.Intro
	err   error
}

func (r *fakeResolver) Resolve(username, guildID, channelID string) (*storage.Intro, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intro, r.err
}

type fakeConn struct {
	mu        sync.Mutex
	channelID string
	frames    int
	closed    bool
}

func (c *fakeConn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *fakeConn) Speaking(bool) error { return nil }

func (c *fakeConn) SendFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeConnector struct {
	mu       sync.Mutex
	conn     *fakeConn
	failures int
	joins    int
}

func (c *fakeConnector) Join(guildID, channelID string) (VoiceConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("gateway unavailable")
	}
	c.conn.mu.Lock()
	c.conn.channelID = channelID
	c.conn.mu.Unlock()
	return c.conn, nil
}

func (c *fakeConnector) joinCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joins
}

func (c *fakeConnector) setFailures(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
}

type fakeCreds struct{ invalid bool }

func (c *fakeCreds) Valid() bool { return !c.invalid }

type harness struct {
	session   *Session
	connector *fakeConnector
	resolver  *fakeResolver
	results   chan error
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()

	h := &harness{results: make(chan error, 16)}

	if deps.Gate == nil {
		deps.Gate = NewCooldownGate(fixedDelay(0))
	}
	if deps.Resolver == nil {
		h.resolver = &fakeResolver{intro: &storage.Intro{ID: 1, Name: "hello", Volume: 1, Filename: "hello.mp3"}}
		deps.Resolver = h.resolver
	}
	if deps.Opener == nil {
		deps.Opener = &fakeOpener{frames: 3}
	}
	if deps.Connector == nil {
		h.connector = &fakeConnector{conn: &fakeConn{}}
		deps.Connector = h.connector
	}
	if deps.Creds == nil {
		deps.Creds = &fakeCreds{}
	}
	deps.OnResult = func(_ JoinEvent, err error) { h.results <- err }

	h.session = newSession(context.Background(), "g1", Config{QueueCap: 6, IdleTimeout: time.Hour}, deps)
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) waitResult(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.results:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event result")
		return nil
	}
}

func TestSessionPlaysIntro(t *testing.T) {
	h := newHarness(t, Deps{})

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); err != nil {
		t.Fatalf("expected completed playback, got %v", err)
	}
	if got := h.connector.conn.sentFrames(); got != 3 {
		t.Errorf("expected 3 frames sent, got %d", got)
	}
	if st := h.session.State(); st != StateConnected {
		t.Errorf("expected connected state after playback, got %s", st)
	}
}

func TestSessionCooldownDiscardsEvent(t *testing.T) {
	h := newHarness(t, Deps{Gate: NewCooldownGate(fixedDelay(time.Hour))})

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); err != nil {
		t.Fatalf("first play must complete, got %v", err)
	}

	h.session.Enqueue(ev("u2", "c1"))
	if err := h.waitResult(t); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}
	if got := h.connector.conn.sentFrames(); got != 3 {
		t.Errorf("discarded event must not play, got %d frames", got)
	}
}

func TestSessionNoBindingIsSilent(t *testing.T) {
	h := newHarness(t, Deps{Resolver: &fakeResolver{}})

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); !errors.Is(err, ErrNoIntro) {
		t.Fatalf("expected ErrNoIntro, got %v", err)
	}
	if h.connector.joinCount() != 0 {
		t.Error("no voice connection may be opened for an unbound user")
	}
}

func TestSessionInvalidCredentialFailsFast(t *testing.T) {
	h := newHarness(t, Deps{Creds: &fakeCreds{invalid: true}})

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); !errors.Is(err, ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}
	if h.connector.joinCount() != 0 {
		t.Error("invalid credential must prevent connection attempts")
	}
}

func TestSessionConnectFailureDoesNotPoisonNextEvent(t *testing.T) {
	gate := NewCooldownGate(fixedDelay(0))
	h := newHarness(t, Deps{Gate: gate})
	h.connector.setFailures(1)

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if st := h.session.State(); st != StateIdle {
		t.Errorf("failed connect must return session to idle, got %s", st)
	}

	h.session.Enqueue(ev("u2", "c1"))
	if err := h.waitResult(t); err != nil {
		t.Fatalf("next event must be handled independently, got %v", err)
	}
}

func TestSessionFailedPlaybackDoesNotMarkCooldown(t *testing.T) {
	gate := NewCooldownGate(fixedDelay(time.Hour))
	h := newHarness(t, Deps{Gate: gate})
	h.connector.setFailures(1)

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); err == nil {
		t.Fatal("expected connect failure")
	}

	// The failed attempt must not start the cooldown window.
	h.session.Enqueue(ev("u2", "c1"))
	if err := h.waitResult(t); err != nil {
		t.Fatalf("expected playback after failed attempt, got %v", err)
	}
}

func TestSessionFailedRejoinReleasesHeldConnection(t *testing.T) {
	h := newHarness(t, Deps{})

	h.session.Enqueue(ev("u1", "c1"))
	if err := h.waitResult(t); err != nil {
		t.Fatalf("first play must complete, got %v", err)
	}

	h.connector.setFailures(1)
	h.session.Enqueue(ev("u2", "c2"))
	if err := h.waitResult(t); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}

	if st := h.session.State(); st != StateIdle {
		t.Errorf("expected idle after failed rejoin, got %s", st)
	}
	if !h.connector.conn.isClosed() {
		t.Error("connection held from the previous playback must be disconnected")
	}
}

func TestSessionIdleTimeoutDisconnects(t *testing.T) {
	results := make(chan error, 4)
	connector := &fakeConnector{conn: &fakeConn{}}

	s := newSession(context.Background(), "g1",
		Config{QueueCap: 6, IdleTimeout: 50 * time.Millisecond},
		Deps{
			Gate:      NewCooldownGate(fixedDelay(0)),
			Resolver:  &fakeResolver{intro: &storage.Intro{ID: 1, Name: "hello", Volume: 1, Filename: "hello.mp3"}},
			Opener:    &fakeOpener{frames: 1},
			Connector: connector,
			Creds:     &fakeCreds{},
			OnResult:  func(_ JoinEvent, err error) { results <- err },
		},
	)
	defer s.Close()

	s.Enqueue(ev("u1", "c1"))
	select {
	case err := <-results:
		if err != nil {
			t.Fatalf("playback failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == StateIdle && connector.conn.isClosed() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected idle disconnect, state=%s closed=%v", s.State(), connector.conn.isClosed())
}

func TestSessionSequentialPlayback(t *testing.T) {
	h := newHarness(t, Deps{})

	for i := 0; i < 4; i++ {
		h.session.Enqueue(ev("u"+string(rune('a'+i)), "c1"))
	}
	for i := 0; i < 4; i++ {
		if err := h.waitResult(t); err != nil {
			t.Fatalf("playback %d failed: %v", i, err)
		}
	}
	if got := h.connector.conn.sentFrames(); got != 12 {
		t.Errorf("expected 12 frames from 4 sequential playbacks, got %d", got)
	}
}

func TestManagerDispatchIsolatesGuilds(t *testing.T) {
	results := make(chan error, 4)
	connector := &fakeConnector{conn: &fakeConn{}}

	m := NewManager(
		Config{QueueCap: 6, IdleTimeout: time.Hour},
		Deps{
			Gate:      NewCooldownGate(fixedDelay(0)),
			Resolver:  &fakeResolver{intro: &storage.Intro{ID: 1, Name: "hello", Volume: 1, Filename: "hello.mp3"}},
			Opener:    &fakeOpener{frames: 1},
			Connector: connector,
			Creds:     &fakeCreds{},
			OnResult:  func(_ JoinEvent, err error) { results <- err },
		},
	)
	defer m.Shutdown()

	m.Dispatch(JoinEvent{UserID: "u1", Username: "u1", GuildID: "g1", ChannelID: "c1", At: time.Now()})
	m.Dispatch(JoinEvent{UserID: "u2", Username: "u2", GuildID: "g2", ChannelID: "c2", At: time.Now()})

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("playback failed: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for playback results")
		}
	}

	states := m.States()
	if len(states) != 2 {
		t.Errorf("expected 2 active sessions, got %d", len(states))
	}
}

func TestManagerRemoveGuild(t *testing.T) {
	m := NewManager(
		Config{QueueCap: 6, IdleTimeout: time.Hour},
		Deps{
			Gate:      NewCooldownGate(fixedDelay(0)),
			Resolver:  &fakeResolver{},
			Opener:    &fakeOpener{},
			Connector: &fakeConnector{conn: &fakeConn{}},
			Creds:     &fakeCreds{},
		},
	)
	defer m.Shutdown()

	m.Dispatch(JoinEvent{UserID: "u1", Username: "u1", GuildID: "g1", ChannelID: "c1", At: time.Now()})
	m.RemoveGuild("g1")

	if len(m.States()) != 0 {
		t.Error("removed guild must not keep a session")
	}
}
