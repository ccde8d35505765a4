package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"memejoin/internal/audio"
	"memejoin/internal/storage"
)

// State is a guild session's position in the voice-connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Skip reasons and failures surfaced to the result observer. A skipped event
// is a normal outcome, not a pipeline fault.
var (
	ErrNoIntro           = errors.New("no intro bound for user and channel")
	ErrCooldownActive    = errors.New("guild cooldown active")
	ErrCredentialInvalid = errors.New("bot credential invalid")
	ErrConnectFailed     = errors.New("voice connect failed")
)

// VoiceConn is one live voice connection, exclusively owned by the session
// that opened it.
type VoiceConn interface {
	ChannelID() string
	Speaking(bool) error
	SendFrame(frame []byte) error
	Disconnect() error
}

// Connector joins voice channels. Joining a channel of a guild the connector
// is already connected to moves the existing connection.
type Connector interface {
	Join(guildID, channelID string) (VoiceConn, error)
}

// Resolver looks up the intro for a joining user, nil when none is bound.
type Resolver interface {
	Resolve(username, guildID, channelID string) (*storage.Intro, error)
}

// Opener turns an intro into a playable frame stream.
type Opener interface {
	Open(ctx context.Context, intro *storage.Intro) (audio.Source, error)
}

// CredentialGate reports whether the bot-level credential is usable.
// An invalid credential makes connection attempts fail fast.
type CredentialGate interface {
	Valid() bool
}

// Config tunes per-guild session behavior.
type Config struct {
	// QueueCap bounds pending events per guild; 0 means unbounded.
	QueueCap int
	// IdleTimeout is how long a connected session waits for another event
	// before leaving the channel.
	IdleTimeout time.Duration
}

// Deps are the collaborators a session drives. OnResult, when set, receives
// the outcome of every handled event: nil for a completed playback, a skip
// sentinel or a wrapped failure otherwise.
type Deps struct {
	Gate      *CooldownGate
	Resolver  Resolver
	Opener    Opener
	Connector Connector
	Creds     CredentialGate
	OnResult  func(JoinEvent, error)
}

// Session owns the voice-connection lifecycle for one guild. All connection
// access happens on the session's own goroutine; other goroutines only
// enqueue events. Guilds never block each other.
type Session struct {
	guildID string
	cfg     Config
	deps    Deps

	q      *queue
	notify chan struct{}
	state  atomic.Int32
	conn   VoiceConn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(parent context.Context, guildID string, cfg Config, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		guildID: guildID,
		cfg:     cfg,
		deps:    deps,
		q:       newQueue(cfg.QueueCap),
		notify:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue hands a join event to the session. Never blocks; events arriving
// during an active playback wait in the per-guild queue.
func (s *Session) Enqueue(ev JoinEvent) {
	if dropped := s.q.push(ev); dropped != nil {
		log.WithFields(log.Fields{
			"guild": s.guildID,
			"user":  dropped.UserID,
		}).Warn("queue cap exceeded, discarding oldest pending join")
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close cancels any in-flight playback, disconnects and stops the session
// goroutine.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Pending returns the number of queued join events.
func (s *Session) Pending() int {
	return s.q.len()
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) run() {
	defer close(s.done)
	defer s.disconnect()

	idle := time.NewTimer(time.Hour)
	if !idle.Stop() {
		<-idle.C
	}
	defer idle.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-s.notify:
			idle.Stop()
			for {
				ev, ok := s.q.pop()
				if !ok {
					break
				}
				s.handle(ev)
				if s.ctx.Err() != nil {
					return
				}
			}
			if s.State() == StateConnected && s.cfg.IdleTimeout > 0 {
				idle.Reset(s.cfg.IdleTimeout)
			}

		case <-idle.C:
			if s.State() == StateConnected {
				log.WithField("guild", s.guildID).Debug("idle timeout, leaving voice channel")
				s.disconnect()
			}
		}
	}
}

// handle runs one dequeued event through the gate, the resolver, the audio
// pipeline and the voice connection. Every exit path leaves the session in a
// valid state; no failure here may leak out of the guild.
func (s *Session) handle(ev JoinEvent) {
	logger := log.WithFields(log.Fields{
		"guild":   ev.GuildID,
		"user":    ev.Username,
		"channel": ev.ChannelID,
	})

	if !s.deps.Creds.Valid() {
		logger.Warn("dropping join event, bot credential invalid")
		s.report(ev, ErrCredentialInvalid)
		return
	}

	// Cooldown is checked at dequeue time, not enqueue time, so waiting in
	// the queue does not unfairly disqualify an event.
	if !s.deps.Gate.Allow(s.guildID, time.Now()) {
		logger.Debug("cooldown active, discarding join event")
		s.report(ev, ErrCooldownActive)
		return
	}

	intro, err := s.deps.Resolver.Resolve(ev.Username, ev.GuildID, ev.ChannelID)
	if err != nil {
		logger.WithError(err).Error("intro resolution failed")
		s.report(ev, fmt.Errorf("resolution failed: %w", err))
		return
	}
	if intro == nil {
		s.report(ev, ErrNoIntro)
		return
	}

	src, err := s.deps.Opener.Open(s.ctx, intro)
	if err != nil {
		logger.WithError(err).WithField("intro", intro.Name).Error("failed to open intro audio")
		s.report(ev, fmt.Errorf("audio open failed: %w", err))
		return
	}
	defer src.Close()

	if s.conn == nil {
		s.setState(StateConnecting)
	}
	conn, err := s.deps.Connector.Join(ev.GuildID, ev.ChannelID)
	if err != nil {
		// Drop any connection held from a previous playback; keeping it
		// would leave the bot parked in the channel with no idle timer.
		s.disconnect()
		logger.WithError(err).Error("failed to join voice channel")
		s.report(ev, fmt.Errorf("%w: %v", ErrConnectFailed, err))
		return
	}
	s.conn = conn

	logger.WithField("intro", intro.Name).Info("playing intro")
	s.setState(StatePlaying)
	streamErr := s.stream(src, conn)
	s.setState(StateConnected)

	if streamErr != nil {
		logger.WithError(streamErr).Error("playback aborted")
		s.report(ev, fmt.Errorf("playback failed: %w", streamErr))
		return
	}

	s.deps.Gate.MarkPlayed(s.guildID, time.Now())
	s.report(ev, nil)
}

func (s *Session) stream(src audio.Source, conn VoiceConn) error {
	if err := conn.Speaking(true); err != nil {
		log.WithField("guild", s.guildID).WithError(err).Warn("failed to set speaking")
	}
	defer func() {
		if err := conn.Speaking(false); err != nil {
			log.WithField("guild", s.guildID).WithError(err).Warn("failed to unset speaking")
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		frame, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := conn.SendFrame(frame); err != nil {
			return err
		}
	}
}

func (s *Session) disconnect() {
	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			log.WithField("guild", s.guildID).WithError(err).Error("failed to disconnect voice")
		}
		s.conn = nil
	}
	s.setState(StateIdle)
}

func (s *Session) report(ev JoinEvent, err error) {
	if s.deps.OnResult != nil {
		s.deps.OnResult(ev, err)
	}
}
