// Package session runs one peer's side of the replication protocol. A
// Session owns the peer's copy of the match document, its role, and its
// attachment to the room channel. Everything — user actions, transport
// deliveries, presence changes, clock ticks — funnels into a single
// goroutine, so the document is never mutated re-entrantly and there is no
// ambient shared state: the Session value is the whole session context.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/duelsync/duelsync/internal/clock"
	"github.com/duelsync/duelsync/internal/game"
	"github.com/duelsync/duelsync/internal/relay"
	"github.com/duelsync/duelsync/internal/store"
)

// ErrNoHostFound is returned by Run when a guest joined a room where nobody
// claims host within the arm timeout.
var ErrNoHostFound = errors.New("no host found in room")

// ErrNotHost is returned for host-only actions attempted by a guest.
var ErrNotHost = errors.New("host-only action")

// ErrNotEnoughPlayers guards win/tie/start transitions that need both
// competitors connected.
var ErrNotEnoughPlayers = errors.New("need two connected players")

// ErrNotYourTurn rejects an end-turn by whoever does not hold the turn.
var ErrNotYourTurn = errors.New("not your turn")

// ErrNoDecidedRound rejects continuing to the next game before the current
// round has been decided.
var ErrNoDecidedRound = errors.New("no decided round to continue from")

// ErrSessionClosed is returned for actions on a finished session.
var ErrSessionClosed = errors.New("session closed")

// ErrConnectionLost is returned by Run when the relay connection drops
// while the session is still live.
var ErrConnectionLost = errors.New("relay connection lost")

// EndReason tells hooks why the session is over.
type EndReason string

const (
	ReasonHostEnded EndReason = "host-ended"
	ReasonNoHost    EndReason = "no-host"
	ReasonLeft      EndReason = "left"
)

// Hooks are the session's outward face: rendering, sounds and navigation
// hang off these instead of being wired into the protocol.
type Hooks struct {
	// OnState fires after every change to the local copy of the document.
	OnState func(game.State)
	// OnWinner fires exactly once per terminal transition, on the host.
	OnWinner func(game.State)
	// OnEnded fires when the session is over for good.
	OnEnded func(EndReason)
}

// Params configures a session.
type Params struct {
	RoomCode  string
	Name      string
	Host      bool
	Spectator bool

	// Settings seeds a fresh document when a host opens a new room.
	// Ignored when Resume carries a snapshot.
	Settings game.Settings
	// Resume is a previously committed document; a restarted host picks up
	// from it instead of waiting for anyone.
	Resume *game.State

	Transport relay.Transport
	DB        *store.DB // optional; nil disables local durability
	Clock     clockwork.Clock
	Hooks     Hooks

	NoHostTimeout time.Duration
	TickInterval  time.Duration
}

const defaultNoHostTimeout = 3 * time.Second

// Player seat colors, host first.
const (
	hostColor  = "#ef4444"
	guestColor = "#3b82f6"
)

type action struct {
	fn    func() error
	reply chan error
}

// Session is one peer's protocol endpoint.
type Session struct {
	params Params
	logger zerolog.Logger

	clk clockwork.Clock
	db  *store.DB

	sub    relay.Subscription
	me     relay.Member
	roster map[string]relay.Member

	host  bool
	state game.State  // replica when guest, mirror of stor when host
	stor  *game.Store // non-nil only while host

	engine   *clock.Engine
	handlers map[relay.Kind]func(relay.Envelope)

	actions chan action
	ticks   chan time.Duration
	noHost  clockwork.Timer

	runCtx  context.Context
	done    chan struct{}
	endErr  error
	stopped bool
}

// New builds a session; Run does the connecting.
func New(p Params) *Session {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.NoHostTimeout <= 0 {
		p.NoHostTimeout = defaultNoHostTimeout
	}
	if p.TickInterval <= 0 {
		p.TickInterval = clock.DefaultInterval
	}

	s := &Session{
		params:  p,
		logger:  log.With().Str("room", p.RoomCode).Str("name", p.Name).Logger(),
		clk:     p.Clock,
		db:      p.DB,
		roster:  make(map[string]relay.Member),
		host:    p.Host,
		actions: make(chan action),
		ticks:   make(chan time.Duration),
		done:    make(chan struct{}),
	}

	switch {
	case p.Resume != nil:
		s.state = p.Resume.Clone()
	case p.Host:
		s.state = game.NewState(p.Settings)
	default:
		s.state = game.State{Players: map[string]*game.Player{}}
	}
	return s
}

// Run subscribes to the room channel and processes events until the session
// ends or the context is cancelled. It returns ErrNoHostFound when a guest
// found nobody authoritative, nil on a clean end.
func (s *Session) Run(ctx context.Context) error {
	identity := relay.Identity{Name: s.params.Name, Host: s.host && !s.params.Spectator}
	sub, err := s.params.Transport.Subscribe(ctx, s.params.RoomCode, identity)
	if err != nil {
		return err // TransportUnavailable: fatal for this peer
	}
	s.sub = sub
	s.me = sub.Me()
	s.runCtx = ctx
	s.logger = s.logger.With().Str("member_id", s.me.ID).Logger()

	s.engine = clock.New(s.clk, s.params.TickInterval, s.postTick)
	defer s.engine.Stop()
	defer s.sub.Close()
	defer close(s.done)

	s.onSubscribed()

	for {
		var noHostCh <-chan time.Time
		if s.noHost != nil {
			noHostCh = s.noHost.Chan()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case act := <-s.actions:
			act.reply <- act.fn()
			if s.stopped {
				return s.endErr
			}

		case d := <-s.ticks:
			s.handleTick(d)

		case ev, ok := <-s.sub.Presence():
			if !ok {
				if s.stopped {
					return s.endErr
				}
				return ErrConnectionLost
			}
			s.handlePresence(ev)
			if s.stopped {
				return s.endErr
			}

		case env, ok := <-s.sub.Events():
			if !ok {
				if s.stopped {
					return s.endErr
				}
				return ErrConnectionLost
			}
			s.dispatch(env)
			if s.stopped {
				return s.endErr
			}

		case <-noHostCh:
			s.noHost = nil
			if s.handleNoHostTimeout() {
				return s.endErr
			}
		}
	}
}

// postTick hands an engine delta to the loop; it blocks rather than drop,
// because a dropped delta is lost clock time.
func (s *Session) postTick(d time.Duration) {
	select {
	case s.ticks <- d:
	case <-s.done:
	}
}

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(fn func() error) error {
	act := action{fn: fn, reply: make(chan error, 1)}
	select {
	case s.actions <- act:
		return <-act.reply
	case <-s.done:
		return ErrSessionClosed
	}
}

// dispatch routes a delivered message through the role's handler table.
// Kinds outside the table are dropped: a guest ignores stray intents, a
// host ignores stray broadcasts.
func (s *Session) dispatch(env relay.Envelope) {
	h, ok := s.handlers[env.Kind]
	if !ok {
		s.logger.Debug().Str("kind", string(env.Kind)).Bool("host", s.host).
			Msg("dropping message outside role's dispatch table")
		return
	}
	h(env)
}

func (s *Session) handleTick(d time.Duration) {
	if !s.host || !s.state.Clock.Running {
		return
	}
	s.commit(game.ClockTick{DeltaMs: d.Milliseconds()})
}

// commit applies a mutation to the authoritative store, runs the winner
// announcement gate, keeps the engine in step with clock.running, persists
// and broadcasts. Invariant violations drop the mutation: state unchanged,
// nothing broadcast, logged only.
func (s *Session) commit(m game.Mutation) error {
	st, err := s.stor.Apply(m)
	if err != nil {
		s.logger.Warn().Err(err).Msg("mutation dropped")
		return err
	}
	s.state = st
	s.announceWinner()
	s.syncEngine()
	s.broadcast()
	return nil
}

// announceWinner fires the one-shot terminal hook and stamps the gate.
func (s *Session) announceWinner() {
	if !s.state.Status.Terminal() || s.state.WinnerAnnounced {
		return
	}
	if s.params.Hooks.OnWinner != nil {
		s.params.Hooks.OnWinner(s.state)
	}
	if st, err := s.stor.Apply(game.MarkWinnerAnnounced{}); err == nil {
		s.state = st
	}
}

// syncEngine starts or stops the tick loop to match clock.running. Both
// operations are idempotent, so transitions can call this freely.
func (s *Session) syncEngine() {
	if !s.host {
		s.engine.Stop()
		return
	}
	if s.state.Clock.Running {
		s.engine.Start(s.runCtx)
	} else {
		s.engine.Stop()
	}
}

// broadcast publishes the full document and snapshots it locally. Snapshot
// failures are best-effort by design: the match continues in memory.
func (s *Session) broadcast() {
	if err := s.sub.Publish(relay.KindStateBroadcast, s.state); err != nil {
		s.logger.Error().Err(err).Msg("state broadcast failed")
	}
	if s.db != nil {
		if err := s.db.SaveSnapshot(s.params.RoomCode, s.state); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot write failed")
		}
	}
	if s.params.Hooks.OnState != nil {
		s.params.Hooks.OnState(s.state)
	}
}

// persistRole records a promotion or demotion so a restart rejoins with the
// right role.
func (s *Session) persistRole() {
	if s.db == nil {
		return
	}
	desc, err := s.db.LoadDescriptor()
	if err != nil {
		return
	}
	desc.Host = s.host
	if err := s.db.SaveDescriptor(desc); err != nil {
		s.logger.Warn().Err(err).Msg("descriptor write failed")
	}
}

// end finishes the session: the loop unwinds after the current event.
func (s *Session) end(reason EndReason, err error) {
	if s.stopped {
		return
	}
	s.stopped = true
	s.endErr = err
	s.engine.Stop()
	if s.params.Hooks.OnEnded != nil {
		s.params.Hooks.OnEnded(reason)
	}
}

// clearLocal wipes descriptor and snapshot, e.g. when the room is gone.
func (s *Session) clearLocal(dropSnapshot bool) {
	if s.db == nil {
		return
	}
	if err := s.db.ClearDescriptor(); err != nil {
		s.logger.Warn().Err(err).Msg("descriptor clear failed")
	}
	if dropSnapshot {
		if err := s.db.DeleteSnapshot(s.params.RoomCode); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot clear failed")
		}
	}
}
