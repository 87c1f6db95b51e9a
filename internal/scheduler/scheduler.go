// Package scheduler drives the fixed-timestep game loop across every active
// session, adapting its own tick cadence to how much is actually happening
// (spec §4.5). It records tick durations with internal/simulation's
// TickMonitor. Unlike a catch-up fixed-timestep loop, it never accumulates
// and catches up on missed wall-clock time. Each tick advances every session
// by exactly DeltaTime regardless of how long the previous tick took.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"pongserver/internal/engine"
	"pongserver/internal/inputcache"
	"pongserver/internal/logging"
	"pongserver/internal/protocol"
	"pongserver/internal/sessionstore"
	"pongserver/internal/simulation"
)

// DeltaTime is the fixed physics timestep applied on every tick, independent
// of the adaptive cadence that decides how often ticks happen.
const DeltaTime = 0.033

// Cadence tiers (spec §4.5): the loop slows down when idle and speeds up
// once sessions are active, backing off further if a session's tick errors.
// FullInterval is the default; New's baseInterval parameter (config's
// PONG_TICK_INTERVAL) overrides it so an operator can retune the busy-tier
// cadence without a rebuild.
const (
	IdleInterval  = 500 * time.Millisecond
	LightInterval = 66 * time.Millisecond
	FullInterval  = 33 * time.Millisecond
	ErrorBackoff  = 100 * time.Millisecond

	// LightLoadThreshold is the session count below which the light cadence
	// applies instead of the full cadence.
	LightLoadThreshold = 3
)

// Publisher delivers a named message to whichever connection belongs to
// playerID. broadcaster.Broadcaster implements it in production. The
// Scheduler never sends to a bot id; a send to a player with no live
// connection returns an error, which the tick reports.
type Publisher interface {
	Send(ctx context.Context, connectionID, messageName string, payload any) error
}

// Scheduler ticks every session held by a sessionstore.Store, applying
// buffered paddle input, advancing the physics engine, and broadcasting
// state changes to the players of each session.
type Scheduler struct {
	sessions           *sessionstore.Store
	inputs             *inputcache.Cache
	publisher          Publisher
	log                *logging.Logger
	clientSyncInterval time.Duration
	baseInterval       time.Duration
	rng                *rand.Rand
	monitor            *simulation.TickMonitor
}

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRand overrides the scheduler's random source, used when a session's
// ball is reset after a point.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// New constructs a Scheduler over the given session store and input cache.
// baseInterval overrides the full-load cadence (FullInterval) when positive.
func New(sessions *sessionstore.Store, inputs *inputcache.Cache, publisher Publisher, clientSyncInterval, baseInterval time.Duration, opts ...Option) *Scheduler {
	if clientSyncInterval <= 0 {
		clientSyncInterval = 100 * time.Millisecond
	}
	if baseInterval <= 0 {
		baseInterval = FullInterval
	}
	s := &Scheduler{
		sessions:           sessions,
		inputs:             inputs,
		publisher:          publisher,
		log:                logging.L(),
		clientSyncInterval: clientSyncInterval,
		baseInterval:       baseInterval,
		rng:                rand.New(rand.NewSource(1)),
		monitor:            simulation.NewTickMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics exposes the underlying tick-duration monitor for health reporting.
func (s *Scheduler) Metrics() simulation.TickMetricsSnapshot {
	return s.monitor.Snapshot()
}

// Start runs the adaptive tick loop until ctx is cancelled. It blocks the
// calling goroutine; callers typically invoke it with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	delay := IdleInterval
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			tickStart := time.Now()
			erred := s.tickAll(ctx)
			s.monitor.Observe(time.Since(tickStart))
			delay = s.nextDelay(erred)
			timer.Reset(delay)
		}
	}
}

func (s *Scheduler) nextDelay(erred bool) time.Duration {
	if erred {
		return ErrorBackoff
	}
	active := s.sessions.Count()
	switch {
	case active == 0:
		return IdleInterval
	case active < LightLoadThreshold:
		return LightInterval
	default:
		return s.baseInterval
	}
}

// tickAll advances every non-finished session by one fixed step and reports
// whether any session's tick failed (a broadcast or a store update), so the
// caller can back off.
func (s *Scheduler) tickAll(ctx context.Context) bool {
	erred := false
	for _, session := range s.sessions.Snapshot() {
		if session.State.GameOver {
			continue
		}
		if err := s.tickOne(ctx, session); err != nil {
			s.log.Error("scheduler tick failed", logging.String("session_id", session.ID), logging.Error(err))
			erred = true
		}
	}
	return erred
}

func (s *Scheduler) tickOne(ctx context.Context, session sessionstore.Session) error {
	prev := session.State

	y1, y2 := s.inputs.Take(session.Player1, session.Player2)
	pending := prev
	if y1 != nil {
		pending.Left.TargetY = *y1
	}
	if sessionstore.IsBot(session.Player2) {
		pending = engine.UpdateBotTarget(pending)
	} else if y2 != nil {
		pending.Right.TargetY = *y2
	}

	next := engine.Step(pending, DeltaTime, s.rng)
	now := time.Now()
	session.State = next
	session.LastUpdateTime = now

	critical := next.LeftScore != prev.LeftScore ||
		next.RightScore != prev.RightScore ||
		next.GameOver != prev.GameOver
	motion := !critical && changed(prev, next)

	var sendErr error
	if critical {
		sendErr = s.broadcast(ctx, session)
		session.LastClientSync = now
	} else if motion && now.Sub(session.LastClientSync) >= s.clientSyncInterval {
		sendErr = s.broadcast(ctx, session)
		session.LastClientSync = now
	}

	if next.GameOver {
		s.sessions.Remove(session.ID)
		return sendErr
	}
	if err := s.sessions.Update(session); err != nil {
		return err
	}
	return sendErr
}

func (s *Scheduler) broadcast(ctx context.Context, session sessionstore.Session) error {
	payload := protocol.GameUpdateFromState(session.State)
	var firstErr error
	if err := s.publisher.Send(ctx, session.Player1, protocol.TypeGameUpdate, payload); err != nil {
		firstErr = err
	}
	if !sessionstore.IsBot(session.Player2) {
		if err := s.publisher.Send(ctx, session.Player2, protocol.TypeGameUpdate, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func changed(a, b engine.GameState) bool {
	return a.Ball.X != b.Ball.X || a.Ball.Y != b.Ball.Y ||
		a.Left.Y != b.Left.Y || a.Right.Y != b.Right.Y ||
		a.Left.TargetY != b.Left.TargetY || a.Right.TargetY != b.Right.TargetY
}
