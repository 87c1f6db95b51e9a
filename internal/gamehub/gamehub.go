// Package gamehub implements the per-connection message handlers of spec
// §4.6: matchmaking, paddle input relay, readiness, keepalive, and
// disconnect cleanup. It is the business-logic Handler that internal/
// transport's Hub dispatches inbound frames to, and it drives the same
// Broadcaster the Scheduler uses for outbound delivery (spec §4.8).
//
// Dispatch is a closed switch over protocol.Decode's type tag, grounded on
// the teacher's now-retired intent decode/validate split: one place parses
// the envelope, one place validates each variant's payload, no reflection.
package gamehub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pongserver/internal/engine"
	"pongserver/internal/inputcache"
	"pongserver/internal/logging"
	"pongserver/internal/matchqueue"
	"pongserver/internal/protocol"
	"pongserver/internal/sessionstore"
)

// Publisher delivers a named message to a connection id. Both
// broadcaster.Broadcaster and scheduler.Publisher satisfy this shape.
type Publisher interface {
	Send(ctx context.Context, connectionID, messageName string, payload any) error
}

// Clock returns the current time; overridable for deterministic tests.
type Clock func() time.Time

// Hub implements transport.Handler over the game domain.
type Hub struct {
	sessions *sessionstore.Store
	queue    matchqueue.Queue
	inputs   *inputcache.Cache
	publish  Publisher
	log      *logging.Logger
	now      Clock
	newState func() engine.GameState
}

// Option customises Hub construction.
type Option func(*Hub)

// WithLogger overrides the hub's logger.
func WithLogger(log *logging.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithClock overrides the hub's time source.
func WithClock(clock Clock) Option {
	return func(h *Hub) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithNewState overrides how a fresh GameState is constructed for a new
// session, primarily so tests can inject a deterministic rng.
func WithNewState(fn func() engine.GameState) Option {
	return func(h *Hub) {
		if fn != nil {
			h.newState = fn
		}
	}
}

// New constructs a Hub over the given session store, matchmaking queue,
// input cache, and outbound publisher.
func New(sessions *sessionstore.Store, queue matchqueue.Queue, inputs *inputcache.Cache, publish Publisher, opts ...Option) *Hub {
	h := &Hub{
		sessions: sessions,
		queue:    queue,
		inputs:   inputs,
		publish:  publish,
		log:      logging.L(),
		now:      time.Now,
		newState: func() engine.GameState { return engine.NewGameState(nil) },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnConnect is a no-op: a connection carries no state of its own until the
// player issues a matchmaking or bot-match request.
func (h *Hub) OnConnect(connectionID string) {
	h.log.Debug("connection opened", logging.String("connection_id", connectionID))
}

// OnMessage decodes and dispatches one inbound frame.
func (h *Hub) OnMessage(connectionID string, raw []byte) {
	ctx := context.Background()
	messageType, payload, err := protocol.Decode(raw)
	if err != nil {
		h.log.Debug("dropping malformed frame", logging.String("connection_id", connectionID), logging.Error(err))
		return
	}

	switch messageType {
	case protocol.TypeJoinMatchmaking:
		h.handleJoinMatchmaking(ctx, connectionID)
	case protocol.TypeStartBotMatch:
		h.handleStartBotMatch(ctx, connectionID)
	case protocol.TypeSendPaddleInput:
		h.handleSendPaddleInput(ctx, connectionID, payload)
	case protocol.TypeRequestStartGame:
		h.handleRequestStartGame(ctx, connectionID)
	case protocol.TypeKeepAlive:
		h.handleKeepAlive(ctx, connectionID)
	default:
		h.log.Debug("dropping unknown message type", logging.String("connection_id", connectionID), logging.String("type", messageType))
	}
}

// OnDisconnect removes the player from matchmaking and ends their active
// session, if any (spec §4.6, idempotent).
func (h *Hub) OnDisconnect(connectionID string) {
	ctx := context.Background()
	if h.queue != nil {
		if err := h.queue.Remove(ctx, connectionID); err != nil {
			h.log.Warn("matchqueue remove on disconnect failed", logging.String("connection_id", connectionID), logging.Error(err))
		}
	}

	session, ok := h.sessions.GetByPlayer(connectionID)
	if !ok {
		return
	}

	survivor, survivorSide := otherPlayer(session, connectionID)
	updated, err := h.sessions.Mutate(session.ID, func(s *Session) {
		s.State.GameOver = true
		s.State.Winner = survivorSide
	})
	if err != nil {
		return
	}
	if !sessionstore.IsBot(survivor) {
		_ = h.publish.Send(ctx, survivor, protocol.TypeOpponentDisconnected, protocol.GameUpdateFromState(updated.State))
	}
	h.sessions.Remove(session.ID)
}

func (h *Hub) handleJoinMatchmaking(ctx context.Context, connectionID string) {
	if h.queue == nil {
		_ = h.publish.Send(ctx, connectionID, protocol.TypeMatchmakingUnavailable, nil)
		return
	}
	if _, ok := h.sessions.GetByPlayer(connectionID); ok {
		_ = h.publish.Send(ctx, connectionID, protocol.TypeAlreadyInGame, nil)
		return
	}
	if err := h.queue.Enqueue(ctx, connectionID); err != nil {
		h.log.Warn("matchqueue enqueue failed", logging.String("connection_id", connectionID), logging.Error(err))
		return
	}

	a, b, ok, err := h.queue.PairPop(ctx)
	if err != nil {
		h.log.Warn("matchqueue pairpop failed", logging.String("connection_id", connectionID), logging.Error(err))
		return
	}
	if !ok {
		_ = h.publish.Send(ctx, connectionID, protocol.TypeWaitingForOpponent, nil)
		return
	}

	if _, err := h.sessions.Create(a, b, h.newState()); err != nil {
		h.log.Error("failed to create matched session", logging.String("player1", a), logging.String("player2", b), logging.Error(err))
		_ = h.queue.Enqueue(ctx, a)
		_ = h.queue.Enqueue(ctx, b)
		return
	}

	_ = h.publish.Send(ctx, a, protocol.TypeMatchFound, protocol.MatchFoundPayload{Opponent: b, Side: 1})
	_ = h.publish.Send(ctx, b, protocol.TypeMatchFound, protocol.MatchFoundPayload{Opponent: a, Side: 2})
}

func (h *Hub) handleStartBotMatch(ctx context.Context, connectionID string) {
	if _, ok := h.sessions.GetByPlayer(connectionID); ok {
		_ = h.publish.Send(ctx, connectionID, protocol.TypeAlreadyInGame, nil)
		return
	}

	botID := sessionstore.BotPrefix + uuid.NewString()
	state := h.newState()
	state.LeftReady = true
	state.RightReady = true

	if _, err := h.sessions.Create(connectionID, botID, state); err != nil {
		h.log.Error("failed to create bot session", logging.String("connection_id", connectionID), logging.Error(err))
		return
	}
	_ = h.publish.Send(ctx, connectionID, protocol.TypeMatchFound, protocol.MatchFoundPayload{Opponent: "Bot", Side: 1, IsBot: true})
}

func (h *Hub) handleSendPaddleInput(ctx context.Context, connectionID string, rawPayload json.RawMessage) {
	var payload protocol.SendPaddleInputPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		h.log.Debug("dropping invalid paddle input", logging.String("connection_id", connectionID), logging.Error(err))
		return
	}
	h.inputs.Put(connectionID, payload.TargetY)

	session, ok := h.sessions.GetByPlayer(connectionID)
	if !ok {
		return
	}
	opponent, _ := otherPlayer(session, connectionID)
	if opponent == "" || sessionstore.IsBot(opponent) {
		return
	}
	_ = h.publish.Send(ctx, opponent, protocol.TypeOpponentPaddleInput, protocol.OpponentPaddleInputPayload{TargetY: payload.TargetY})
}

func (h *Hub) handleRequestStartGame(ctx context.Context, connectionID string) {
	session, ok := h.sessions.GetByPlayer(connectionID)
	if !ok {
		return
	}
	if sessionstore.IsBot(session.Player2) {
		return
	}

	shouldStart := false
	updated, err := h.sessions.Mutate(session.ID, func(s *Session) {
		if s.Player1 == connectionID {
			s.State.LeftReady = true
		} else if s.Player2 == connectionID {
			s.State.RightReady = true
		}
		if s.State.LeftReady && s.State.RightReady && !s.GameStarted {
			s.GameStarted = true
			shouldStart = true
		}
	})
	if err != nil {
		return
	}
	if shouldStart {
		_ = h.publish.Send(ctx, updated.Player1, protocol.TypeGameStarted, nil)
		_ = h.publish.Send(ctx, updated.Player2, protocol.TypeGameStarted, nil)
	}
}

func (h *Hub) handleKeepAlive(ctx context.Context, connectionID string) {
	_ = h.publish.Send(ctx, connectionID, protocol.TypePong, protocol.PongPayload{UTCTimestamp: h.now().UTC().Format(time.RFC3339)})
}

// otherPlayer returns the session's participant that isn't playerID, along
// with that participant's side (1 or 2).
func otherPlayer(session sessionstore.Session, playerID string) (string, int) {
	if session.Player1 == playerID {
		return session.Player2, 2
	}
	return session.Player1, 1
}

// Session is a local alias so Mutate callbacks read naturally in this
// package without importing sessionstore.Session by its full name twice.
type Session = sessionstore.Session
