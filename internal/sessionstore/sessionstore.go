// Package sessionstore is the in-process, in-memory registry of active game
// sessions. It is authoritative for live game physics: the Scheduler mutates
// sessions under the store's per-session lock, and Hub looks sessions up by
// player id on the hot path without touching the coordination store.
//
// Adapted from the persistent match-session idiom of locking a single
// resource behind a functional-options constructor and deterministic id
// derivation; generalised here from a capacity-gated room to the spec's
// fixed two-participant pairing with a secondary player->session index kept
// strictly in sync under the same lock (never a back-pointer on the session).
package sessionstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pongserver/internal/engine"
)

// ErrInvalidPlayerID is returned when a session references an empty player id.
var ErrInvalidPlayerID = errors.New("player id must not be empty")

// ErrSessionExists is returned by Create when either player already has an active session.
var ErrSessionExists = errors.New("a session already exists for one of the players")

// ErrSessionNotFound is returned by lookups and Update when no session matches.
var ErrSessionNotFound = errors.New("session not found")

// BotPrefix marks a player2 id as a server-controlled opponent with no live connection.
const BotPrefix = "bot_"

// IsBot reports whether a player id denotes a server-controlled opponent.
func IsBot(playerID string) bool {
	return strings.HasPrefix(playerID, BotPrefix)
}

// Session is a pairing of two participants and their authoritative GameState.
type Session struct {
	ID      string
	Player1 string
	Player2 string
	State   engine.GameState

	// GameStarted records whether GameStarted has already been emitted for
	// this session, so a duplicate RequestStartGame from either player once
	// both sides are ready never re-sends it (spec.md §8 scenario 6).
	GameStarted bool

	LastUpdateTime time.Time
	LastClientSync time.Time
}

// SessionID derives a deterministic session id from the ordered pair of
// player ids, per spec §3 ("derived deterministically from the ordered pair
// of player ids (lexicographic)").
func SessionID(player1, player2 string) string {
	a, b := player1, player2
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}

// Store is the concurrency-safe registry of active sessions.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionEntry
	byPlayer    map[string]string // playerID -> sessionID
	now         func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session Session
}

// Option customises Store construction.
type Option func(*Store)

// WithClock overrides the time source used to stamp LastUpdateTime; primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// New constructs an empty session store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*sessionEntry),
		byPlayer: make(map[string]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create registers a new session, failing if either player already has an active one.
func (s *Store) Create(player1, player2 string, state engine.GameState) (Session, error) {
	if s == nil {
		return Session{}, errors.New("store is nil")
	}
	p1, p2 := strings.TrimSpace(player1), strings.TrimSpace(player2)
	if p1 == "" || p2 == "" {
		return Session{}, ErrInvalidPlayerID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPlayer[p1]; exists {
		return Session{}, ErrSessionExists
	}
	if !IsBot(p2) {
		if _, exists := s.byPlayer[p2]; exists {
			return Session{}, ErrSessionExists
		}
	}

	session := Session{
		ID:             SessionID(p1, p2),
		Player1:        p1,
		Player2:        p2,
		State:          state,
		LastUpdateTime: s.now(),
		LastClientSync: s.now(),
	}
	s.sessions[session.ID] = &sessionEntry{session: session}
	s.byPlayer[p1] = session.ID
	if !IsBot(p2) {
		s.byPlayer[p2] = session.ID
	}
	return session, nil
}

// GetByPlayer returns the active session for a player id, if any.
func (s *Store) GetByPlayer(playerID string) (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.RLock()
	sessionID, ok := s.byPlayer[playerID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return s.GetByID(sessionID)
}

// GetByID returns the session with the given id, if any.
func (s *Store) GetByID(sessionID string) (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	entry.mu.Lock()
	session := entry.session
	entry.mu.Unlock()
	return session, true
}

// Update atomically replaces the stored session state.
func (s *Store) Update(session Session) error {
	if s == nil {
		return errors.New("store is nil")
	}
	s.mu.RLock()
	entry, ok := s.sessions[session.ID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	entry.mu.Lock()
	session.LastUpdateTime = s.now()
	entry.session = session
	entry.mu.Unlock()
	return nil
}

// Mutate applies fn to the session under its own lock, atomically combining
// a read and a write so Hub handlers (e.g. RequestStartGame flipping a
// single readiness flag) never race the Scheduler's own Update call.
func (s *Store) Mutate(sessionID string, fn func(*Session)) (Session, error) {
	if s == nil {
		return Session{}, errors.New("store is nil")
	}
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	entry.mu.Lock()
	fn(&entry.session)
	entry.session.LastUpdateTime = s.now()
	result := entry.session
	entry.mu.Unlock()
	return result, nil
}

// MutateByPlayer resolves playerID to its session and applies fn atomically.
func (s *Store) MutateByPlayer(playerID string, fn func(*Session)) (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.RLock()
	sessionID, ok := s.byPlayer[playerID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	session, err := s.Mutate(sessionID, fn)
	if err != nil {
		return Session{}, false
	}
	return session, true
}

// Remove deletes a session and its player index entries.
func (s *Store) Remove(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	entry.mu.Lock()
	p1, p2 := entry.session.Player1, entry.session.Player2
	entry.mu.Unlock()
	delete(s.sessions, sessionID)
	if s.byPlayer[p1] == sessionID {
		delete(s.byPlayer, p1)
	}
	if s.byPlayer[p2] == sessionID {
		delete(s.byPlayer, p2)
	}
}

// Snapshot returns a caller-owned copy of every active session, safe to
// iterate without holding the store lock. Order is deterministic (by id) so
// tests and diagnostics get stable output.
func (s *Store) Snapshot() []Session {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, entry := range s.sessions {
		ids = append(ids, id)
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	byID := make(map[string]*sessionEntry, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		byID[entry.session.ID] = entry
		entry.mu.Unlock()
	}

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		entry := byID[id]
		entry.mu.Lock()
		out = append(out, entry.session)
		entry.mu.Unlock()
	}
	return out
}

// Count returns the number of active (non-gameOver) sessions.
func (s *Store) Count() int {
	if s == nil {
		return 0
	}
	count := 0
	for _, session := range s.Snapshot() {
		if !session.State.GameOver {
			count++
		}
	}
	return count
}
