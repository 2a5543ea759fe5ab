package action

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

var (
	// ErrUnknownToken is returned when a token is absent from the store.
	ErrUnknownToken = errors.New("unknown token")

	// ErrTokenResolved is returned when a token exists but is not in the
	// state the caller expected, typically because it was already resolved.
	ErrTokenResolved = errors.New("token already resolved")
)

// Store is the short-lived registry of pending actions. It is shared mutable
// state between the tick loop, which issues tokens when rendering alerts, and
// the inbound event handler, which resolves them; every access is serialized
// by a single lock.
type Store struct {
	logger *zap.Logger

	mu      sync.Mutex
	actions map[string]*model.PendingAction
	batch   uint64

	maxAge  time.Duration
	maxSize int
	now     func() time.Time
}

// NewStore creates a pending action store. Tokens older than maxAge, or
// beyond maxSize (oldest first), are reclaimed regardless of state.
func NewStore(logger *zap.Logger, maxAge time.Duration, maxSize int) *Store {
	return &Store{
		logger:  logger.Named("pending-actions"),
		actions: make(map[string]*model.PendingAction),
		maxAge:  maxAge,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// NextBatch returns a fresh batch identifier. The counter is monotonic for
// the process lifetime, so tokens are never reused across batches even when
// the same alert fires again.
func (s *Store) NextBatch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch++
	return s.batch
}

// Put stores a pending action and runs reclamation.
func (s *Store) Put(act *model.PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act.CreatedAt.IsZero() {
		act.CreatedAt = s.now()
	}
	s.actions[act.Token] = act
	s.reclaimLocked()
}

// Get returns a copy of the pending action for the token.
func (s *Store) Get(token string) (model.PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.actions[token]
	if !ok {
		return model.PendingAction{}, false
	}
	return *act, true
}

// Transition moves a token from one state to another. It fails if the token
// is unknown or not currently in the expected state, which is what makes a
// duplicate button delivery observable as "already resolved" instead of a
// second execution.
func (s *Store) Transition(token string, from, to model.ActionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.actions[token]
	if !ok {
		return ErrUnknownToken
	}
	if act.State != from {
		return ErrTokenResolved
	}
	act.State = to
	return nil
}

// Claim atomically transitions the token and returns a copy of it. At most
// one concurrent caller can win the claim.
func (s *Store) Claim(token string, from, to model.ActionState) (model.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	act, ok := s.actions[token]
	if !ok {
		return model.PendingAction{}, ErrUnknownToken
	}
	if act.State != from {
		return model.PendingAction{}, ErrTokenResolved
	}
	act.State = to
	return *act, nil
}

// Remove drops a token from the store.
func (s *Store) Remove(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range tokens {
		delete(s.actions, token)
	}
}

// Live returns the number of non-terminal tokens currently held.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, act := range s.actions {
		if !act.State.Terminal() {
			n++
		}
	}
	return n
}

// Sweep runs reclamation outside of Put, for periodic use by the driver.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaimLocked()
}

// reclaimLocked purges expired and overflow tokens. Terminal and live tokens
// are dropped alike; a replayed token then resolves as unknown.
func (s *Store) reclaimLocked() {
	now := s.now()

	var purged int
	if s.maxAge > 0 {
		for token, act := range s.actions {
			if now.Sub(act.CreatedAt) > s.maxAge {
				delete(s.actions, token)
				purged++
			}
		}
	}

	if s.maxSize > 0 && len(s.actions) > s.maxSize {
		byAge := make([]*model.PendingAction, 0, len(s.actions))
		for _, act := range s.actions {
			byAge = append(byAge, act)
		}
		sort.Slice(byAge, func(i, j int) bool {
			return byAge[i].CreatedAt.Before(byAge[j].CreatedAt)
		})
		for _, act := range byAge[:len(s.actions)-s.maxSize] {
			delete(s.actions, act.Token)
			purged++
		}
	}

	if purged > 0 {
		s.logger.Debug("Reclaimed pending actions",
			zap.Int("purged", purged),
			zap.Int("remaining", len(s.actions)))
	}
}
