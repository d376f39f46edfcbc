// Package memstore keeps topics, users and attempts in process memory.
//
// It backs the "memory" storage driver for local runs and tests. Nothing
// survives a restart.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/talk2me/internal/attempt"
)

// Store is a thread-safe in-memory store. The zero value is ready to use.
type Store struct {
	mu       sync.RWMutex
	topics   map[int64]attempt.Topic
	users    map[int64]attempt.User
	attempts []attempt.Attempt

	lastTopic, lastUser, lastAttempt int64
}

// New returns an empty [Store].
func New() *Store {
	return &Store{}
}

func (s *Store) init() {
	if s.topics == nil {
		s.topics = make(map[int64]attempt.Topic)
		s.users = make(map[int64]attempt.User)
	}
}

// CreateTopic stores t. A zero ID is assigned the next free one.
func (s *Store) CreateTopic(_ context.Context, t attempt.Topic) (attempt.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if t.ID == 0 {
		t.ID = s.lastTopic + 1
	}
	if _, ok := s.topics[t.ID]; ok {
		return attempt.Topic{}, attempt.ErrDuplicate
	}
	s.topics[t.ID] = t
	s.lastTopic = max(s.lastTopic, t.ID)
	return t, nil
}

// CreateUser stores u. Usernames are unique, case-insensitively.
func (s *Store) CreateUser(_ context.Context, u attempt.User) (attempt.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if u.ID == 0 {
		u.ID = s.lastUser + 1
	}
	if _, ok := s.users[u.ID]; ok {
		return attempt.User{}, attempt.ErrDuplicate
	}
	for _, other := range s.users {
		if strings.EqualFold(other.Username, u.Username) {
			return attempt.User{}, attempt.ErrDuplicate
		}
	}
	s.users[u.ID] = u
	s.lastUser = max(s.lastUser, u.ID)
	return u, nil
}

// GetTopic implements [attempt.TopicStore].
func (s *Store) GetTopic(_ context.Context, id int64) (*attempt.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[id]
	if !ok {
		return nil, attempt.ErrTopicNotFound
	}
	return &t, nil
}

// GetUser implements [attempt.UserStore].
func (s *Store) GetUser(_ context.Context, id int64) (*attempt.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, attempt.ErrUserNotFound
	}
	return &u, nil
}

// Insert implements [attempt.AttemptStore]. The user must exist.
func (s *Store) Insert(_ context.Context, a *attempt.Attempt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[a.UserID]; !ok {
		return 0, attempt.ErrUserNotFound
	}
	cp := *a
	cp.Feedback = slices.Clone(a.Feedback)
	s.lastAttempt++
	cp.ID = s.lastAttempt
	s.attempts = append(s.attempts, cp)
	return cp.ID, nil
}

// ListByUser implements [attempt.AttemptStore].
func (s *Store) ListByUser(_ context.Context, userID int64, limit int) ([]attempt.Attempt, error) {
	s.mu.RLock()
	out := make([]attempt.Attempt, 0)
	for _, a := range s.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b attempt.Attempt) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
