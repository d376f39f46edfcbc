// Package mock provides test doubles for the attempt store interfaces.
//
// Store implements TopicStore, UserStore and AttemptStore over plain maps
// and records every call; Blobs implements BlobStore without touching disk
// beyond checking that the source file exists.
//
// Example:
//
//	s := mock.NewStore()
//	s.Topics[1] = attempt.Topic{ID: 1, Description: "Discuss remote work"}
//	s.Users[7] = attempt.User{ID: 7}
//	blobs := &mock.Blobs{}
package mock

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/MrWong99/talk2me/internal/attempt"
)

// Store is an in-memory mock of the attempt stores.
type Store struct {
	mu sync.Mutex

	// Topics and Users are looked up by ID. Populate them before use.
	Topics map[int64]attempt.Topic
	Users  map[int64]attempt.User

	// TopicErr, UserErr and InsertErr, when set, are returned instead of a
	// lookup or insert.
	TopicErr  error
	UserErr   error
	InsertErr error

	inserted   []attempt.Attempt
	topicCalls int
	userCalls  int
}

// NewStore returns an empty [Store].
func NewStore() *Store {
	return &Store{
		Topics: make(map[int64]attempt.Topic),
		Users:  make(map[int64]attempt.User),
	}
}

// GetTopic implements attempt.TopicStore.
func (s *Store) GetTopic(_ context.Context, id int64) (*attempt.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topicCalls++
	if s.TopicErr != nil {
		return nil, s.TopicErr
	}
	t, ok := s.Topics[id]
	if !ok {
		return nil, attempt.ErrTopicNotFound
	}
	return &t, nil
}

// GetUser implements attempt.UserStore.
func (s *Store) GetUser(_ context.Context, id int64) (*attempt.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userCalls++
	if s.UserErr != nil {
		return nil, s.UserErr
	}
	u, ok := s.Users[id]
	if !ok {
		return nil, attempt.ErrUserNotFound
	}
	return &u, nil
}

// Insert implements attempt.AttemptStore. IDs start at 1.
func (s *Store) Insert(_ context.Context, a *attempt.Attempt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return 0, s.InsertErr
	}
	cp := *a
	cp.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, cp)
	return cp.ID, nil
}

// ListByUser implements attempt.AttemptStore.
func (s *Store) ListByUser(_ context.Context, userID int64, limit int) ([]attempt.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attempt.Attempt
	for _, a := range slices.Backward(s.inserted) {
		if a.UserID != userID {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Inserted returns a copy of all inserted attempts. Thread-safe.
func (s *Store) Inserted() []attempt.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.inserted)
}

// TopicCalls returns the number of GetTopic calls. Thread-safe.
func (s *Store) TopicCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topicCalls
}

// UserCalls returns the number of GetUser calls. Thread-safe.
func (s *Store) UserCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCalls
}

var (
	_ attempt.TopicStore   = (*Store)(nil)
	_ attempt.UserStore    = (*Store)(nil)
	_ attempt.AttemptStore = (*Store)(nil)
)

// Blobs is a mock attempt.BlobStore.
type Blobs struct {
	mu sync.Mutex

	// CopyErr, when set, is returned by Copy.
	CopyErr error

	copies  []string
	deletes []string
}

// Copy checks that tempPath exists and returns a fake URL.
func (b *Blobs) Copy(_ context.Context, tempPath string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.copies = append(b.copies, tempPath)
	if b.CopyErr != nil {
		return "", b.CopyErr
	}
	if _, err := os.Stat(tempPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("/uploads/blob-%d.webm", len(b.copies)), nil
}

// Delete records the call.
func (b *Blobs) Delete(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, url)
	return nil
}

// Copies returns the temp paths passed to Copy. Thread-safe.
func (b *Blobs) Copies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.copies)
}

// Deletes returns the URLs passed to Delete. Thread-safe.
func (b *Blobs) Deletes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.deletes)
}

var _ attempt.BlobStore = (*Blobs)(nil)
