package attempt

import (
	"context"
	"errors"
	"time"
)

// Store sentinels. Implementations wrap or return these so callers can use
// errors.Is.
var (
	ErrUserNotFound  = errors.New("attempt: user not found")
	ErrTopicNotFound = errors.New("attempt: topic not found")

	// ErrDuplicate is returned when creating a topic or user whose ID or
	// unique name is taken.
	ErrDuplicate = errors.New("attempt: duplicate record")
)

// Difficulty levels of a [Topic].
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// Topic is a speaking prompt.
type Topic struct {
	ID          int64  `json:"id" db:"id" yaml:"id"`
	Title       string `json:"title" db:"title" yaml:"title"`
	Category    string `json:"category" db:"category" yaml:"category"`
	Difficulty  string `json:"difficulty" db:"difficulty" yaml:"difficulty"`
	Description string `json:"description" db:"description" yaml:"description"`
}

// User is a registered speaker.
type User struct {
	ID       int64  `json:"id" db:"id" yaml:"id"`
	Username string `json:"username" db:"username" yaml:"username"`
	Email    string `json:"email" db:"email" yaml:"email"`
}

// Attempt is one persisted, scored submission. It is written once and never
// updated.
type Attempt struct {
	ID          int64   `db:"id"`
	UserID      int64   `db:"user_id"`
	TopicID     int64   `db:"topic_id"`
	AudioURL    string  `db:"audio_url"`
	Transcript  string  `db:"transcript"`
	WPM         float64 `db:"wpm"`
	FillerCount int     `db:"filler_count"`
	Score       int     `db:"score"`

	// Feedback is the JSON encoding of a [FeedbackRecord]. Use
	// [DecodeFeedback] to read it back.
	Feedback []byte `db:"feedback_json"`

	CreatedAt time.Time `db:"created_at"`
}

// TopicStore looks up topics.
type TopicStore interface {
	// GetTopic returns [ErrTopicNotFound] when id is unknown.
	GetTopic(ctx context.Context, id int64) (*Topic, error)
}

// UserStore looks up users.
type UserStore interface {
	// GetUser returns [ErrUserNotFound] when id is unknown.
	GetUser(ctx context.Context, id int64) (*User, error)
}

// AttemptStore persists attempts.
type AttemptStore interface {
	// Insert stores a and returns its new ID. a.ID is ignored.
	Insert(ctx context.Context, a *Attempt) (int64, error)

	// ListByUser returns the user's attempts, newest first. limit <= 0
	// means no limit.
	ListByUser(ctx context.Context, userID int64, limit int) ([]Attempt, error)
}

// BlobStore keeps attempt recordings.
type BlobStore interface {
	// Copy stores a copy of the file at tempPath under a fresh, unique name
	// and returns the URL it is served from.
	Copy(ctx context.Context, tempPath string) (url string, err error)

	// Delete removes the blob behind url. Deleting a missing blob is not an
	// error.
	Delete(ctx context.Context, url string) error
}
