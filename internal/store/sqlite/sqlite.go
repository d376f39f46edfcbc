// Package sqlite stores topics, users and attempts in a single SQLite file.
//
// It backs the "sqlite" storage driver for single-node deployments. The
// schema is created on [Open]. All writes go through one connection because
// SQLite allows a single writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/MrWong99/talk2me/internal/attempt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT    NOT NULL UNIQUE COLLATE NOCASE,
	email    TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS topics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	difficulty  TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attempts (
	id            INTEGER  PRIMARY KEY AUTOINCREMENT,
	user_id       INTEGER  NOT NULL REFERENCES users (id),
	topic_id      INTEGER  NOT NULL,
	audio_url     TEXT     NOT NULL DEFAULT '',
	transcript    TEXT     NOT NULL DEFAULT '',
	wpm           REAL     NOT NULL DEFAULT 0,
	filler_count  INTEGER  NOT NULL DEFAULT 0,
	score         INTEGER  NOT NULL DEFAULT 0,
	feedback_json BLOB     NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_user_created
	ON attempts (user_id, created_at DESC);
`

// Store is a SQLite-backed store. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create data dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: connect %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateTopic inserts t. A zero ID lets SQLite assign one.
func (s *Store) CreateTopic(ctx context.Context, t attempt.Topic) (attempt.Topic, error) {
	q := `INSERT INTO topics (title, category, difficulty, description)
	      VALUES (:title, :category, :difficulty, :description)`
	if t.ID != 0 {
		q = `INSERT INTO topics (id, title, category, difficulty, description)
		     VALUES (:id, :title, :category, :difficulty, :description)`
	}
	id, err := s.insertNamed(ctx, q, t)
	if err != nil {
		return attempt.Topic{}, fmt.Errorf("sqlite store: create topic: %w", err)
	}
	t.ID = id
	return t, nil
}

// CreateUser inserts u. Usernames are unique, case-insensitively.
func (s *Store) CreateUser(ctx context.Context, u attempt.User) (attempt.User, error) {
	q := `INSERT INTO users (username, email) VALUES (:username, :email)`
	if u.ID != 0 {
		q = `INSERT INTO users (id, username, email) VALUES (:id, :username, :email)`
	}
	id, err := s.insertNamed(ctx, q, u)
	if err != nil {
		return attempt.User{}, fmt.Errorf("sqlite store: create user: %w", err)
	}
	u.ID = id
	return u, nil
}

func (s *Store) insertNamed(ctx context.Context, q string, arg any) (int64, error) {
	res, err := s.db.NamedExecContext(ctx, q, arg)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey) {
			return 0, fmt.Errorf("%w: %w", attempt.ErrDuplicate, err)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetTopic implements [attempt.TopicStore].
func (s *Store) GetTopic(ctx context.Context, id int64) (*attempt.Topic, error) {
	var t attempt.Topic
	err := s.db.GetContext(ctx, &t,
		`SELECT id, title, category, difficulty, description FROM topics WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attempt.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get topic %d: %w", id, err)
	}
	return &t, nil
}

// GetUser implements [attempt.UserStore].
func (s *Store) GetUser(ctx context.Context, id int64) (*attempt.User, error) {
	var u attempt.User
	err := s.db.GetContext(ctx, &u, `SELECT id, username, email FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attempt.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get user %d: %w", id, err)
	}
	return &u, nil
}

// Insert implements [attempt.AttemptStore]. A missing user surfaces as
// [attempt.ErrUserNotFound].
func (s *Store) Insert(ctx context.Context, a *attempt.Attempt) (int64, error) {
	const q = `
		INSERT INTO attempts
		    (user_id, topic_id, audio_url, transcript, wpm, filler_count, score, feedback_json, created_at)
		VALUES (:user_id, :topic_id, :audio_url, :transcript, :wpm, :filler_count, :score, :feedback_json, :created_at)`

	res, err := s.db.NamedExecContext(ctx, q, a)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return 0, fmt.Errorf("%w: %w", attempt.ErrUserNotFound, err)
		}
		return 0, fmt.Errorf("sqlite store: insert attempt: %w", err)
	}
	return res.LastInsertId()
}

// ListByUser implements [attempt.AttemptStore].
func (s *Store) ListByUser(ctx context.Context, userID int64, limit int) ([]attempt.Attempt, error) {
	if limit <= 0 {
		limit = -1
	}
	out := make([]attempt.Attempt, 0)
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, topic_id, audio_url, transcript, wpm, filler_count, score, feedback_json, created_at
		FROM   attempts
		WHERE  user_id = ?
		ORDER  BY created_at DESC, id DESC
		LIMIT  ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list attempts: %w", err)
	}
	return out, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func isConstraint(err error, codes ...sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.ExtendedCode == c {
			return true
		}
	}
	return false
}
