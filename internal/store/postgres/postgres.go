// Package postgres stores topics, users and attempts in PostgreSQL.
//
// All queries share one [pgxpool.Pool]. [Migrate] is idempotent and runs on
// every [Open].
//
// Usage:
//
//	s, err := postgres.Open(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/talk2me/internal/attempt"
)

const ddl = `
CREATE TABLE IF NOT EXISTS users (
    id        BIGSERIAL PRIMARY KEY,
    username  TEXT      NOT NULL,
    email     TEXT      NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower
    ON users (lower(username));

CREATE TABLE IF NOT EXISTS topics (
    id           BIGSERIAL PRIMARY KEY,
    title        TEXT      NOT NULL,
    category     TEXT      NOT NULL DEFAULT '',
    difficulty   TEXT      NOT NULL DEFAULT '',
    description  TEXT      NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attempts (
    id             BIGSERIAL         PRIMARY KEY,
    user_id        BIGINT            NOT NULL REFERENCES users (id),
    topic_id       BIGINT            NOT NULL,
    audio_url      TEXT              NOT NULL DEFAULT '',
    transcript     TEXT              NOT NULL DEFAULT '',
    wpm            DOUBLE PRECISION  NOT NULL DEFAULT 0,
    filler_count   INTEGER           NOT NULL DEFAULT 0,
    score          INTEGER           NOT NULL DEFAULT 0,
    feedback_json  JSONB             NOT NULL,
    created_at     TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_user_created
    ON attempts (user_id, created_at DESC);
`

// PostgreSQL error codes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is a PostgreSQL-backed store. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and runs [Migrate].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables and indexes if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateTopic inserts t. A zero ID lets the sequence assign one; an explicit
// ID advances the sequence past it.
func (s *Store) CreateTopic(ctx context.Context, t attempt.Topic) (attempt.Topic, error) {
	err := s.withExplicitID(ctx, "topics", t.ID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO topics (id, title, category, difficulty, description)
			VALUES (COALESCE(NULLIF($1::bigint, 0), nextval(pg_get_serial_sequence('topics', 'id'))), $2, $3, $4, $5)
			RETURNING id`,
			t.ID, t.Title, t.Category, t.Difficulty, t.Description,
		).Scan(&t.ID)
	})
	if err != nil {
		return attempt.Topic{}, fmt.Errorf("postgres store: create topic: %w", err)
	}
	return t, nil
}

// CreateUser inserts u. Usernames are unique, case-insensitively.
func (s *Store) CreateUser(ctx context.Context, u attempt.User) (attempt.User, error) {
	err := s.withExplicitID(ctx, "users", u.ID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO users (id, username, email)
			VALUES (COALESCE(NULLIF($1::bigint, 0), nextval(pg_get_serial_sequence('users', 'id'))), $2, $3)
			RETURNING id`,
			u.ID, u.Username, u.Email,
		).Scan(&u.ID)
	})
	if err != nil {
		return attempt.User{}, fmt.Errorf("postgres store: create user: %w", err)
	}
	return u, nil
}

// withExplicitID runs insert in a transaction and, when id was given, moves
// the table's sequence past it.
func (s *Store) withExplicitID(ctx context.Context, table string, id int64, insert func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insert(tx); err != nil {
			if pgCode(err) == codeUniqueViolation {
				return fmt.Errorf("%w: %w", attempt.ErrDuplicate, err)
			}
			return err
		}
		if id == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), (SELECT MAX(id) FROM %[1]s))`, table))
		return err
	})
}

// GetTopic implements [attempt.TopicStore].
func (s *Store) GetTopic(ctx context.Context, id int64) (*attempt.Topic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, category, difficulty, description FROM topics WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get topic %d: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[attempt.Topic])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, attempt.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get topic %d: %w", id, err)
	}
	return &t, nil
}

// GetUser implements [attempt.UserStore].
func (s *Store) GetUser(ctx context.Context, id int64) (*attempt.User, error) {
	var u attempt.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, attempt.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get user %d: %w", id, err)
	}
	return &u, nil
}

// Insert implements [attempt.AttemptStore]. A missing user surfaces as
// [attempt.ErrUserNotFound].
func (s *Store) Insert(ctx context.Context, a *attempt.Attempt) (int64, error) {
	const q = `
		INSERT INTO attempts
		    (user_id, topic_id, audio_url, transcript, wpm, filler_count, score, feedback_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, q,
		a.UserID,
		a.TopicID,
		a.AudioURL,
		a.Transcript,
		a.WPM,
		a.FillerCount,
		a.Score,
		string(a.Feedback),
		a.CreatedAt,
	).Scan(&id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return 0, fmt.Errorf("%w: %w", attempt.ErrUserNotFound, err)
		}
		return 0, fmt.Errorf("postgres store: insert attempt: %w", err)
	}
	return id, nil
}

// ListByUser implements [attempt.AttemptStore].
func (s *Store) ListByUser(ctx context.Context, userID int64, limit int) ([]attempt.Attempt, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, topic_id, audio_url, transcript, wpm, filler_count, score,
		       feedback_json::text, created_at
		FROM   attempts
		WHERE  user_id = $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`, userID, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list attempts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (attempt.Attempt, error) {
		var (
			a        attempt.Attempt
			feedback string
		)
		if err := row.Scan(
			&a.ID,
			&a.UserID,
			&a.TopicID,
			&a.AudioURL,
			&a.Transcript,
			&a.WPM,
			&a.FillerCount,
			&a.Score,
			&feedback,
			&a.CreatedAt,
		); err != nil {
			return attempt.Attempt{}, err
		}
		a.Feedback = []byte(feedback)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan attempts: %w", err)
	}
	if out == nil {
		out = []attempt.Attempt{}
	}
	return out, nil
}

// Ping checks a pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
