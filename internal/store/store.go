// Package store opens the configured persistence backend for topics, users
// and attempts.
//
// Three drivers exist: [DriverMemory] (process memory, the default),
// [DriverSQLite] and [DriverPostgres]. Each implements [Store].
package store

import (
	"context"
	"fmt"

	"github.com/MrWong99/talk2me/internal/attempt"
	"github.com/MrWong99/talk2me/internal/store/memstore"
	"github.com/MrWong99/talk2me/internal/store/postgres"
	"github.com/MrWong99/talk2me/internal/store/sqlite"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is everything the server needs from a persistence backend.
type Store interface {
	attempt.TopicStore
	attempt.UserStore
	attempt.AttemptStore

	// CreateTopic and CreateUser insert a record. A zero ID is assigned by
	// the store. Taken IDs or usernames yield [attempt.ErrDuplicate].
	CreateTopic(ctx context.Context, t attempt.Topic) (attempt.Topic, error)
	CreateUser(ctx context.Context, u attempt.User) (attempt.User, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*memstore.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Options selects and configures a driver.
type Options struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
}

// Open returns the store for opts.Driver. An empty driver means memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return memstore.New(), nil
	case DriverSQLite:
		return sqlite.Open(ctx, opts.SQLitePath)
	case DriverPostgres:
		return postgres.Open(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}
