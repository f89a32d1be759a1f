// Package redis implements host.Store backed by Redis, for deployments
// where enqueued task descriptors must survive a process restart. Tasks
// are stored as Hashes; the pending queue is a Sorted Set scored so
// expedited tasks pop first.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
//
// Note that only descriptors are durable. Tasks still pending after a
// restart refer to closures the new process never registered; executing
// them fails with worker.ErrRegistryDesync.
package redis

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/toyota-m2k/android-worker/host"
)

var _ host.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix overrides the default "worker" key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements host.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	prefix string
}

// New creates a Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		prefix: "worker",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }
