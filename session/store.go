// Package session provides the Redis-backed session store consumed by the
// gateway: an opaque session identifier mapped to a user id, with expiry
// owned entirely by the store's TTL.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-authgate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "ag:sess"

// Store is a Redis-backed authgate.SessionStore.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ authgate.SessionStore = (*Store)(nil)

type StoreOption func(*Store)

// NewStore creates a session Store over the given Redis client.
func NewStore(client redis.UniversalClient, opts ...StoreOption) *Store {
	s := &Store{
		redis:  client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// WithPrefix overrides the Redis key namespace.
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Save persists the session mapping with the given TTL. Zero TTL means no
// expiry.
func (s *Store) Save(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(sessionID), userID, ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "redis session save failed")
	}
	return nil
}

// Get returns the user id bound to the session identifier.
func (s *Store) Get(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.redis.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", authgate.ErrSessionNotFound
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "redis session lookup failed")
	}
	return userID, nil
}

// Delete removes the session mapping. Unknown identifiers are a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "redis session delete failed")
	}
	return nil
}
