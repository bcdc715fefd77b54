// Package session stores password-stage sessions in Redis behind
// cryptographically random opaque IDs.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// deleteSessionScript removes the record and its user-index entry in one
// round trip. Deleting an absent session is a no-op, which keeps logout
// idempotent.
const deleteSessionScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] on the given Redis client. prefix
// namespaces all keys.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists a session with the given TTL and indexes it under its user.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID. Expiry is double-checked against the stored
// timestamp in case the Redis TTL lagged. Returns redis.Nil when absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if time.Now().Unix() > sess.ExpiresAt {
		if err := s.Delete(ctx, sessionID, sess.UserID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return sess, nil
}

// Update rewrites a session in place, preserving the remaining TTL. Used to
// mark MFA verification on an established session.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	key := s.key(sess.SessionID)

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return redis.Nil
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, key, data, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete invalidates a session. Safe to call on an already-deleted ID.
func (s *Store) Delete(ctx context.Context, sessionID, userID string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// DeleteAllForUser removes every tracked session for a user. A session
// created between the index read and the deletes is not captured; it will
// expire on its own TTL.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, sid := range sessionIDs {
		keys = append(keys, s.key(sid))
	}
	keys = append(keys, userKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Ping reports Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
