package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusMismatch    int64 = 1
	rotateStatusRotated     int64 = 2
	rotateStatusInvalidBlob int64 = 3
)

// Lua indices are 1-based: the hash spans bytes 2..33 of the blob.
const rotateRefreshScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end

local version = string.byte(data, 1)
if version ~= 1 or #data < 33 then
  return 3
end

if string.sub(data, 2, 33) ~= ARGV[1] then
  return 1
end

redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 2
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// RedisStore is a Redis-backed [Registry]. Each user id maps to one key
// holding the encoded [Record] under "<prefix>:session:<userID>", so Put is a
// single SET.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Registry = (*RedisStore)(nil)

// NewRedisStore creates a [RedisStore] under the given key prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fd"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":session:" + userID
}

// Put overwrites the record for userID.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Put(ctx context.Context, userID string, rec *Record, ttl time.Duration) error {
	if err := validatePut(userID, rec, ttl); err != nil {
		return err
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the record for userID.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// CurrentToken returns the access token stored for userID.
func (s *RedisStore) CurrentToken(ctx context.Context, userID string) (string, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// Invalidate deletes the record for userID. Deleting a missing key is a no-op.
func (s *RedisStore) Invalidate(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically swaps in next if the stored refresh hash equals expected.
// The remaining TTL is replaced by ttl.
//
//	Performance: 1 Redis EVALSHA.
func (s *RedisStore) Rotate(ctx context.Context, userID string, expected [32]byte, next *Record, ttl time.Duration) error {
	if err := validatePut(userID, next, ttl); err != nil {
		return err
	}
	data, err := Encode(next)
	if err != nil {
		return err
	}

	status, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(userID)},
		expected[:],
		data,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrRefreshHashMismatch
	case rotateStatusInvalidBlob:
		return ErrCorruptRecord
	default:
		return fmt.Errorf("unexpected rotate status %d", status)
	}
}
