package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hongminglow/storefront-be/internal/clock"
)

var _ Store = (*RedisStore)(nil)

const defaultKeyPrefix = "otp:pending:"

// verifyScript compares and deletes in one step so two confirmations cannot both win.
var verifyScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code or code ~= ARGV[1] then
	return false
end
local name = redis.call('HGET', KEYS[1], 'name')
local hash = redis.call('HGET', KEYS[1], 'password_hash')
redis.call('DEL', KEYS[1])
return {name, hash}
`)

// RedisStore shares pending registrations between server instances. Expiry is the key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  clock.Clock
}

// NewRedisStore keeps records under the default key prefix with native key expiry.
func NewRedisStore(client *redis.Client, clk clock.Clock) *RedisStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &RedisStore{client: client, prefix: defaultKeyPrefix, clock: clk}
}

func (s *RedisStore) key(identifier string) string {
	return s.prefix + identifier
}

func (s *RedisStore) Save(ctx context.Context, identifier string, payload Payload, code string, ttl time.Duration) error {
	key := s.key(identifier)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"code":          code,
			"name":          payload.Name,
			"password_hash": payload.PasswordHash,
			"created_at":    s.clock.Now().UnixMilli(),
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pending verification: %w", err)
	}
	return nil
}

func (s *RedisStore) Verify(ctx context.Context, identifier, code string) (Payload, error) {
	vals, err := verifyScript.Run(ctx, s.client, []string{s.key(identifier)}, code).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Payload{}, ErrNotFound
		}
		return Payload{}, fmt.Errorf("verify pending verification: %w", err)
	}
	if len(vals) != 2 {
		return Payload{}, ErrNotFound
	}
	return Payload{Name: vals[0], PasswordHash: vals[1]}, nil
}
