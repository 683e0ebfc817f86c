// Package lock provides distributed mutual exclusion for pipeline runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by an unlock whose key expired or was taken over.
var ErrNotHeld = errors.New("lock: not held")

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

const defaultPollInterval = 100 * time.Millisecond

// unlockScript deletes the key only if it still carries our token.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker implements a SET NX PX lock with token-checked release.
type RedisLocker struct {
	client backend.UniversalClient
	prefix string
	poll   time.Duration
}

// NewRedisLocker creates a locker whose keys are prefixed with prefix.
func NewRedisLocker(client backend.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, poll: defaultPollInterval}
}

// Lock blocks until key is acquired or ctx is done. The lock expires after
// ttl if never released.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := unlockScript.Run(ctx, l.client, []string{lockKey}, token).Int()
				if err != nil {
					return fmt.Errorf("release lock %s: %w", key, err)
				}
				if n == 0 {
					return ErrNotHeld
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewClient opens a Redis client for url (redis://host:port/db).
func NewClient(ctx context.Context, url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
