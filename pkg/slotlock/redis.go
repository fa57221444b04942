package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "consult:lock:"
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
}

// RedisLocker takes locks with SET NX PX so several API instances share
// one critical section per slot. The TTL bounds how long a crashed holder
// can block a slot.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisConfig
}

func NewRedisLocker(client *redis.Client, cfg RedisConfig) *RedisLocker {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, cfg: cfg}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key
	deadline := time.Now().Add(l.cfg.Wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire slot lock: %w", err)
		}
		if ok {
			return &redisLock{client: l.client, key: redisKey, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

// Release still runs when ctx is already canceled, so a request that timed
// out inside the critical section does not hold the slot until the TTL.
func (k *redisLock) Release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	n, err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release slot lock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
