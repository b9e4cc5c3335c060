package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	defaultRedisLockTTL   = 30 * time.Second
	defaultRedisLockRetry = 25 * time.Millisecond
)

// RedisLocker serialises keys across processes with redislock. The TTL bounds
// how long a crashed holder can block a key.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logg   *logger.Logger
}

// RedisLockerParams configure RedisLocker.
type RedisLockerParams struct {
	Client        redislock.RedisClient
	TTL           time.Duration
	RetryInterval time.Duration
	Prefix        string
	Logger        *logger.Logger
}

// NewRedisLocker builds a RedisLocker.
func NewRedisLocker(params RedisLockerParams) (*RedisLocker, error) {
	if params.Client == nil {
		return nil, errors.New("redis client required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultRedisLockTTL
	}
	retry := params.RetryInterval
	if retry <= 0 {
		retry = defaultRedisLockRetry
	}
	return &RedisLocker{
		client: redislock.New(params.Client),
		ttl:    ttl,
		retry:  retry,
		prefix: params.Prefix,
		logg:   params.Logger,
	}, nil
}

// Acquire retries until the lock is obtained or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := l.prefix + name
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// The holder has committed; release must not inherit its deadline.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			if l.logg != nil {
				l.logg.Warn(l.logg.WithField(context.Background(), "lock", key), "failed to release redis lock")
			}
		}
	}, nil
}
