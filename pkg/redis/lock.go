package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker is a SET NX lock with an owner token, released through a Lua
// compare-and-delete so a holder never frees someone else's lock.
type Locker struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

func NewLocker(client *Client, keyPrefix string, ttl time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

type Lock struct {
	client *Client
	key    string
	value  string
}

func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	lockKey := l.keyPrefix + key
	token := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, locking.ErrLocked
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)
	return &Lock{client: l.client, key: lockKey, value: token}, nil
}

func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		// release even when the caller's ctx is gone so the key does not sit until TTL
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", lock.key)
		}
	}()

	return fn(ctx)
}
