package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when a lock is held by someone else
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing or extending a lock that
	// expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

// only the owner token may delete or extend a lock
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Lock is a held distributed lock
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// Locker hands out locks under a key prefix
type Locker struct {
	client    *Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "clover:lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the lock without waiting
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	defer observe("lock_acquire", time.Now())

	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)

	return &Lock{
		client: l.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// Release deletes the lock if it is still ours
func (lock *Lock) Release(ctx context.Context) error {
	defer observe("lock_release", time.Now())

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

// Extend resets the lock's TTL if it is still ours
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	defer observe("lock_extend", time.Now())

	result, err := extendScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.ttl = ttl
	return nil
}

// TTL is the lifetime last set on the lock
func (lock *Lock) TTL() time.Duration {
	return lock.ttl
}

// KeepAlive extends the lock every ttl/2 until ctx ends or an extension
// fails. It blocks; run it in its own goroutine.
func (lock *Lock) KeepAlive(ctx context.Context) error {
	interval := lock.ttl / 2
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lock.Extend(ctx, lock.ttl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lock.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to extend lock: %s", lock.key)
				return err
			}
		}
	}
}
