package clustercache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/redis"
)

var (
	// ErrLocked is returned by a Locker when another holder has the key.
	ErrLocked = errors.New("key is locked")
	// ErrLockLost is the cause of a held context cancelled because the lock
	// expired or was taken over.
	ErrLockLost = errors.New("lock lost")
)

// Locker grants exclusive, non-blocking access to a key. Work done under the
// lock runs on the returned held context, which is cancelled once the lock
// is lost. release must be called; later calls are no-ops.
type Locker interface {
	TryLock(ctx context.Context, key string) (held context.Context, release func(), err error)
}

// LocalLocker serializes holders inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker serializes holders across replicas. The lock is kept alive
// while held so long rebuilds do not outlive the TTL.
type RedisLocker struct {
	locker *redis.Locker
	ttl    time.Duration
	logger ectologger.Logger
}

func NewRedisLocker(locker *redis.Locker, ttl time.Duration, logger ectologger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{
		locker: locker,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (context.Context, func(), error) {
	lock, err := l.locker.Acquire(ctx, key, l.ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, nil, ErrLocked
	}
	if err != nil {
		return nil, nil, err
	}

	held, lost := context.WithCancelCause(ctx)
	keepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := lock.KeepAlive(keepCtx); err != nil {
			l.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("Lost lock, cancelling holder")
			lost(ErrLockLost)
		}
	}()

	var once sync.Once
	return held, func() {
		once.Do(func() {
			stop()
			<-done
			lost(nil)
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
				l.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("Failed to release lock")
			}
		})
	}, nil
}
