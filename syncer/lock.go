package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

var ErrLockHeld = errors.New("another sync of this family and plant is running")

// Locker serializes runs of one family and plant across processes.
type Locker interface {
	// Obtain returns a release func, or ErrLockHeld when the key is taken.
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

func LockKey(family, plant string) string {
	return fmt.Sprintf("sync:%s:%s", family, plant)
}

// RedisLocker is a Locker on top of redislock. It does not wait for a held lock.
type RedisLocker struct {
	Client *redislock.Client
}

func (l RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.Client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
