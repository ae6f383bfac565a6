package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockLost means the lock expired and may now belong to another process.
var ErrLockLost = errors.New("housekeeping lock lost")

// Lock keeps two housekeepers from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Extend pushes the expiry out again, or returns ErrLockLost.
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

type ownedStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExtendIfOwner(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	DelIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock is a lease keyed by a random owner token. Extend and Release
// are compare-and-set on the token, so a run that overstays its ttl can
// never touch a lock another housekeeper has since taken.
type RedisLock struct {
	store ownedStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store ownedStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store required")
	case key == "":
		return nil, errors.New("lock key required")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

func (l *RedisLock) Extend(ctx context.Context) error {
	if l.owner == "" {
		return ErrLockLost
	}
	ok, err := l.store.ExtendIfOwner(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.owner = ""
		return ErrLockLost
	}
	return nil
}

// Release is a no-op when the lock is not held.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.store.DelIfOwner(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
