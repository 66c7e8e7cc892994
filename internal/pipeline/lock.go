package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
	"github.com/shiplinehq/shipline/pkg/logger"
)

// Locker is the slice of the redis client the run lock needs.
type Locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	RunLockKey(env string) string
}

// RunLock enforces the single-writer discipline over the staging tables.
// The value is an owner token so a crashed run's expired lock can never be
// released by a different process.
type RunLock struct {
	logg   *logger.Logger
	client Locker
	key    string
	owner  string
	ttl    time.Duration
}

// NewRunLock builds a lock scoped to the environment's staging tables.
func NewRunLock(logg *logger.Logger, client Locker, env string, ttl time.Duration) (*RunLock, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	return &RunLock{
		logg:   logg,
		client: client,
		key:    client.RunLockKey(env),
		owner:  uuid.NewString(),
		ttl:    ttl,
	}, nil
}

// Acquire takes the lock or fails if another run holds it.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire run lock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConfig, "another run holds the staging lock")
	}
	l.logg.Info(l.logg.WithField(ctx, "lock_key", l.key), "run lock acquired")
	return nil
}

// Release drops the lock if this process still owns it.
func (l *RunLock) Release(ctx context.Context) error {
	holder, err := l.client.Get(ctx, l.key)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inspect run lock")
	}
	if holder != l.owner {
		l.logg.Warn(l.logg.WithField(ctx, "lock_key", l.key), "run lock owned by another process, leaving it")
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release run lock")
	}
	return nil
}
