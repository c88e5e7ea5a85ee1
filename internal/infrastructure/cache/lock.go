package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock is held by another owner")

// LockManager hands out cluster-wide mutexes backed by Redis.
type LockManager struct {
	rs     *redsync.Redsync
	logger *slog.Logger
}

func NewLockManager(client *redis.Client, logger *slog.Logger) *LockManager {
	if client == nil {
		panic("redis client cannot be nil for LockManager")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &LockManager{
		rs:     redsync.New(goredis.NewPool(client)),
		logger: logger.With("component", "LockManager"),
	}
}

// TryWithLock runs fn while holding key. It makes a single acquisition
// attempt and returns ErrLockHeld when another owner has the key.
func (m *LockManager) TryWithLock(ctx context.Context, key string, expiry time.Duration, fn func(context.Context) error) error {
	if key == "" {
		return errors.New("lock key cannot be empty")
	}
	if expiry <= 0 {
		return errors.New("lock expiry must be greater than 0")
	}
	logCtx := m.logger.With(slog.String("lockKey", key))

	mutex := m.rs.NewMutex(key, redsync.WithExpiry(expiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		if isTaken(err) {
			logCtx.DebugContext(ctx, "Lock held elsewhere, skipping")
			return ErrLockHeld
		}
		logCtx.ErrorContext(ctx, "Failed to acquire lock", slog.Any("error", err))
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	logCtx.DebugContext(ctx, "Lock acquired")

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			logCtx.WarnContext(ctx, "Failed to release lock", slog.Bool("unlockOk", ok), slog.Any("error", err))
		}
	}()

	return fn(ctx)
}

func isTaken(err error) bool {
	var takenPtr *redsync.ErrTaken
	var taken redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &takenPtr) || errors.As(err, &taken)
}
