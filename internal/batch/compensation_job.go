package batch

import (
	"context"
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/infrastructure/cache"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Locker runs fn while holding a cluster-wide lock on key. It returns
// cache.ErrLockHeld without calling fn when another holder owns the key.
type Locker interface {
	TryWithLock(ctx context.Context, key string, expiry time.Duration, fn func(context.Context) error) error
}

type CompensationJobConfig struct {
	LockKey    string
	LockExpiry time.Duration
	MinAge     time.Duration
	BatchSize  int
}

// CompensationJob sweeps journal entries stranded between the legacy push and
// the local commit. Only one replica sweeps at a time.
type CompensationJob struct {
	service activation.Service
	locker  Locker
	cfg     CompensationJobConfig
	logger  *slog.Logger
}

func NewCompensationJob(service activation.Service, locker Locker, cfg CompensationJobConfig, logger *slog.Logger) *CompensationJob {
	if service == nil || locker == nil || logger == nil {
		panic("CompensationJob dependencies cannot be nil")
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "locks:compensation-sweeper"
	}
	if cfg.LockExpiry <= 0 {
		cfg.LockExpiry = 5 * time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &CompensationJob{
		service: service,
		locker:  locker,
		cfg:     cfg,
		logger:  logger.With("job", "CompensateStaleSagas"),
	}
}

func (j *CompensationJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting stale saga compensation job.",
		slog.Duration("min_age", j.cfg.MinAge),
		slog.Int("batch_size", j.cfg.BatchSize),
	)

	var summary activation.CompensationSummary
	err := j.locker.TryWithLock(ctx, j.cfg.LockKey, j.cfg.LockExpiry, func(lockCtx context.Context) error {
		var runErr error
		summary, runErr = j.service.CompensateStale(lockCtx, j.cfg.MinAge, j.cfg.BatchSize)
		return runErr
	})
	if errors.Is(err, cache.ErrLockHeld) {
		j.logger.InfoContext(ctx, "Another instance holds the sweeper lock, skipping run.")
		return nil
	}

	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("claimed", summary.Claimed),
		slog.Int("compensated", summary.Compensated),
		slog.Int("superseded", summary.Superseded),
		slog.Int("failed", summary.Failed),
	)
	if err != nil {
		summaryLog.ErrorContext(ctx, "Stale saga compensation job aborted.", slog.Any("error", err))
		return fmt.Errorf("compensation sweep failed: %w", err)
	}
	if summary.Failed > 0 {
		summaryLog.WarnContext(ctx, "Stale saga compensation job finished with errors.")
		return fmt.Errorf("job completed with %d errors", summary.Failed)
	}
	summaryLog.InfoContext(ctx, "Stale saga compensation job finished successfully.")
	return nil
}
