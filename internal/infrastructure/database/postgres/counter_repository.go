package postgres

import (
	"context"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/infrastructure/monitoring"
	"customer-onboarding/internal/pkg/apperrors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// CounterRepository keeps one row per partition key. The upsert takes the row
// lock, so increments serialize per key and never across keys. It runs on the
// pool, outside the caller's transaction, so an aborted request leaves a gap.
type CounterRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ identifier.CounterService = (*CounterRepository)(nil)

func NewCounterRepository(db DBPool, logger *slog.Logger) *CounterRepository {
	if db == nil {
		panic("DBPool cannot be nil for CounterRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &CounterRepository{
		db:     db,
		logger: logger.With("component", "CounterRepository"),
	}
}

func (r *CounterRepository) Next(ctx context.Context, partitionKey string) (int64, error) {
	query := `
        INSERT INTO sequence_counters (partition_key, value, updated_at)
        VALUES ($1, 1, NOW())
        ON CONFLICT (partition_key)
        DO UPDATE SET value = sequence_counters.value + 1, updated_at = NOW()
        RETURNING value`

	start := time.Now()
	var value int64
	err := r.db.QueryRow(ctx, query, partitionKey).Scan(&value)
	monitoring.RecordCounterAllocation("postgres", monitoring.StatusLabel(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to increment sequence counter", slog.String("partitionKey", partitionKey), slog.Any("error", err))
		return 0, fmt.Errorf("%w: %w", apperrors.ErrCounterUnavailable, err)
	}

	r.logger.DebugContext(ctx, "Sequence counter incremented", slog.String("partitionKey", partitionKey), slog.Int64("value", value))
	return value, nil
}
