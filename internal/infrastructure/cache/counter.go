package cache

import (
	"context"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/infrastructure/monitoring"
	"customer-onboarding/internal/pkg/apperrors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrExisting increments a counter only when its key is present and
// returns -1 otherwise.
var incrExisting = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("INCR", KEYS[1])
`)

// RedisCounter draws sequence values with INCR, which Redis executes
// atomically per key. Keys never expire. A missing key is seeded from the
// floor before the first increment, so a flushed or restored Redis never
// reissues a sequence that is already stored.
type RedisCounter struct {
	client    *redis.Client
	keyPrefix string
	floor     identifier.SequenceFloor
	logger    *slog.Logger
}

var _ identifier.CounterService = (*RedisCounter)(nil)

// NewRedisCounter builds a counter. A nil floor seeds missing keys from zero.
func NewRedisCounter(client *redis.Client, keyPrefix string, floor identifier.SequenceFloor, logger *slog.Logger) *RedisCounter {
	if client == nil {
		panic("redis client cannot be nil for RedisCounter")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &RedisCounter{
		client:    client,
		keyPrefix: keyPrefix,
		floor:     floor,
		logger:    logger.With("component", "RedisCounter"),
	}
}

func (c *RedisCounter) Next(ctx context.Context, partitionKey string) (int64, error) {
	key := c.keyPrefix + partitionKey

	start := time.Now()
	value, err := c.next(ctx, key, partitionKey)
	monitoring.RecordCounterAllocation("redis", monitoring.StatusLabel(err), time.Since(start))
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to increment sequence counter", slog.String("key", key), slog.Any("error", err))
		return 0, fmt.Errorf("%w: %w", apperrors.ErrCounterUnavailable, err)
	}

	c.logger.DebugContext(ctx, "Sequence counter incremented", slog.String("key", key), slog.Int64("value", value))
	return value, nil
}

func (c *RedisCounter) next(ctx context.Context, key, partitionKey string) (int64, error) {
	value, err := incrExisting.Run(ctx, c.client, []string{key}).Int64()
	if err != nil || value >= 0 {
		return value, err
	}

	var seed int64
	if c.floor != nil {
		if seed, err = c.floor.MaxSequence(ctx, partitionKey); err != nil {
			return 0, fmt.Errorf("seed %s: %w", key, err)
		}
	}
	seeded, err := c.client.SetNX(ctx, key, seed, 0).Result()
	if err != nil {
		return 0, err
	}
	if seeded {
		c.logger.WarnContext(ctx, "Sequence counter missing, seeded from stored identifiers", slog.String("key", key), slog.Int64("seed", seed))
	}
	return c.client.Incr(ctx, key).Result()
}
