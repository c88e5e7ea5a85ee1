package identifier

import "context"

// CounterService hands out strictly increasing values per partition key.
// Concurrent callers on the same key always receive distinct values; gaps are allowed.
type CounterService interface {
	Next(ctx context.Context, partitionKey string) (int64, error)
}

// SequenceFloor reports the highest sequence already issued for a partition,
// or zero when none was issued.
type SequenceFloor interface {
	MaxSequence(ctx context.Context, partitionKey string) (int64, error)
}
