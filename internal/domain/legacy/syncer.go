package legacy

import (
	"context"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
)

// Syncer writes and reads the legacy customer row. Push is a single
// synchronous attempt; any non-success comes back as a *SyncError.
type Syncer interface {
	Push(ctx context.Context, cs ChangeSet) (Ack, error)

	Fetch(ctx context.Context, migrationID int64) (*MirrorRecord, error)
}

// SyncError describes a failed legacy call. Ambiguous means the legacy side
// may have applied the write (timeouts, broken connections).
type SyncError struct {
	Reason     string
	StatusCode int
	Ambiguous  bool
	Cause      error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: legacy responded %d: %s", apperrors.ErrSyncFailure, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s: %s", apperrors.ErrSyncFailure, e.Reason)
}

func (e *SyncError) Unwrap() []error {
	if e.Cause == nil {
		return []error{apperrors.ErrSyncFailure}
	}
	return []error{apperrors.ErrSyncFailure, e.Cause}
}

// Rejected reports a definite refusal by the legacy system (validation class).
func (e *SyncError) Rejected() bool {
	return !e.Ambiguous && e.StatusCode >= 400 && e.StatusCode < 500
}

// IsAmbiguous reports whether err leaves the legacy outcome unknown. Errors
// that are not a *SyncError are treated as ambiguous.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Ambiguous
	}
	return true
}
