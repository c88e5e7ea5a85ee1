package activation

import (
	"context"
	"customer-onboarding/internal/domain/legacy"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RequestState tracks a status change request through the coordinator.
type RequestState string

const (
	StateReceived            RequestState = "RECEIVED"
	StateValidated           RequestState = "VALIDATED"
	StateIdentifiersReserved RequestState = "IDENTIFIERS_RESERVED"
	StateLegacySynced        RequestState = "LEGACY_SYNCED"
	StateCommitted           RequestState = "COMMITTED"
	StateAborted             RequestState = "ABORTED"
)

func (s RequestState) Terminal() bool {
	return s == StateCommitted || s == StateAborted
}

// Saga is the journal row for one status change that reached the legacy
// step. Compensation holds the legacy row image from before the request.
type Saga struct {
	ID            uuid.UUID
	CustomerID    int64
	RoleType      int
	TargetStatus  int
	State         RequestState
	ChangeSet     *legacy.ChangeSet
	Compensation  legacy.ChangeSet
	FailureReason string
	// Compensated is set on aborted sagas whose compensation image reached legacy.
	Compensated   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SagaRepository persists the journal. Create and MarkAborted run in their
// own short transactions so they survive a rollback of the request.
type SagaRepository interface {
	Create(ctx context.Context, saga *Saga) error

	LockInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	CompleteInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, forward legacy.ChangeSet) error

	// MarkAborted closes the saga. compensated records that the compensation
	// image was written to legacy.
	MarkAborted(ctx context.Context, id uuid.UUID, reason string, compensated bool) error

	MarkAbortedInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, compensated bool) error

	// ClaimStaleInTx locks non-terminal sagas last touched before cutoff,
	// skipping rows held by in-flight requests.
	ClaimStaleInTx(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]*Saga, error)

	// SupersededInTx reports whether a later saga for the same role rewrote
	// the legacy row, either by committing or by a successful compensation.
	SupersededInTx(ctx context.Context, tx pgx.Tx, saga *Saga) (bool, error)

	FindByID(ctx context.Context, id uuid.UUID) (*Saga, error)
}
