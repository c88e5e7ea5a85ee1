package postgres

import (
	"context"
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/domain/legacy"
	"customer-onboarding/internal/pkg/apperrors"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const selectSagaColumns = `
        SELECT id::text, customer_id, role_type, target_status, state, change_set, compensation,
               COALESCE(failure_reason, ''), compensated, created_at, updated_at
        FROM activation_sagas`

type SagaRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ activation.SagaRepository = (*SagaRepository)(nil)

func NewSagaRepository(db DBPool, logger *slog.Logger) *SagaRepository {
	if db == nil {
		panic("DBPool cannot be nil for SagaRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewSagaRepository, using default stderr handler")
	}
	return &SagaRepository{
		db:     db,
		logger: logger.With("component", "SagaRepository"),
	}
}

// Create inserts the journal row outside any request transaction.
func (r *SagaRepository) Create(ctx context.Context, saga *activation.Saga) error {
	logCtx := r.logger.With(slog.String("sagaID", saga.ID.String()), slog.Int64("customerID", saga.CustomerID))

	compensation, err := json.Marshal(saga.Compensation)
	if err != nil {
		return fmt.Errorf("%w: failed to encode compensation: %w", apperrors.ErrInternalServer, err)
	}
	var forward []byte
	if saga.ChangeSet != nil {
		if forward, err = json.Marshal(saga.ChangeSet); err != nil {
			return fmt.Errorf("%w: failed to encode change set: %w", apperrors.ErrInternalServer, err)
		}
	}

	query := `
        INSERT INTO activation_sagas (id, customer_id, role_type, target_status, state, change_set, compensation, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	start := time.Now()
	_, err = r.db.Exec(ctx, query,
		saga.ID,
		saga.CustomerID,
		saga.RoleType,
		saga.TargetStatus,
		string(saga.State),
		forward,
		compensation,
		saga.CreatedAt,
		saga.UpdatedAt,
	)
	observe("CreateSaga", start, err)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to insert saga", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}
	logCtx.DebugContext(ctx, "Saga created", slog.String("state", string(saga.State)))
	return nil
}

func (r *SagaRepository) LockInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	start := time.Now()
	var locked int
	err := tx.QueryRow(ctx, `SELECT 1 FROM activation_sagas WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	observe("LockSagaInTx", start, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to lock saga", slog.String("sagaID", id.String()), slog.Any("error", err))
		return translateDBError(err, r.logger)
	}
	return nil
}

func (r *SagaRepository) CompleteInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, forward legacy.ChangeSet) error {
	body, err := json.Marshal(forward)
	if err != nil {
		return fmt.Errorf("%w: failed to encode change set: %w", apperrors.ErrInternalServer, err)
	}

	query := `
        UPDATE activation_sagas
        SET state = $2, change_set = $3, updated_at = NOW()
        WHERE id = $1`

	start := time.Now()
	cmdTag, err := tx.Exec(ctx, query, id, string(activation.StateCommitted), body)
	observe("CompleteSagaInTx", start, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to complete saga", slog.String("sagaID", id.String()), slog.Any("error", err))
		return translateDBError(err, r.logger)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("saga %s %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *SagaRepository) MarkAborted(ctx context.Context, id uuid.UUID, reason string, compensated bool) error {
	return r.markAborted(ctx, r.db, "MarkSagaAborted", id, reason, compensated)
}

func (r *SagaRepository) MarkAbortedInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, compensated bool) error {
	return r.markAborted(ctx, tx, "MarkSagaAbortedInTx", id, reason, compensated)
}

// markAborted leaves rows that already reached a terminal state untouched.
func (r *SagaRepository) markAborted(ctx context.Context, q querier, op string, id uuid.UUID, reason string, compensated bool) error {
	logCtx := r.logger.With(slog.String("sagaID", id.String()))

	query := `
        UPDATE activation_sagas
        SET state = $2, failure_reason = $3, compensated = $4, updated_at = NOW()
        WHERE id = $1 AND state NOT IN ('COMMITTED', 'ABORTED')`

	start := time.Now()
	cmdTag, err := q.Exec(ctx, query, id, string(activation.StateAborted), reason, compensated)
	observe(op, start, err)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to mark saga aborted", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}
	if cmdTag.RowsAffected() == 0 {
		logCtx.WarnContext(ctx, "Saga already terminal, abort mark skipped")
		return nil
	}
	logCtx.InfoContext(ctx, "Saga aborted", slog.String("reason", reason), slog.Bool("compensated", compensated))
	return nil
}

func (r *SagaRepository) ClaimStaleInTx(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]*activation.Saga, error) {
	query := selectSagaColumns + `
        WHERE state NOT IN ('COMMITTED', 'ABORTED') AND updated_at < $1
        ORDER BY updated_at ASC
        LIMIT $2
        FOR UPDATE SKIP LOCKED`

	start := time.Now()
	rows, err := tx.Query(ctx, query, cutoff, limit)
	if err != nil {
		observe("ClaimStaleSagasInTx", start, err)
		r.logger.ErrorContext(ctx, "Failed to query stale sagas", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query stale sagas: %w", apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	sagas := make([]*activation.Saga, 0)
	for rows.Next() {
		saga, err := scanSaga(rows)
		if err != nil {
			observe("ClaimStaleSagasInTx", start, err)
			r.logger.ErrorContext(ctx, "Failed to scan saga row", slog.Any("error", err))
			return nil, err
		}
		sagas = append(sagas, saga)
	}
	err = rows.Err()
	observe("ClaimStaleSagasInTx", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: error iterating saga rows: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Claimed stale sagas", slog.Int("count", len(sagas)))
	return sagas, nil
}

func (r *SagaRepository) SupersededInTx(ctx context.Context, tx pgx.Tx, saga *activation.Saga) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM activation_sagas
            WHERE customer_id = $1 AND role_type = $2 AND created_at > $3 AND id <> $4
              AND (state = 'COMMITTED' OR (state = 'ABORTED' AND compensated))
        )`

	start := time.Now()
	var exists bool
	err := tx.QueryRow(ctx, query, saga.CustomerID, saga.RoleType, saga.CreatedAt, saga.ID).Scan(&exists)
	observe("SagaSupersededInTx", start, err)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check later sagas: %w", apperrors.ErrDatabase, err)
	}
	return exists, nil
}

func (r *SagaRepository) FindByID(ctx context.Context, id uuid.UUID) (*activation.Saga, error) {
	start := time.Now()
	saga, err := scanSaga(r.db.QueryRow(ctx, selectSagaColumns+"\n        WHERE id = $1", id))
	observe("FindSagaByID", start, err)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			r.logger.WarnContext(ctx, "Saga not found", slog.String("sagaID", id.String()))
		}
		return nil, err
	}
	return saga, nil
}

func scanSaga(row pgx.Row) (*activation.Saga, error) {
	var (
		saga         activation.Saga
		id           string
		state        string
		forward      []byte
		compensation []byte
	)
	err := row.Scan(
		&id,
		&saga.CustomerID,
		&saga.RoleType,
		&saga.TargetStatus,
		&state,
		&forward,
		&compensation,
		&saga.FailureReason,
		&saga.Compensated,
		&saga.CreatedAt,
		&saga.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("saga %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: failed to scan saga: %w", apperrors.ErrDatabase, err)
	}
	if saga.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: malformed saga id %q: %w", apperrors.ErrDatabase, id, err)
	}
	saga.State = activation.RequestState(state)

	if len(forward) > 0 {
		var cs legacy.ChangeSet
		if err := json.Unmarshal(forward, &cs); err != nil {
			return nil, fmt.Errorf("%w: failed to decode change set: %w", apperrors.ErrDatabase, err)
		}
		saga.ChangeSet = &cs
	}
	if err := json.Unmarshal(compensation, &saga.Compensation); err != nil {
		return nil, fmt.Errorf("%w: failed to decode compensation: %w", apperrors.ErrDatabase, err)
	}
	return &saga, nil
}
