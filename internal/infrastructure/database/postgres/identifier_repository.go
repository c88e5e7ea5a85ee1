package postgres

import (
	"context"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

const borrowerRoleCode = 1

type IdentifierRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ identifier.Repository = (*IdentifierRepository)(nil)
var _ identifier.SequenceFloor = (*IdentifierRepository)(nil)

func NewIdentifierRepository(db DBPool, logger *slog.Logger) *IdentifierRepository {
	if db == nil {
		panic("DBPool cannot be nil for IdentifierRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewIdentifierRepository, using default stderr handler")
	}
	return &IdentifierRepository{
		db:     db,
		logger: logger.With("component", "IdentifierRepository"),
	}
}

func (r *IdentifierRepository) FindSet(ctx context.Context, customerID int64, roleCode int) (identifier.Set, error) {
	return r.findSet(ctx, r.db, customerID, roleCode)
}

func (r *IdentifierRepository) FindSetInTx(ctx context.Context, tx pgx.Tx, customerID int64, roleCode int) (identifier.Set, error) {
	return r.findSet(ctx, tx, customerID, roleCode)
}

func (r *IdentifierRepository) findSet(ctx context.Context, q querier, customerID int64, roleCode int) (identifier.Set, error) {
	logCtx := r.logger.With(slog.Int64("customerID", customerID), slog.Int("roleType", roleCode))
	var set identifier.Set

	cif, err := r.findCIF(ctx, q, customerID, roleCode)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to load CIF", slog.Any("error", err))
		return identifier.Set{}, err
	}
	set.CIF = cif

	if roleCode == borrowerRoleCode {
		start := time.Now()
		err := q.QueryRow(ctx, `SELECT initial FROM borrower_initials WHERE customer_id = $1`, customerID).Scan(&set.Initial)
		observe("FindBorrowerInitial", start, err)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			logCtx.ErrorContext(ctx, "Failed to load borrower initial", slog.Any("error", err))
			return identifier.Set{}, fmt.Errorf("%w: failed to get borrower initial: %w", apperrors.ErrDatabase, err)
		}
	}

	accounts, err := r.findVirtualAccounts(ctx, q, customerID, roleCode)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to load virtual accounts", slog.Any("error", err))
		return identifier.Set{}, err
	}
	set.VirtualAccounts = accounts

	return set, nil
}

func (r *IdentifierRepository) findCIF(ctx context.Context, q querier, customerID int64, roleCode int) (*identifier.CIF, error) {
	query := `
        SELECT role_type, category_code, city_code, period, sequence
        FROM customer_cifs
        WHERE customer_id = $1 AND role_type = $2`

	start := time.Now()
	var cif identifier.CIF
	err := q.QueryRow(ctx, query, customerID, roleCode).Scan(
		&cif.RoleCode,
		&cif.CategoryCode,
		&cif.CityCode,
		&cif.Period,
		&cif.Sequence,
	)
	observe("FindCIF", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to get CIF: %w", apperrors.ErrDatabase, err)
	}
	return &cif, nil
}

// MaxSequence returns the highest stored CIF sequence for an A.B.C.MMYY
// partition, or zero for an unused partition.
func (r *IdentifierRepository) MaxSequence(ctx context.Context, partitionKey string) (int64, error) {
	query := `
        SELECT COALESCE(MAX(sequence), 0)
        FROM customer_cifs
        WHERE cif LIKE $1 || '.%'`

	start := time.Now()
	var seq int64
	err := r.db.QueryRow(ctx, query, partitionKey).Scan(&seq)
	observe("MaxCIFSequence", start, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read highest CIF sequence", slog.String("partitionKey", partitionKey), slog.Any("error", err))
		return 0, fmt.Errorf("%w: failed to read highest CIF sequence: %w", apperrors.ErrDatabase, err)
	}
	return seq, nil
}

func (r *IdentifierRepository) findVirtualAccounts(ctx context.Context, q querier, customerID int64, roleCode int) ([]identifier.VirtualAccount, error) {
	query := `
        SELECT bank_code, number, holder_name
        FROM virtual_accounts
        WHERE customer_id = $1 AND role_type = $2
        ORDER BY bank_code ASC`

	start := time.Now()
	rows, err := q.Query(ctx, query, customerID, roleCode)
	if err != nil {
		observe("FindVirtualAccounts", start, err)
		return nil, fmt.Errorf("%w: failed to query virtual accounts: %w", apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	var accounts []identifier.VirtualAccount
	for rows.Next() {
		var va identifier.VirtualAccount
		if err := rows.Scan(&va.BankCode, &va.Number, &va.HolderName); err != nil {
			observe("FindVirtualAccounts", start, err)
			return nil, fmt.Errorf("%w: failed to scan virtual account row: %w", apperrors.ErrDatabase, err)
		}
		accounts = append(accounts, va)
	}
	err = rows.Err()
	observe("FindVirtualAccounts", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: error iterating virtual account rows: %w", apperrors.ErrDatabase, err)
	}
	return accounts, nil
}

func (r *IdentifierRepository) SaveCIFInTx(ctx context.Context, tx pgx.Tx, customerID int64, cif identifier.CIF, formatted string) error {
	logCtx := r.logger.With(slog.Int64("customerID", customerID), slog.String("cif", formatted))

	query := `
        INSERT INTO customer_cifs (customer_id, role_type, category_code, city_code, period, sequence, cif, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	start := time.Now()
	_, err := tx.Exec(ctx, query, customerID, cif.RoleCode, cif.CategoryCode, cif.CityCode, cif.Period, cif.Sequence, formatted)
	observe("SaveCIFInTx", start, err)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to insert CIF", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}
	logCtx.DebugContext(ctx, "CIF stored")
	return nil
}

// ReserveInitialInTx claims initial for customerID. A concurrent claim on the
// same initial blocks until the other transaction ends.
func (r *IdentifierRepository) ReserveInitialInTx(ctx context.Context, tx pgx.Tx, customerID int64, initial string) error {
	logCtx := r.logger.With(slog.Int64("customerID", customerID), slog.String("initial", initial))

	query := `
        INSERT INTO borrower_initials (customer_id, initial, created_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT DO NOTHING`

	start := time.Now()
	cmdTag, err := tx.Exec(ctx, query, customerID, initial)
	observe("ReserveInitialInTx", start, err)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to reserve borrower initial", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: borrower initial %s", apperrors.ErrAlreadyExists, initial)
	}
	return nil
}

func (r *IdentifierRepository) ReleaseInitialInTx(ctx context.Context, tx pgx.Tx, customerID int64) error {
	start := time.Now()
	cmdTag, err := tx.Exec(ctx, `DELETE FROM borrower_initials WHERE customer_id = $1`, customerID)
	observe("ReleaseInitialInTx", start, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to release borrower initial", slog.Int64("customerID", customerID), slog.Any("error", err))
		return fmt.Errorf("%w: failed to release borrower initial: %w", apperrors.ErrDatabase, err)
	}
	r.logger.InfoContext(ctx, "Borrower initial released", slog.Int64("customerID", customerID), slog.Int64("rows", cmdTag.RowsAffected()))
	return nil
}

func (r *IdentifierRepository) SaveVirtualAccountsInTx(ctx context.Context, tx pgx.Tx, customerID int64, roleCode int, accounts []identifier.VirtualAccount) error {
	query := `
        INSERT INTO virtual_accounts (customer_id, role_type, bank_code, number, holder_name, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())`

	for _, va := range accounts {
		logCtx := r.logger.With(slog.Int64("customerID", customerID), slog.String("bankCode", va.BankCode))
		start := time.Now()
		_, err := tx.Exec(ctx, query, customerID, roleCode, va.BankCode, va.Number, va.HolderName)
		observe("SaveVirtualAccountsInTx", start, err)
		if err != nil {
			logCtx.ErrorContext(ctx, "Failed to insert virtual account", slog.Any("error", err))
			return translateDBError(err, logCtx)
		}
	}
	r.logger.DebugContext(ctx, "Virtual accounts stored", slog.Int64("customerID", customerID), slog.Int("count", len(accounts)))
	return nil
}
