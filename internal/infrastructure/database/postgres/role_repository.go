package postgres

import (
	"context"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

const selectRoleColumns = `
        SELECT r.customer_id, r.role_type, r.user_category, r.status,
               c.full_name, COALESCE(c.company_name, ''), c.email, c.domicile_city_code,
               r.registered_at, r.verified_at, r.fill_finished_at, r.updated_at
        FROM customer_roles r
        JOIN customers c ON c.id = r.customer_id
        WHERE r.customer_id = $1 AND r.role_type = $2`

type RoleRepository struct {
	txManager
	db     DBPool
	logger *slog.Logger
}

var _ customer.Repository = (*RoleRepository)(nil)

func NewRoleRepository(db DBPool, logger *slog.Logger) *RoleRepository {
	if db == nil {
		panic("DBPool cannot be nil for RoleRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewRoleRepository, using default stderr handler")
	}
	logger = logger.With("component", "RoleRepository")
	return &RoleRepository{
		txManager: txManager{db: db, logger: logger},
		db:        db,
		logger:    logger,
	}
}

func (r *RoleRepository) FindRole(ctx context.Context, customerID int64, roleType customer.RoleType) (*customer.Role, error) {
	return r.findRole(ctx, r.db, "FindRole", selectRoleColumns, customerID, roleType)
}

// FindRoleForUpdate locks the role row until tx ends. The customers row is not locked.
func (r *RoleRepository) FindRoleForUpdate(ctx context.Context, tx pgx.Tx, customerID int64, roleType customer.RoleType) (*customer.Role, error) {
	return r.findRole(ctx, tx, "FindRoleForUpdate", selectRoleColumns+"\n        FOR UPDATE OF r", customerID, roleType)
}

func (r *RoleRepository) findRole(ctx context.Context, q querier, op, query string, customerID int64, roleType customer.RoleType) (*customer.Role, error) {
	logCtx := r.logger.With(slog.String("operation", op), slog.Int64("customerID", customerID), slog.Int("roleType", roleType.Code()))
	logCtx.DebugContext(ctx, "Loading customer role")

	start := time.Now()
	var (
		role                   customer.Role
		roleCode, categoryCode int
		statusCode             int
	)
	err := q.QueryRow(ctx, query, customerID, roleType.Code()).Scan(
		&role.CustomerID,
		&roleCode,
		&categoryCode,
		&statusCode,
		&role.FullName,
		&role.CompanyName,
		&role.Email,
		&role.DomicileCityCode,
		&role.RegisteredAt,
		&role.VerifiedAt,
		&role.FillFinishedAt,
		&role.UpdatedAt,
	)
	observe(op, start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logCtx.WarnContext(ctx, "Customer role not found")
			return nil, customer.ErrNotFound
		}
		logCtx.ErrorContext(ctx, "Failed to query customer role", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get customer role: %w", apperrors.ErrDatabase, err)
	}

	role.RoleType = customer.RoleType(roleCode)
	role.UserCategory = customer.UserCategory(categoryCode)
	role.Status = customer.Status(statusCode)
	return &role, nil
}

// UpdateRoleStatusInTx writes change guarded by the expected prior status.
func (r *RoleRepository) UpdateRoleStatusInTx(ctx context.Context, tx pgx.Tx, change *customer.PendingChange) error {
	logCtx := r.logger.With(slog.Int64("customerID", change.CustomerID), slog.String("to", change.To.String()))

	query := `
        UPDATE customer_roles
        SET status = $1,
            verified_at = $2,
            fill_finished_at = $3,
            status_changed_by = $4,
            updated_at = $5
        WHERE customer_id = $6 AND role_type = $7 AND status = $8`

	start := time.Now()
	cmdTag, err := tx.Exec(ctx, query,
		change.To.Code(),
		change.VerifiedAt,
		change.FillFinishedAt,
		change.ChangedBy,
		change.ChangedAt,
		change.CustomerID,
		change.RoleType.Code(),
		change.From.Code(),
	)
	observe("UpdateRoleStatusInTx", start, err)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to update role status", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}
	if cmdTag.RowsAffected() == 0 {
		logCtx.WarnContext(ctx, "Role status changed underneath the transaction")
		return fmt.Errorf("%w: customer %d role %s is no longer %s", apperrors.ErrConflict, change.CustomerID, change.RoleType, change.From)
	}

	logCtx.InfoContext(ctx, "Role status updated")
	return nil
}
