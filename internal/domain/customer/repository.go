package customer

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	FindRole(ctx context.Context, customerID int64, roleType RoleType) (*Role, error)

	FindRoleForUpdate(ctx context.Context, tx pgx.Tx, customerID int64, roleType RoleType) (*Role, error)

	UpdateRoleStatusInTx(ctx context.Context, tx pgx.Tx, change *PendingChange) error

	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error
}
