package identifier

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Set is everything allocated for one customer role.
type Set struct {
	CIF             *CIF
	Initial         string
	VirtualAccounts []VirtualAccount
}

func (s Set) Clone() Set {
	out := Set{Initial: s.Initial}
	if s.CIF != nil {
		c := *s.CIF
		out.CIF = &c
	}
	if len(s.VirtualAccounts) > 0 {
		out.VirtualAccounts = append([]VirtualAccount(nil), s.VirtualAccounts...)
	}
	return out
}

type Repository interface {
	FindSet(ctx context.Context, customerID int64, roleCode int) (Set, error)

	FindSetInTx(ctx context.Context, tx pgx.Tx, customerID int64, roleCode int) (Set, error)

	SaveCIFInTx(ctx context.Context, tx pgx.Tx, customerID int64, cif CIF, formatted string) error

	// ReserveInitialInTx returns apperrors.ErrAlreadyExists when another borrower holds initial.
	ReserveInitialInTx(ctx context.Context, tx pgx.Tx, customerID int64, initial string) error

	ReleaseInitialInTx(ctx context.Context, tx pgx.Tx, customerID int64) error

	SaveVirtualAccountsInTx(ctx context.Context, tx pgx.Tx, customerID int64, roleCode int, accounts []VirtualAccount) error
}
