package legacy

import (
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/identifier"
	"time"
)

type VirtualAccount struct {
	BankCode string `json:"bankCode"`
	Number   string `json:"number"`
	Name     string `json:"name"`
}

// ChangeSet is the full legacy row image for one customer role. Null fields
// clear the legacy column, so the same shape serves forward writes and
// compensation.
type ChangeSet struct {
	RequestID       string           `json:"requestId"`
	MigrationID     int64            `json:"migrationId"`
	RoleType        int              `json:"roleType"`
	UserCategory    int              `json:"userCategory"`
	StatusCode      int              `json:"statusCode"`
	Email           string           `json:"email,omitempty"`
	CIF             *string          `json:"cif"`
	CIFSequence     *int64           `json:"cifSequence"`
	Initial         *string          `json:"initial"`
	VirtualAccounts []VirtualAccount `json:"virtualAccounts"`
	FillFinishedAt  *time.Time       `json:"fillFinishedAt"`
	Compensation    bool             `json:"compensation,omitempty"`
}

// MirrorRecord is the legacy row as read back.
type MirrorRecord struct {
	ChangeSet
	UpdatedAt time.Time `json:"updatedAt"`
}

type Ack struct {
	AckID       string `json:"ackId"`
	MigrationID int64  `json:"migrationId"`
}

// Snapshot renders role and ids into the legacy row image. Virtual account
// numbers lose their bank prefix of prefixLen digits.
func Snapshot(role *customer.Role, ids identifier.Set, cifWidth, prefixLen int) ChangeSet {
	cs := ChangeSet{
		MigrationID:     role.CustomerID,
		RoleType:        role.RoleType.Code(),
		UserCategory:    role.UserCategory.Code(),
		StatusCode:      role.Status.Code(),
		Email:           role.Email,
		VirtualAccounts: []VirtualAccount{},
	}
	if role.FillFinishedAt != nil {
		f := *role.FillFinishedAt
		cs.FillFinishedAt = &f
	}
	if ids.CIF != nil {
		formatted := ids.CIF.Format(cifWidth)
		seq := ids.CIF.Sequence
		cs.CIF = &formatted
		cs.CIFSequence = &seq
	}
	if ids.Initial != "" {
		initial := ids.Initial
		cs.Initial = &initial
	}
	for _, va := range ids.VirtualAccounts {
		cs.VirtualAccounts = append(cs.VirtualAccounts, VirtualAccount{
			BankCode: va.BankCode,
			Number:   identifier.LegacyNumber(va.Number, prefixLen),
			Name:     va.HolderName,
		})
	}
	return cs
}
