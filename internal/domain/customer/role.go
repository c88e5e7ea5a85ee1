package customer

import (
	"customer-onboarding/internal/pkg/apperrors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type RoleType int

const (
	RoleBorrower RoleType = 1
	RoleLender   RoleType = 2
)

func (r RoleType) Code() int { return int(r) }

func (r RoleType) Valid() bool {
	return r == RoleBorrower || r == RoleLender
}

func (r RoleType) String() string {
	switch r {
	case RoleBorrower:
		return "BORROWER"
	case RoleLender:
		return "LENDER"
	default:
		return fmt.Sprintf("ROLE(%d)", int(r))
	}
}

// ParseRoleType accepts "borrower", "LENDER" or the numeric code.
func ParseRoleType(s string) (RoleType, error) {
	switch normalizeToken(s) {
	case "BORROWER", "1":
		return RoleBorrower, nil
	case "LENDER", "2":
		return RoleLender, nil
	}
	return 0, apperrors.NewValidationError("roleType", fmt.Sprintf("unknown role type %q", s))
}

type UserCategory int

const (
	CategoryIndividual    UserCategory = 1
	CategoryInstitutional UserCategory = 2
)

func (c UserCategory) Code() int { return int(c) }

func (c UserCategory) String() string {
	switch c {
	case CategoryIndividual:
		return "INDIVIDUAL"
	case CategoryInstitutional:
		return "INSTITUTIONAL"
	default:
		return fmt.Sprintf("CATEGORY(%d)", int(c))
	}
}

func ParseUserCategory(s string) (UserCategory, error) {
	switch normalizeToken(s) {
	case "INDIVIDUAL", "1":
		return CategoryIndividual, nil
	case "INSTITUTIONAL", "2":
		return CategoryInstitutional, nil
	}
	return 0, apperrors.NewValidationError("userCategory", fmt.Sprintf("unknown user category %q", s))
}

type Status int

const (
	StatusRegistered          Status = 1
	StatusCompletingData      Status = 2
	StatusPendingVerification Status = 3
	StatusActive              Status = 4
	StatusRejected            Status = 5
	StatusInactive            Status = 6
)

var statusNames = map[Status]string{
	StatusRegistered:          "REGISTERED",
	StatusCompletingData:      "COMPLETING_DATA",
	StatusPendingVerification: "PENDING_VERIFICATION",
	StatusActive:              "ACTIVE",
	StatusRejected:            "REJECTED",
	StatusInactive:            "INACTIVE",
}

func (s Status) Code() int { return int(s) }

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// ParseStatus accepts names in any case, with or without separators
// ("active", "PENDING_VERIFICATION", "PendingVerification") and numeric codes.
func ParseStatus(s string) (Status, error) {
	token := normalizeToken(s)
	if code, err := strconv.Atoi(token); err == nil {
		if st := Status(code); st.Valid() {
			return st, nil
		}
	}
	for st, name := range statusNames {
		if strings.ReplaceAll(name, "_", "") == token {
			return st, nil
		}
	}
	return 0, apperrors.NewValidationError("targetStatus", fmt.Sprintf("unknown status %q", s))
}

func normalizeToken(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// Role is one (customer, role type) onboarding record together with the
// profile fields identifier derivation reads.
type Role struct {
	CustomerID       int64
	RoleType         RoleType
	UserCategory     UserCategory
	Status           Status
	FullName         string
	CompanyName      string
	Email            string
	DomicileCityCode int
	RegisteredAt     time.Time
	VerifiedAt       *time.Time
	FillFinishedAt   *time.Time
	UpdatedAt        time.Time
}

// LegalName is the company name for institutions and the full name otherwise.
func (r *Role) LegalName() string {
	if r.UserCategory == CategoryInstitutional && strings.TrimSpace(r.CompanyName) != "" {
		return strings.TrimSpace(r.CompanyName)
	}
	return strings.TrimSpace(r.FullName)
}

func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	if r.VerifiedAt != nil {
		v := *r.VerifiedAt
		c.VerifiedAt = &v
	}
	if r.FillFinishedAt != nil {
		f := *r.FillFinishedAt
		c.FillFinishedAt = &f
	}
	return &c
}
