package customer

import (
	"customer-onboarding/internal/pkg/apperrors"
	"fmt"
	"time"
)

var (
	ErrNotFound = fmt.Errorf("customer role %w", apperrors.ErrNotFound)

	ErrNotBackoffice = fmt.Errorf("%w: only backoffice principals may change customer status", apperrors.ErrUnauthorized)
)

var allowedTransitions = map[Status][]Status{
	StatusPendingVerification: {StatusActive, StatusRejected},
	StatusActive:              {StatusInactive},
	StatusRejected:            {StatusInactive},
}

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PendingChange is a validated but uncommitted status move.
type PendingChange struct {
	CustomerID         int64
	RoleType           RoleType
	From               Status
	To                 Status
	VerifiedAt         *time.Time
	FillFinishedAt     *time.Time
	RequiresAllocation bool
	ReleaseInitial     bool
	ChangedBy          string
	ChangedAt          time.Time
}

// Transition validates moving role to target on behalf of actor. The role is not modified.
func Transition(role *Role, target Status, actor Actor, now time.Time) (*PendingChange, error) {
	if !actor.IsBackoffice() {
		return nil, ErrNotBackoffice
	}
	if role == nil {
		return nil, ErrNotFound
	}
	if !CanTransition(role.Status, target) {
		return nil, apperrors.NewTransitionError(role.Status, target)
	}

	change := &PendingChange{
		CustomerID:     role.CustomerID,
		RoleType:       role.RoleType,
		From:           role.Status,
		To:             target,
		VerifiedAt:     role.VerifiedAt,
		FillFinishedAt: role.FillFinishedAt,
		ChangedBy:      actor.ID,
		ChangedAt:      now,
	}

	switch target {
	case StatusActive:
		finished := now
		change.FillFinishedAt = &finished
		change.RequiresAllocation = true
		if change.VerifiedAt == nil {
			verified := now
			change.VerifiedAt = &verified
		}
	case StatusRejected:
		change.FillFinishedAt = nil
		change.ReleaseInitial = true
		if change.VerifiedAt == nil {
			verified := now
			change.VerifiedAt = &verified
		}
	}

	return change, nil
}

// Apply returns a copy of role with the change applied.
func (c *PendingChange) Apply(role *Role) *Role {
	next := role.Clone()
	next.Status = c.To
	next.VerifiedAt = c.VerifiedAt
	next.FillFinishedAt = c.FillFinishedAt
	next.UpdatedAt = c.ChangedAt
	return next
}
