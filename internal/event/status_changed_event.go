package event

import "time"

// StatusChangedEvent is emitted after a status change is committed on both sides.
type StatusChangedEvent struct {
	CustomerID int64     `json:"customerId"`
	RoleType   string    `json:"roleType"`
	OldStatus  string    `json:"oldStatus"`
	NewStatus  string    `json:"newStatus"`
	CIF        string    `json:"cif,omitempty"`
	Initial    string    `json:"initial,omitempty"`
	ChangedBy  string    `json:"changedBy"`
	RequestID  string    `json:"requestId"`
	Timestamp  time.Time `json:"timestamp"`
}
