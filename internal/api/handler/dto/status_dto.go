package dto

import (
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/domain/legacy"
	"strings"
	"time"
)

type ChangeStatusRequest struct {
	TargetStatus string `json:"targetStatus" example:"ACTIVE"`
}

// Validate parses the requested status name or code.
func (r *ChangeStatusRequest) Validate() (customer.Status, error) {
	return customer.ParseStatus(strings.TrimSpace(r.TargetStatus))
}

type VirtualAccountResponse struct {
	BankCode   string `json:"bankCode" example:"BNI"`
	Number     string `json:"number" example:"98829120012032400001"`
	HolderName string `json:"holderName" example:"PT Sinar Abadi Jaya"`
}

type RoleStatusResponse struct {
	CustomerID      int64                    `json:"customerId" example:"42"`
	RoleType        string                   `json:"roleType" example:"BORROWER"`
	UserCategory    string                   `json:"userCategory" example:"INSTITUTIONAL"`
	Status          string                   `json:"status" example:"ACTIVE"`
	StatusCode      int                      `json:"statusCode" example:"4"`
	VerifiedAt      *time.Time               `json:"verifiedAt,omitempty"`
	FillFinishedAt  *time.Time               `json:"fillFinishedAt"`
	CIF             string                   `json:"cif,omitempty" example:"1.2.12.0324.00001"`
	BorrowerInitial string                   `json:"borrowerInitial,omitempty" example:"SAJI"`
	VirtualAccounts []VirtualAccountResponse `json:"virtualAccounts"`
	Idempotent      bool                     `json:"idempotent"`
	RequestID       string                   `json:"requestId,omitempty"`
	LegacyAckID     string                   `json:"legacyAckId,omitempty"`
}

func newRoleStatusResponse(role *customer.Role, ids identifier.Set, cif string) RoleStatusResponse {
	resp := RoleStatusResponse{
		CIF:             cif,
		BorrowerInitial: ids.Initial,
		VirtualAccounts: make([]VirtualAccountResponse, 0, len(ids.VirtualAccounts)),
	}
	if role != nil {
		resp.CustomerID = role.CustomerID
		resp.RoleType = role.RoleType.String()
		resp.UserCategory = role.UserCategory.String()
		resp.Status = role.Status.String()
		resp.StatusCode = role.Status.Code()
		resp.VerifiedAt = role.VerifiedAt
		resp.FillFinishedAt = role.FillFinishedAt
	}
	for _, va := range ids.VirtualAccounts {
		resp.VirtualAccounts = append(resp.VirtualAccounts, VirtualAccountResponse{
			BankCode:   va.BankCode,
			Number:     va.Number,
			HolderName: va.HolderName,
		})
	}
	return resp
}

func NewChangeStatusResponse(result *activation.Result) RoleStatusResponse {
	if result == nil {
		return RoleStatusResponse{VirtualAccounts: []VirtualAccountResponse{}}
	}
	resp := newRoleStatusResponse(result.Role, result.Identifiers, result.CIF)
	resp.Idempotent = result.Idempotent
	resp.LegacyAckID = result.AckID
	if !result.Idempotent {
		resp.RequestID = result.SagaID.String()
	}
	return resp
}

func NewRoleViewResponse(view *activation.RoleView) RoleStatusResponse {
	if view == nil {
		return RoleStatusResponse{VirtualAccounts: []VirtualAccountResponse{}}
	}
	return newRoleStatusResponse(view.Role, view.Identifiers, view.CIF)
}

type LegacyVirtualAccountResponse struct {
	BankCode string `json:"bankCode" example:"BNI"`
	Number   string `json:"number" example:"120012032400001"`
	Name     string `json:"name" example:"PT Sinar Abadi Jaya"`
}

type LegacyRecordResponse struct {
	MigrationID     int64                          `json:"migrationId" example:"42"`
	RoleType        int                            `json:"roleType" example:"1"`
	UserCategory    int                            `json:"userCategory" example:"2"`
	StatusCode      int                            `json:"statusCode" example:"4"`
	CIF             *string                        `json:"cif"`
	CIFSequence     *int64                         `json:"cifSequence"`
	Initial         *string                        `json:"initial"`
	VirtualAccounts []LegacyVirtualAccountResponse `json:"virtualAccounts"`
	FillFinishedAt  *time.Time                     `json:"fillFinishedAt"`
	UpdatedAt       time.Time                      `json:"updatedAt"`
}

func NewLegacyRecordResponse(record *legacy.MirrorRecord) LegacyRecordResponse {
	if record == nil {
		return LegacyRecordResponse{VirtualAccounts: []LegacyVirtualAccountResponse{}}
	}
	resp := LegacyRecordResponse{
		MigrationID:     record.MigrationID,
		RoleType:        record.RoleType,
		UserCategory:    record.UserCategory,
		StatusCode:      record.StatusCode,
		CIF:             record.CIF,
		CIFSequence:     record.CIFSequence,
		Initial:         record.Initial,
		VirtualAccounts: make([]LegacyVirtualAccountResponse, 0, len(record.VirtualAccounts)),
		FillFinishedAt:  record.FillFinishedAt,
		UpdatedAt:       record.UpdatedAt,
	}
	for _, va := range record.VirtualAccounts {
		resp.VirtualAccounts = append(resp.VirtualAccounts, LegacyVirtualAccountResponse(va))
	}
	return resp
}
