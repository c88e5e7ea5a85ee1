package dto

import (
	"customer-onboarding/internal/domain/customer"
	"fmt"
	"strings"
)

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type TokenRequest struct {
	Username      string `json:"username" example:"ops-7"`
	PrincipalType string `json:"principalType" example:"backoffice"`
}

// Validate defaults an empty principal type to backoffice.
func (r *TokenRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return fmt.Errorf("username is required")
	}
	switch customer.PrincipalType(strings.ToLower(strings.TrimSpace(r.PrincipalType))) {
	case "", customer.PrincipalBackoffice:
		r.PrincipalType = string(customer.PrincipalBackoffice)
	case customer.PrincipalFrontOffice:
		r.PrincipalType = string(customer.PrincipalFrontOffice)
	default:
		return fmt.Errorf("principalType must be %q or %q", customer.PrincipalBackoffice, customer.PrincipalFrontOffice)
	}
	return nil
}

type TokenResponse struct {
	Token     string `json:"token" example:"Bearer eyJhbGciOiJIUzI1NiIs..."`
	ExpiresIn int64  `json:"expiresIn" example:"86400"`
}
