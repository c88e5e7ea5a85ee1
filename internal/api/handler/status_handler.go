package handler

import (
	"customer-onboarding/internal/api/handler/dto"
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/pkg/apperrors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type StatusHandler struct {
	service activation.Service
	logger  *slog.Logger
}

func NewStatusHandler(s activation.Service, l *slog.Logger) *StatusHandler {
	if s == nil {
		panic("activation service cannot be nil")
	}
	if l == nil {
		panic("logger cannot be nil")
	}
	return &StatusHandler{
		service: s,
		logger:  l.With("component", "StatusHandler"),
	}
}

// ChangeStatus handles PUT /customers/{customerID}/roles/{roleType}/status
// @Summary Change a customer role status
// @Description Moves a customer role to the target status. Activation allocates CIF, borrower initial and virtual accounts and synchronizes the legacy record; any failure leaves nothing behind.
// @Tags Status
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param roleType path string true "Role type (borrower, lender or numeric code)"
// @Param request body dto.ChangeStatusRequest true "Target status"
// @Success 200 {object} dto.RoleStatusResponse "Status changed, or already active"
// @Failure 400 {object} dto.ErrorResponse "Invalid path or body"
// @Failure 403 {object} dto.ErrorResponse "Caller is not a backoffice principal"
// @Failure 404 {object} dto.ErrorResponse "Customer role not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed or identifiers exhausted"
// @Failure 502 {object} dto.ErrorResponse "Legacy synchronization failed"
// @Failure 503 {object} dto.ErrorResponse "Sequence counter unavailable or too many changes in flight"
// @Router /customers/{customerID}/roles/{roleType}/status [put]
// @Security BearerAuth
func (h *StatusHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customerID, roleType, err := parseRolePath(r)
	if err != nil {
		h.logger.WarnContext(ctx, "Invalid role path", slog.Any("error", err))
		respondError(w, err)
		return
	}

	var req dto.ChangeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	target, err := req.Validate()
	if err != nil {
		respondError(w, err)
		return
	}

	actor, ok := customer.ActorFromContext(ctx)
	if !ok {
		h.logger.WarnContext(ctx, "Status change without authenticated actor")
		respondError(w, customer.ErrNotBackoffice)
		return
	}

	result, err := h.service.ChangeStatus(ctx, activation.StatusChangeRequest{
		CustomerID: customerID,
		RoleType:   roleType,
		Target:     target,
		Actor:      actor,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "Status change failed",
			slog.Int64("customerID", customerID),
			slog.String("target", target.String()),
			slog.Any("error", err))
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewChangeStatusResponse(result))
}

// GetRole handles GET /customers/{customerID}/roles/{roleType}
// @Summary Get a customer role
// @Description Returns the role status with its committed identifiers.
// @Tags Status
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param roleType path string true "Role type (borrower, lender or numeric code)"
// @Success 200 {object} dto.RoleStatusResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid path"
// @Failure 404 {object} dto.ErrorResponse "Customer role not found"
// @Router /customers/{customerID}/roles/{roleType} [get]
// @Security BearerAuth
func (h *StatusHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	customerID, roleType, err := parseRolePath(r)
	if err != nil {
		respondError(w, err)
		return
	}

	view, err := h.service.GetRole(r.Context(), customerID, roleType)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to load customer role", slog.Int64("customerID", customerID), slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewRoleViewResponse(view))
}

// GetLegacyRecord handles GET /customers/{customerID}/legacy
// @Summary Read the legacy mirror record
// @Description Reads the customer's row from the legacy system as it is stored there.
// @Tags Status
// @Produce json
// @Param customerID path int true "Customer ID"
// @Success 200 {object} dto.LegacyRecordResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid path"
// @Failure 404 {object} dto.ErrorResponse "No legacy record"
// @Failure 502 {object} dto.ErrorResponse "Legacy system unavailable"
// @Router /customers/{customerID}/legacy [get]
// @Security BearerAuth
func (h *StatusHandler) GetLegacyRecord(w http.ResponseWriter, r *http.Request) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}

	record, err := h.service.GetLegacyRecord(r.Context(), customerID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to read legacy record", slog.Int64("customerID", customerID), slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewLegacyRecordResponse(record))
}

func parseRolePath(r *http.Request) (int64, customer.RoleType, error) {
	customerID, err := getCustomerIDFromURL(r)
	if err != nil {
		return 0, 0, err
	}
	roleType, err := customer.ParseRoleType(chi.URLParam(r, "roleType"))
	if err != nil {
		return 0, 0, err
	}
	return customerID, roleType, nil
}
