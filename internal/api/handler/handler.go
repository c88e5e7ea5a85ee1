package handler

import (
	"customer-onboarding/internal/api/handler/dto"
	"customer-onboarding/internal/domain/legacy"
	"customer-onboarding/internal/pkg/apperrors"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// respondError maps the apperrors taxonomy onto HTTP statuses. Internal
// detail never reaches the body for 5xx responses other than legacy
// rejections.
func respondError(w http.ResponseWriter, err error) {
	status, detail := http.StatusInternalServerError, dto.ErrorDetail{Message: "An unexpected error occurred."}
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError
	var syncErr *legacy.SyncError

	switch {
	case errors.As(err, &validationError):
		status = http.StatusBadRequest
		detail = dto.ErrorDetail{Code: "VALIDATION_FAILED", Message: validationError.Message, Field: validationError.Field}
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status = http.StatusBadRequest
		detail = dto.ErrorDetail{Code: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
		detail = dto.ErrorDetail{Code: "NOT_FOUND", Message: "Resource not found."}
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
		detail = dto.ErrorDetail{Code: "UNAUTHORIZED", Message: err.Error()}
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status = http.StatusConflict
		detail = dto.ErrorDetail{Code: "INVALID_TRANSITION", Message: err.Error()}
		if errors.As(err, &appErr) {
			detail.Message = appErr.Message
		}
	case errors.Is(err, apperrors.ErrIdentifierExhausted):
		status = http.StatusConflict
		detail = dto.ErrorDetail{Code: "IDENTIFIER_EXHAUSTED", Message: "No borrower initial is available for this customer."}
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrAlreadyExists):
		status = http.StatusConflict
		detail = dto.ErrorDetail{Code: "CONFLICT", Message: "The customer role was modified concurrently, retry the request."}
	case errors.Is(err, apperrors.ErrSyncFailure):
		status = http.StatusBadGateway
		detail = dto.ErrorDetail{Code: "SYNC_FAILURE", Message: "Legacy system is unavailable."}
		if errors.As(err, &syncErr) && syncErr.Rejected() {
			detail.Message = syncErr.Reason
		}
	case errors.Is(err, apperrors.ErrCounterUnavailable):
		status = http.StatusServiceUnavailable
		detail = dto.ErrorDetail{Code: "COUNTER_UNAVAILABLE", Message: "Identifier sequence is temporarily unavailable."}
	case errors.Is(err, apperrors.ErrBusy):
		status = http.StatusServiceUnavailable
		detail = dto.ErrorDetail{Code: "BUSY", Message: "Too many status changes in flight, retry the request."}
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	respondJSON(w, status, dto.ErrorResponse{Error: detail})
}

func getCustomerIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "customerID")
	if idStr == "" {
		return 0, apperrors.NewValidationError("customerID", "customerID not found in URL path")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("customerID", fmt.Sprintf("invalid customerID %q", idStr))
	}
	return id, nil
}
