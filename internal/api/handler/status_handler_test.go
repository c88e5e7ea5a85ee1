package handler

import (
	"bytes"
	"context"
	"customer-onboarding/internal/api/handler/dto"
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/domain/legacy"
	"customer-onboarding/internal/pkg/apperrors"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockActivationService struct {
	mock.Mock
}

func (m *MockActivationService) ChangeStatus(ctx context.Context, req activation.StatusChangeRequest) (*activation.Result, error) {
	args := m.Called(ctx, req)
	if result, ok := args.Get(0).(*activation.Result); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockActivationService) GetRole(ctx context.Context, customerID int64, roleType customer.RoleType) (*activation.RoleView, error) {
	args := m.Called(ctx, customerID, roleType)
	if view, ok := args.Get(0).(*activation.RoleView); ok {
		return view, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockActivationService) GetLegacyRecord(ctx context.Context, customerID int64) (*legacy.MirrorRecord, error) {
	args := m.Called(ctx, customerID)
	if record, ok := args.Get(0).(*legacy.MirrorRecord); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockActivationService) CompensateStale(ctx context.Context, minAge time.Duration, limit int) (activation.CompensationSummary, error) {
	args := m.Called(ctx, minAge, limit)
	return args.Get(0).(activation.CompensationSummary), args.Error(1)
}

var backoffice = customer.Actor{ID: "ops-7", Type: customer.PrincipalBackoffice}

func withRouteParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func statusRequest(t *testing.T, customerID, roleType, body string, actor *customer.Actor) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/customers/%s/roles/%s/status", customerID, roleType), bytes.NewBufferString(body))
	if actor != nil {
		req = req.WithContext(customer.ContextWithActor(req.Context(), *actor))
	}
	return withRouteParams(req, map[string]string{"customerID": customerID, "roleType": roleType})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func activeResult() *activation.Result {
	finished := time.Date(2024, time.March, 18, 9, 30, 0, 0, time.UTC)
	cif := identifier.CIF{RoleCode: 1, CategoryCode: 2, CityCode: 12, Period: "0324", Sequence: 1}
	return &activation.Result{
		Role: &customer.Role{
			CustomerID:     42,
			RoleType:       customer.RoleBorrower,
			UserCategory:   customer.CategoryInstitutional,
			Status:         customer.StatusActive,
			VerifiedAt:     &finished,
			FillFinishedAt: &finished,
		},
		Identifiers: identifier.Set{
			CIF:     &cif,
			Initial: "SAJI",
			VirtualAccounts: []identifier.VirtualAccount{
				{BankCode: "BNI", Number: "98829120012032400001", HolderName: "PT Sinar Abadi Jaya"},
			},
		},
		CIF:    "1.2.12.0324.00001",
		SagaID: uuid.MustParse("6f1c1f0a-6c1d-4d0c-9a53-54f1b1f6f0a1"),
		AckID:  "ack-1",
		State:  activation.StateCommitted,
	}
}

func TestStatusHandler_ChangeStatus(t *testing.T) {
	t.Run("successfully activates role", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)
		svc.On("ChangeStatus", mock.Anything, activation.StatusChangeRequest{
			CustomerID: 42,
			RoleType:   customer.RoleBorrower,
			Target:     customer.StatusActive,
			Actor:      backoffice,
		}).Return(activeResult(), nil)

		rec := httptest.NewRecorder()
		h.ChangeStatus(rec, statusRequest(t, "42", "borrower", `{"targetStatus":"active"}`, &backoffice))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.RoleStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, int64(42), resp.CustomerID)
		assert.Equal(t, "ACTIVE", resp.Status)
		assert.Equal(t, 4, resp.StatusCode)
		assert.Equal(t, "1.2.12.0324.00001", resp.CIF)
		assert.Equal(t, "SAJI", resp.BorrowerInitial)
		require.Len(t, resp.VirtualAccounts, 1)
		assert.Equal(t, "98829120012032400001", resp.VirtualAccounts[0].Number)
		assert.Equal(t, "6f1c1f0a-6c1d-4d0c-9a53-54f1b1f6f0a1", resp.RequestID)
		assert.False(t, resp.Idempotent)
		require.NotNil(t, resp.FillFinishedAt)
		svc.AssertExpectations(t)
	})

	t.Run("idempotent activation omits request id", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)
		result := activeResult()
		result.Idempotent = true
		result.SagaID = uuid.Nil
		result.AckID = ""
		svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(result, nil)

		rec := httptest.NewRecorder()
		h.ChangeStatus(rec, statusRequest(t, "42", "1", `{"targetStatus":"4"}`, &backoffice))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.RoleStatusResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Idempotent)
		assert.Empty(t, resp.RequestID)
	})

	t.Run("rejects invalid path and body before calling service", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)

		cases := []struct {
			name, customerID, roleType, body, field string
		}{
			{name: "non numeric customer", customerID: "abc", roleType: "borrower", body: `{"targetStatus":"ACTIVE"}`, field: "customerID"},
			{name: "unknown role", customerID: "42", roleType: "guarantor", body: `{"targetStatus":"ACTIVE"}`, field: "roleType"},
			{name: "unknown status", customerID: "42", roleType: "borrower", body: `{"targetStatus":"ARCHIVED"}`, field: "targetStatus"},
		}
		for _, tc := range cases {
			rec := httptest.NewRecorder()
			h.ChangeStatus(rec, statusRequest(t, tc.customerID, tc.roleType, tc.body, &backoffice))

			assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
			assert.Equal(t, tc.field, decodeError(t, rec).Error.Field, tc.name)
		}

		rec := httptest.NewRecorder()
		h.ChangeStatus(rec, statusRequest(t, "42", "borrower", `{"targetStatus":"ACTIVE","extra":1}`, &backoffice))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		svc.AssertNotCalled(t, "ChangeStatus", mock.Anything, mock.Anything)
	})

	t.Run("missing actor is forbidden", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)

		rec := httptest.NewRecorder()
		h.ChangeStatus(rec, statusRequest(t, "42", "borrower", `{"targetStatus":"ACTIVE"}`, nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		svc.AssertNotCalled(t, "ChangeStatus", mock.Anything, mock.Anything)
	})

	errorCases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "not found", err: customer.ErrNotFound, status: http.StatusNotFound, code: "NOT_FOUND", message: "Resource not found."},
		{name: "front office", err: customer.ErrNotBackoffice, status: http.StatusForbidden, code: "UNAUTHORIZED"},
		{
			name:    "invalid transition",
			err:     apperrors.NewTransitionError(customer.StatusRegistered, customer.StatusActive),
			status:  http.StatusConflict,
			code:    "INVALID_TRANSITION",
			message: "transition from REGISTERED to ACTIVE is not allowed",
		},
		{name: "initials exhausted", err: fmt.Errorf("%w: candidates used up", apperrors.ErrIdentifierExhausted), status: http.StatusConflict, code: "IDENTIFIER_EXHAUSTED"},
		{
			name:    "legacy rejection shows reason",
			err:     &legacy.SyncError{Reason: "email domain is blocked", StatusCode: http.StatusUnprocessableEntity},
			status:  http.StatusBadGateway,
			code:    "SYNC_FAILURE",
			message: "email domain is blocked",
		},
		{
			name:    "legacy timeout is generic",
			err:     &legacy.SyncError{Reason: "legacy system timed out", Ambiguous: true, Cause: context.DeadlineExceeded},
			status:  http.StatusBadGateway,
			code:    "SYNC_FAILURE",
			message: "Legacy system is unavailable.",
		},
		{name: "counter down", err: fmt.Errorf("%w: dial tcp", apperrors.ErrCounterUnavailable), status: http.StatusServiceUnavailable, code: "COUNTER_UNAVAILABLE"},
		{name: "at capacity", err: fmt.Errorf("%w: %w", apperrors.ErrBusy, context.DeadlineExceeded), status: http.StatusServiceUnavailable, code: "BUSY"},
		{name: "concurrent change", err: fmt.Errorf("role status %w", apperrors.ErrConflict), status: http.StatusConflict, code: "CONFLICT"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, message: "An unexpected error occurred."},
	}
	for _, tc := range errorCases {
		t.Run("maps "+tc.name, func(t *testing.T) {
			svc := new(MockActivationService)
			h := NewStatusHandler(svc, logger)
			svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, tc.err)

			rec := httptest.NewRecorder()
			h.ChangeStatus(rec, statusRequest(t, "42", "borrower", `{"targetStatus":"ACTIVE"}`, &backoffice))

			assert.Equal(t, tc.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tc.code, resp.Error.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, resp.Error.Message)
			}
		})
	}
}

func TestStatusHandler_GetRole(t *testing.T) {
	t.Run("returns role without identifiers", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)
		svc.On("GetRole", mock.Anything, int64(7), customer.RoleLender).Return(&activation.RoleView{
			Role: &customer.Role{CustomerID: 7, RoleType: customer.RoleLender, UserCategory: customer.CategoryIndividual, Status: customer.StatusPendingVerification},
		}, nil)

		req := withRouteParams(httptest.NewRequest(http.MethodGet, "/customers/7/roles/lender", nil),
			map[string]string{"customerID": "7", "roleType": "lender"})
		rec := httptest.NewRecorder()
		h.GetRole(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"customerId": 7,
			"roleType": "LENDER",
			"userCategory": "INDIVIDUAL",
			"status": "PENDING_VERIFICATION",
			"statusCode": 3,
			"fillFinishedAt": null,
			"virtualAccounts": [],
			"idempotent": false
		}`, rec.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)
		svc.On("GetRole", mock.Anything, int64(8), customer.RoleBorrower).Return(nil, customer.ErrNotFound)

		req := withRouteParams(httptest.NewRequest(http.MethodGet, "/customers/8/roles/borrower", nil),
			map[string]string{"customerID": "8", "roleType": "borrower"})
		rec := httptest.NewRecorder()
		h.GetRole(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStatusHandler_GetLegacyRecord(t *testing.T) {
	t.Run("returns mirror record", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)
		cif := "1.2.12.0324.00001"
		record := &legacy.MirrorRecord{
			ChangeSet: legacy.ChangeSet{
				MigrationID: 42,
				RoleType:    1,
				StatusCode:  4,
				CIF:         &cif,
				VirtualAccounts: []legacy.VirtualAccount{
					{BankCode: "BNI", Number: "120012032400001", Name: "PT Sinar Abadi Jaya"},
				},
			},
			UpdatedAt: time.Date(2024, time.March, 18, 9, 30, 0, 0, time.UTC),
		}
		svc.On("GetLegacyRecord", mock.Anything, int64(42)).Return(record, nil)

		req := withRouteParams(httptest.NewRequest(http.MethodGet, "/customers/42/legacy", nil), map[string]string{"customerID": "42"})
		rec := httptest.NewRecorder()
		h.GetLegacyRecord(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.LegacyRecordResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.NotNil(t, resp.CIF)
		assert.Equal(t, cif, *resp.CIF)
		assert.Equal(t, "120012032400001", resp.VirtualAccounts[0].Number)
		assert.Nil(t, resp.Initial)
	})

	t.Run("legacy unreachable", func(t *testing.T) {
		svc := new(MockActivationService)
		h := NewStatusHandler(svc, logger)
		svc.On("GetLegacyRecord", mock.Anything, int64(42)).Return(nil, &legacy.SyncError{Reason: "legacy system unreachable", Ambiguous: true})

		req := withRouteParams(httptest.NewRequest(http.MethodGet, "/customers/42/legacy", nil), map[string]string{"customerID": "42"})
		rec := httptest.NewRecorder()
		h.GetLegacyRecord(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "Legacy system is unavailable.", decodeError(t, rec).Error.Message)
	})
}

func TestNewStatusHandler_Panics(t *testing.T) {
	assert.Panics(t, func() { NewStatusHandler(nil, logger) })
	assert.Panics(t, func() { NewStatusHandler(new(MockActivationService), nil) })
}
