package api

import (
	"bytes"
	"context"
	"customer-onboarding/internal/config"
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/legacy"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
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

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Auth: config.AuthConfig{Enabled: true, JWTSecret: "router-secret", TokenTTL: time.Hour},
		},
		Metrics: config.MetricsConfig{Path: "/metrics"},
	}
}

func TestSetupRouter_StatusChangeEndToEnd(t *testing.T) {
	svc := new(MockActivationService)
	router := SetupRouter(nil, svc, nil, testConfig(), logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/customers/42/roles/borrower/status", bytes.NewBufferString(`{"targetStatus":"ACTIVE"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(`{"username":"ops-7","principalType":"backoffice"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var tokenResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tokenResp))

	svc.On("ChangeStatus", mock.Anything, mock.MatchedBy(func(req activation.StatusChangeRequest) bool {
		return req.CustomerID == 42 && req.Target == customer.StatusRejected && req.Actor.ID == "ops-7" && req.Actor.IsBackoffice()
	})).Return(&activation.Result{
		Role:  &customer.Role{CustomerID: 42, RoleType: customer.RoleBorrower, Status: customer.StatusRejected},
		State: activation.StateCommitted,
	}, nil)

	req := httptest.NewRequest(http.MethodPut, "/customers/42/roles/borrower/status", bytes.NewBufferString(`{"targetStatus":"REJECTED"}`))
	req.Header.Set("Authorization", tokenResp.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestSetupRouter_FrontOfficeTokenIsForbidden(t *testing.T) {
	svc := new(MockActivationService)
	router := SetupRouter(nil, svc, nil, testConfig(), logger)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":           "cust-42",
		"principalType": "frontoffice",
	}).SignedString([]byte("router-secret"))
	require.NoError(t, err)

	svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, customer.ErrNotBackoffice)

	req := httptest.NewRequest(http.MethodPut, "/customers/42/roles/borrower/status", bytes.NewBufferString(`{"targetStatus":"ACTIVE"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetupRouter_Health(t *testing.T) {
	t.Run("all components up", func(t *testing.T) {
		router := SetupRouter(nil, new(MockActivationService), map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		}, testConfig(), logger)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","components":{"postgres":"up"}}`, rec.Body.String())
	})

	t.Run("degraded when a dependency fails", func(t *testing.T) {
		router := SetupRouter(nil, new(MockActivationService), map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}, testConfig(), logger)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded","components":{"postgres":"up","redis":"down"}}`, rec.Body.String())
	})
}

func TestSetupRouter_MetricsAndSwagger(t *testing.T) {
	router := SetupRouter(nil, new(MockActivationService), nil, testConfig(), logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/customers/{customerID}/roles/{roleType}/status")
}
