package legacy

import (
	"bytes"
	"context"
	"customer-onboarding/internal/config"
	"customer-onboarding/internal/domain/legacy"
	"customer-onboarding/internal/infrastructure/monitoring"
	"customer-onboarding/internal/pkg/apperrors"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	outcomeSuccess     = "success"
	outcomeRejected    = "rejected"
	outcomeAmbiguous   = "ambiguous"
	outcomeCircuitOpen = "circuit_open"
	outcomeNotFound    = "not_found"

	maxErrorBodyBytes = 4 << 10
)

// Client talks to the legacy "bpd" endpoint. Calls go through one circuit
// breaker; definite rejections do not count against it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

var _ legacy.Syncer = (*Client)(nil)

type errorBody struct {
	Error string `json:"error"`
}

func NewClient(cfg config.LegacyConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger = logger.With("component", "LegacyClient")

	threshold := cfg.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        "legacy-bpd",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, apperrors.ErrNotFound) {
				return true
			}
			var se *legacy.SyncError
			return errors.As(err, &se) && se.Rejected()
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// Push upserts the legacy row for cs.MigrationID. Every failure is a
// *legacy.SyncError.
func (c *Client) Push(ctx context.Context, cs legacy.ChangeSet) (legacy.Ack, error) {
	logCtx := c.logger.With(slog.Int64("migrationID", cs.MigrationID), slog.String("requestID", cs.RequestID))

	body, err := json.Marshal(cs)
	if err != nil {
		return legacy.Ack{}, &legacy.SyncError{Reason: "failed to encode change set", Cause: err}
	}
	endpoint := fmt.Sprintf("%s/bpd/%d", c.baseURL, cs.MigrationID)

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, &legacy.SyncError{Reason: "failed to build request", Cause: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", cs.RequestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, transportError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, statusError(resp)
		}

		var ack legacy.Ack
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			// The write went through but the ack is unreadable.
			return nil, &legacy.SyncError{Reason: "malformed acknowledgement", StatusCode: resp.StatusCode, Ambiguous: true, Cause: err}
		}
		return ack, nil
	})
	err = c.breakerError(err)
	monitoring.RecordLegacyCall("push", outcomeLabel(err), time.Since(start))
	if err != nil {
		logCtx.ErrorContext(ctx, "Legacy push failed",
			slog.Bool("ambiguous", legacy.IsAmbiguous(err)),
			slog.Bool("compensation", cs.Compensation),
			slog.Any("error", err))
		return legacy.Ack{}, err
	}

	ack := result.(legacy.Ack)
	logCtx.InfoContext(ctx, "Legacy push acknowledged", slog.String("ackID", ack.AckID), slog.Bool("compensation", cs.Compensation))
	return ack, nil
}

func (c *Client) Fetch(ctx context.Context, migrationID int64) (*legacy.MirrorRecord, error) {
	logCtx := c.logger.With(slog.Int64("migrationID", migrationID))
	endpoint := c.baseURL + "/bpd?" + url.Values{"migration_id": {strconv.FormatInt(migrationID, 10)}}.Encode()

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, &legacy.SyncError{Reason: "failed to build request", Cause: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, transportError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("legacy record %d %w", migrationID, apperrors.ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp)
		}

		var record legacy.MirrorRecord
		if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
			return nil, &legacy.SyncError{Reason: "malformed legacy record", StatusCode: resp.StatusCode, Cause: err}
		}
		return &record, nil
	})
	err = c.breakerError(err)
	monitoring.RecordLegacyCall("fetch", outcomeLabel(err), time.Since(start))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logCtx.WarnContext(ctx, "Legacy record not found")
		} else {
			logCtx.ErrorContext(ctx, "Legacy fetch failed", slog.Any("error", err))
		}
		return nil, err
	}
	return result.(*legacy.MirrorRecord), nil
}

// breakerError turns gobreaker refusals into a SyncError. No request left the
// process, so the outcome is not ambiguous.
func (c *Client) breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Legacy call rejected by circuit breaker", slog.String("state", c.breaker.State().String()))
		return &legacy.SyncError{Reason: "legacy system unavailable", Cause: err}
	}
	return err
}

func transportError(err error) error {
	reason := "legacy system unreachable"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = "legacy system timed out"
	}
	return &legacy.SyncError{Reason: reason, Ambiguous: true, Cause: err}
}

// statusError reads the {"error": "..."} body. A 4xx is a definite refusal and
// anything else may have been applied.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var body errorBody
	reason := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		reason = body.Error
	}
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &legacy.SyncError{
		Reason:     reason,
		StatusCode: resp.StatusCode,
		Ambiguous:  resp.StatusCode >= 500,
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return outcomeNotFound
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return outcomeCircuitOpen
	}
	if legacy.IsAmbiguous(err) {
		return outcomeAmbiguous
	}
	return outcomeRejected
}
