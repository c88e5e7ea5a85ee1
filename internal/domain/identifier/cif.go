package identifier

import (
	"context"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// CIF is the customer information file number A.B.C.MMYY.SEQ.
type CIF struct {
	RoleCode     int
	CategoryCode int
	CityCode     int
	Period       string
	Sequence     int64
}

// Period renders t as MMYY in t's own location.
func Period(t time.Time) string {
	return t.Format("0106")
}

// PartitionKey is the counter key shared by every CIF with the same A.B.C.MMYY.
func (c CIF) PartitionKey() string {
	return fmt.Sprintf("%d.%d.%d.%s", c.RoleCode, c.CategoryCode, c.CityCode, c.Period)
}

func (c CIF) Format(width int) string {
	return fmt.Sprintf("%s.%0*d", c.PartitionKey(), width, c.Sequence)
}

// ParseCIF reads a formatted CIF. Leading zeros in every component are accepted.
func ParseCIF(s string) (CIF, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 5 {
		return CIF{}, apperrors.NewValidationError("cif", fmt.Sprintf("expected 5 components, got %d", len(parts)))
	}

	ints := make([]int64, 0, 4)
	for i, idx := range []int{0, 1, 2, 4} {
		v, err := strconv.ParseInt(parts[idx], 10, 64)
		if err != nil || v < 0 {
			return CIF{}, apperrors.NewValidationError("cif", fmt.Sprintf("component %d is not a non-negative number: %q", i+1, parts[idx]))
		}
		ints = append(ints, v)
	}

	period := parts[3]
	if len(period) != 4 || strings.Trim(period, "0123456789") != "" {
		return CIF{}, apperrors.NewValidationError("cif", fmt.Sprintf("period must be MMYY, got %q", period))
	}
	if month, _ := strconv.Atoi(period[:2]); month < 1 || month > 12 {
		return CIF{}, apperrors.NewValidationError("cif", fmt.Sprintf("period month out of range: %q", period))
	}

	return CIF{
		RoleCode:     int(ints[0]),
		CategoryCode: int(ints[1]),
		CityCode:     int(ints[2]),
		Period:       period,
		Sequence:     ints[3],
	}, nil
}

type CIFRequest struct {
	RoleCode     int
	CategoryCode int
	CityCode     int
	RegisteredAt time.Time
}

type CIFAllocator struct {
	counter CounterService
	width   int
	loc     *time.Location
	logger  *slog.Logger
}

// NewCIFAllocator builds an allocator whose periods are taken in loc. A nil
// loc means UTC.
func NewCIFAllocator(counter CounterService, width int, loc *time.Location, logger *slog.Logger) *CIFAllocator {
	if counter == nil {
		panic("CounterService cannot be nil for CIFAllocator")
	}
	if width < 1 {
		width = 5
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &CIFAllocator{
		counter: counter,
		width:   width,
		loc:     loc,
		logger:  logger.With("component", "CIFAllocator"),
	}
}

func (a *CIFAllocator) Width() int { return a.width }

// Allocate draws the next sequence for the request's partition.
func (a *CIFAllocator) Allocate(ctx context.Context, req CIFRequest) (CIF, error) {
	cif := CIF{
		RoleCode:     req.RoleCode,
		CategoryCode: req.CategoryCode,
		CityCode:     req.CityCode,
		Period:       Period(req.RegisteredAt.In(a.loc)),
	}
	key := cif.PartitionKey()

	seq, err := a.counter.Next(ctx, key)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to draw CIF sequence", slog.String("partitionKey", key), slog.Any("error", err))
		if errors.Is(err, apperrors.ErrCounterUnavailable) {
			return CIF{}, err
		}
		return CIF{}, fmt.Errorf("%w: partition %s: %w", apperrors.ErrCounterUnavailable, key, err)
	}
	cif.Sequence = seq

	a.logger.InfoContext(ctx, "CIF allocated", slog.String("cif", cif.Format(a.width)))
	return cif, nil
}
