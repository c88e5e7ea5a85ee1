package identifier

import (
	"context"
	"customer-onboarding/internal/infrastructure/monitoring"
	"customer-onboarding/internal/pkg/apperrors"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const initialLength = 4

// Legal entity markers that carry no identifying letters.
var entityTokens = map[string]struct{}{
	"PT": {}, "CV": {}, "TBK": {}, "UD": {}, "PD": {}, "FA": {},
}

// InitialReserver claims a candidate in the uniqueness index. A taken
// candidate is reported as apperrors.ErrAlreadyExists.
type InitialReserver interface {
	Reserve(ctx context.Context, candidate string) error
}

type InitialAllocator struct {
	budget     int
	categories map[int]struct{}
	logger     *slog.Logger
}

// NewInitialAllocator builds an allocator trying at most budget candidates.
// categoryCodes lists the borrower categories that carry an initial.
func NewInitialAllocator(budget int, categoryCodes []int, logger *slog.Logger) *InitialAllocator {
	if budget < 1 {
		budget = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	cats := make(map[int]struct{}, len(categoryCodes))
	for _, c := range categoryCodes {
		cats[c] = struct{}{}
	}
	return &InitialAllocator{
		budget:     budget,
		categories: cats,
		logger:     logger.With("component", "InitialAllocator"),
	}
}

// Required reports whether a role receives an initial. Only borrowers do.
func (a *InitialAllocator) Required(roleCode, categoryCode int) bool {
	if roleCode != 1 {
		return false
	}
	_, ok := a.categories[categoryCode]
	return ok
}

// Allocate walks the candidate list for legalName until one is reserved.
func (a *InitialAllocator) Allocate(ctx context.Context, legalName string, reserver InitialReserver) (string, error) {
	candidates := Candidates(legalName, a.budget)
	for attempt, candidate := range candidates {
		err := reserver.Reserve(ctx, candidate)
		if err == nil {
			a.logger.InfoContext(ctx, "Borrower initial reserved", slog.String("initial", candidate), slog.Int("attempt", attempt+1))
			return candidate, nil
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			a.logger.ErrorContext(ctx, "Failed to reserve borrower initial", slog.String("initial", candidate), slog.Any("error", err))
			return "", err
		}
		monitoring.RecordInitialCollision()
		a.logger.DebugContext(ctx, "Borrower initial taken", slog.String("initial", candidate))
	}

	monitoring.RecordInitialExhausted()
	a.logger.WarnContext(ctx, "Borrower initial candidates exhausted", slog.Int("budget", a.budget))
	return "", fmt.Errorf("%w: no free initial within %d candidates", apperrors.ErrIdentifierExhausted, a.budget)
}

// Candidates lists up to budget initials for name, base candidate first.
// The base takes the first letter of each word, then the following letters
// in word order, padded with X. Attempt i replaces the tail of the base with
// the decimal i: ABCD, ABC1 ... ABC9, AB10 ...
func Candidates(name string, budget int) []string {
	base := BaseInitial(name)
	out := make([]string, 0, budget)
	out = append(out, base)
	for i := 1; len(out) < budget; i++ {
		suffix := strconv.Itoa(i)
		if len(suffix) >= initialLength {
			break
		}
		out = append(out, base[:initialLength-len(suffix)]+suffix)
	}
	return out
}

func BaseInitial(name string) string {
	words := nameWords(name)

	var b strings.Builder
	for _, w := range words {
		if b.Len() == initialLength {
			break
		}
		b.WriteByte(w[0])
	}
	for _, w := range words {
		for i := 1; i < len(w) && b.Len() < initialLength; i++ {
			b.WriteByte(w[i])
		}
	}
	for b.Len() < initialLength {
		b.WriteByte('X')
	}
	return b.String()
}

func nameWords(name string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			return r
		default:
			return ' '
		}
	}, name)

	all := strings.Fields(cleaned)
	words := make([]string, 0, len(all))
	for _, w := range all {
		if _, skip := entityTokens[w]; !skip {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return all
	}
	return words
}
