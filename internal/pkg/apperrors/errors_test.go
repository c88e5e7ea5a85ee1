package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusName string

func (s statusName) String() string { return string(s) }

func TestAppErrorError(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "With Code",
			appError: &AppError{
				Code:    "TEST_CODE",
				Message: "This is a test error",
			},
			expected: "[TEST_CODE] This is a test error",
		},
		{
			name: "Without Code",
			appError: &AppError{
				Message: "This is a test error without code",
			},
			expected: "This is a test error without code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("targetStatus", "unknown status")

	assert.True(t, errors.Is(err, ErrValidation))
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "targetStatus", ve.Field)
	assert.Equal(t, "unknown status", ve.Message)
}

func TestNewTransitionError(t *testing.T) {
	err := NewTransitionError(statusName("REGISTERED"), statusName("ACTIVE"))

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "[INVALID_TRANSITION] transition from REGISTERED to ACTIVE is not allowed", err.Error())
}
