package services

import (
	"errors"
	"fmt"

	"github.com/csschan/unitpay-sub001/internal/models"
)

// Domain error taxonomy. Every rejected operation surfaces one of these to
// the handler layer; only infrastructure failures (storage down) pass
// through as plain errors.

// ErrInsufficientQuota reserve rejected: amount exceeds available or
// per-transaction quota. No partial state change.
var ErrInsufficientQuota = errors.New("insufficient quota")

// ErrVerificationFailed platform-specific payment proof rejected.
var ErrVerificationFailed = errors.New("payment proof verification failed")

// ValidationError malformed input, rejected before any state mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidStateTransitionError a requested transition's guard failed.
// Carries current vs expected status for caller diagnosis.
type InvalidStateTransitionError struct {
	IntentID string
	Current  models.PaymentIntentStatus
	Expected []models.PaymentIntentStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("payment intent %s is %s, expected one of %v", e.IntentID, e.Current, e.Expected)
}

// SettlementError settlement failure; Terminal distinguishes an exhausted
// retry budget from a transient chain/network error.
type SettlementError struct {
	PaymentIntentID string
	Terminal        bool
	Err             error
}

func (e *SettlementError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("settlement %s failure for intent %s: %v", kind, e.PaymentIntentID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }
