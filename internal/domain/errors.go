package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrQuoteExpired  = errors.New("quote expired or unknown")
	ErrQuoteMismatch = errors.New("quote does not match request parameters")
	// ErrQuoteSuperseded marks a pricing response that no longer answers the
	// live parameter tuple; it is discarded, never applied.
	ErrQuoteSuperseded = errors.New("quote superseded by a newer request")
	ErrLockNotActive   = errors.New("lock is not active")
	ErrLockExpired     = errors.New("lock expired")
	ErrNotLockHolder   = errors.New("caller does not hold this lock")
)

// ValidationError collects local form problems. Fully recoverable, no side
// effects.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msgs := range e.Fields {
		parts = append(parts, f+": "+strings.Join(msgs, "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// ConflictError reports an atomic transition that failed because at least one
// date's current status did not match the expected one. Dates maps each
// offending day to the status actually found (StatusNone for days the host
// never opened). SuggestedStart, when set, is the next start date the caller
// could slide the stay to.
type ConflictError struct {
	PropertyID     int64
	Dates          map[string]DateStatus
	SuggestedStart Date
}

func (e *ConflictError) Error() string {
	days := make([]string, 0, len(e.Dates))
	for d, st := range e.Dates {
		days = append(days, fmt.Sprintf("%s=%s", d, st))
	}
	return fmt.Sprintf("availability conflict on property %d: %s", e.PropertyID, strings.Join(days, " "))
}

func AsConflictError(err error) *ConflictError {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// PaymentError is a gateway-reported capture failure. The lock is released
// and the whole checkout may be retried.
type PaymentError struct {
	Code   string
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed (%s): %s", e.Code, e.Reason)
}

// CommitFailedAfterPayment is the critical asymmetric case: capture
// succeeded but booking persistence did not. The lock is extended to the
// grace window and never auto-released; resolution is manual.
type CommitFailedAfterPayment struct {
	LockID     string
	PaymentRef string
	Err        error
}

func (e *CommitFailedAfterPayment) Error() string {
	return fmt.Sprintf("commit failed after payment capture (lock %s, payment %s): %v", e.LockID, e.PaymentRef, e.Err)
}

func (e *CommitFailedAfterPayment) Unwrap() error { return e.Err }
