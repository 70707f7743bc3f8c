// Package domainerr defines the error kinds shared by every business service.
// Domain packages declare their own sentinels on top of these kinds so that
// callers can match either the precise failure or its category.
package domainerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInactiveAccount         = errors.New("inactive_account")
	ErrForbidden               = errors.New("forbidden")
	ErrNotFound                = errors.New("not_found")
	ErrInvalidOrderState       = errors.New("invalid_order_state")
	ErrInsufficientStock       = errors.New("insufficient_stock")
	ErrInvalidRange            = errors.New("invalid_range")
	ErrValidation              = errors.New("validation_error")
	ErrCannotReactivateExpired = errors.New("cannot_reactivate_expired")
)

// ValidationError reports a missing or invalid field, or a violated store
// constraint. Rule is a stable snake_case identifier of the broken rule.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Rule)
	if e.Field != "" {
		b.WriteString(" (")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	other, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Rule == other.Rule && (other.Field == "" || e.Field == other.Field)
}

// Invalid builds a ValidationError for field violating rule.
func Invalid(field, rule string) *ValidationError {
	return &ValidationError{Field: field, Rule: rule}
}

// Invalidf builds a ValidationError with a formatted message.
func Invalidf(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Kind returns the category sentinel matched by err, or nil when err does
// not belong to the taxonomy.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrUnauthenticated,
		ErrInactiveAccount,
		ErrForbidden,
		ErrNotFound,
		ErrInvalidOrderState,
		ErrInsufficientStock,
		ErrInvalidRange,
		ErrCannotReactivateExpired,
		ErrValidation,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Wrap attaches a kind to a more specific sentinel, keeping both matchable.
func Wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
