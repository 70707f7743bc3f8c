package domainerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesKindAndRule(t *testing.T) {
	err := fmt.Errorf("create supply: %w", Invalid("supplier", "required"))

	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, Invalid("supplier", "required"))
	assert.ErrorIs(t, err, &ValidationError{Rule: "required"})
	assert.NotErrorIs(t, err, Invalid("date", "required"))
	assert.Equal(t, ErrValidation, Kind(err))

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "supplier", verr.Field)
}

func TestWrapKeepsKind(t *testing.T) {
	errEmpty := Wrap(ErrInvalidOrderState, "order_not_pending")

	assert.ErrorIs(t, errEmpty, ErrInvalidOrderState)
	assert.Equal(t, "order_not_pending", errEmpty.Error())
	assert.Equal(t, ErrInvalidOrderState, Kind(fmt.Errorf("validate: %w", errEmpty)))
	assert.Nil(t, Kind(errors.New("boom")))
}
