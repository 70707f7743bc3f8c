package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTranslateConstraintPostgres(t *testing.T) {
	err := TranslateConstraint(fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "uq_products_tenant_name",
		ColumnName:     "name",
	}))

	var verr *domainerr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleUniqueViolation, verr.Rule)
	assert.Equal(t, "uq_products_tenant_name", verr.Message)
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}

func TestTranslateConstraintSQLite(t *testing.T) {
	err := TranslateConstraint(errors.New("constraint failed: CHECK constraint failed: chk_stock_levels_available (275)"))

	var verr *domainerr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleCheckViolation, verr.Rule)
	assert.Equal(t, "chk_stock_levels_available", verr.Message)

	err = TranslateConstraint(errors.New("UNIQUE constraint failed: products.tenant_id, products.name"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleUniqueViolation, verr.Rule)
}

func TestTranslateConstraintPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	assert.Same(t, boom, TranslateConstraint(boom))
	assert.NoError(t, TranslateConstraint(nil))
	assert.ErrorIs(t, TranslateConstraint(gorm.ErrRecordNotFound), gorm.ErrRecordNotFound)
}

func TestUniqueAs(t *testing.T) {
	err := UniqueAs(gorm.ErrDuplicatedKey, "number", "number_taken")
	assert.ErrorIs(t, err, domainerr.Invalid("number", "number_taken"))
}
