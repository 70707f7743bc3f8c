package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"gorm.io/gorm"
)

const (
	RuleUniqueViolation     = "unique_violation"
	RuleCheckViolation      = "check_violation"
	RuleForeignKeyViolation = "foreign_key_violation"
	RuleNotNullViolation    = "not_null_violation"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// SQLite (error code 2067)
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// TranslateConstraint converts a constraint violation reported by the store
// into a ValidationError naming the violated rule. Other errors are returned
// unchanged.
func TranslateConstraint(err error) error {
	if err == nil {
		return nil
	}
	var verr *domainerr.ValidationError
	if errors.As(err, &verr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &domainerr.ValidationError{Field: pgErr.ColumnName, Rule: RuleUniqueViolation, Message: pgErr.ConstraintName}
		case "23514":
			return &domainerr.ValidationError{Field: pgErr.ColumnName, Rule: RuleCheckViolation, Message: pgErr.ConstraintName}
		case "23503":
			return &domainerr.ValidationError{Field: pgErr.ColumnName, Rule: RuleForeignKeyViolation, Message: pgErr.ConstraintName}
		case "23502":
			return &domainerr.ValidationError{Field: pgErr.ColumnName, Rule: RuleNotNullViolation, Message: pgErr.ConstraintName}
		}
		return err
	}

	msg := err.Error()
	switch {
	case IsDuplicateKeyErr(err):
		return &domainerr.ValidationError{Rule: RuleUniqueViolation, Message: sqliteDetail(msg, "UNIQUE constraint failed:")}
	case errors.Is(err, gorm.ErrForeignKeyViolated), strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &domainerr.ValidationError{Rule: RuleForeignKeyViolation}
	case strings.Contains(msg, "CHECK constraint failed"):
		return &domainerr.ValidationError{Rule: RuleCheckViolation, Message: sqliteDetail(msg, "CHECK constraint failed:")}
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return &domainerr.ValidationError{Rule: RuleNotNullViolation, Message: sqliteDetail(msg, "NOT NULL constraint failed:")}
	}
	return err
}

// UniqueAs maps a unique violation to a caller-chosen field and rule, and
// any other constraint violation through TranslateConstraint.
func UniqueAs(err error, field, rule string) error {
	if IsDuplicateKeyErr(err) {
		return domainerr.Invalid(field, rule)
	}
	return TranslateConstraint(err)
}

func sqliteDetail(msg, marker string) string {
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	detail := strings.TrimSpace(msg[idx+len(marker):])
	if cut := strings.IndexAny(detail, "()"); cut > 0 {
		detail = strings.TrimSpace(detail[:cut])
	}
	return detail
}
