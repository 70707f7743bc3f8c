package sequence_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/domainerr"
	"github.com/smallbiznis/comptoir/internal/sequence"
	"github.com/smallbiznis/comptoir/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNextIssuesUpsertOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO business_sequences (tenant_id, kind, day, last_value) VALUES ($1, $2, $3, 1) `+
			`ON CONFLICT (tenant_id, kind, day) DO UPDATE SET last_value = business_sequences.last_value + 1 `+
			`RETURNING last_value`,
	)).
		WithArgs(snowflake.ID(42), sequence.KindOrder, "20240315").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))

	gen := sequence.New(time.UTC)
	number, err := gen.Next(context.Background(), db, 42, sequence.KindOrder, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "CMD-20240315-007", number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextIsSequentialPerTenantKindAndDay(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	dbtest.SeedTenant(t, db, 1)
	dbtest.SeedTenant(t, db, 2)

	gen := sequence.New(time.UTC)
	day := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	for i, want := range []string{"CMD-20240315-001", "CMD-20240315-002", "CMD-20240315-003"} {
		got, err := gen.Next(ctx, db, 1, sequence.KindOrder, day)
		require.NoError(t, err, i)
		assert.Equal(t, want, got)
	}

	got, err := gen.Next(ctx, db, 2, sequence.KindOrder, day)
	require.NoError(t, err)
	assert.Equal(t, "CMD-20240315-001", got, "counters are per tenant")

	got, err = gen.Next(ctx, db, 1, sequence.KindSupply, day)
	require.NoError(t, err)
	assert.Equal(t, "RAV-20240315-001", got, "counters are per kind")

	got, err = gen.Next(ctx, db, 1, sequence.KindOrder, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "CMD-20240316-001", got, "counters restart every day")
}

func TestNextRolledBackWithCallerTransaction(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	dbtest.SeedTenant(t, db, 1)
	gen := sequence.New(time.UTC)
	day := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := gen.Next(ctx, tx, 1, sequence.KindInvoice, day)
		require.NoError(t, err)
		return domainerr.ErrInsufficientStock
	})
	require.ErrorIs(t, err, domainerr.ErrInsufficientStock)

	got, err := gen.Next(ctx, db, 1, sequence.KindInvoice, day)
	require.NoError(t, err)
	assert.Equal(t, "FACT-20240315-001", got)
}

func TestNextUsesBusinessTimezone(t *testing.T) {
	db := dbtest.New(t)
	dbtest.SeedTenant(t, db, 1)
	loc, err := time.LoadLocation("Africa/Abidjan")
	require.NoError(t, err)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	at := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
	got, err := sequence.New(loc).Next(context.Background(), db, 1, sequence.KindOrder, at)
	require.NoError(t, err)
	assert.Equal(t, "CMD-20240315-001", got)

	got, err = sequence.New(tokyo).Next(context.Background(), db, 1, sequence.KindOrder, at)
	require.NoError(t, err)
	assert.Equal(t, "CMD-20240316-001", got)
}

func TestResolveKeepsOverride(t *testing.T) {
	gen := sequence.New(time.UTC)
	got, err := gen.Resolve(context.Background(), nil, 1, sequence.KindOrder, time.Now(), "  CMD-MANUAL-1 ")
	require.NoError(t, err)
	assert.Equal(t, "CMD-MANUAL-1", got)
}

func TestNextRejectsUnknownKind(t *testing.T) {
	_, err := sequence.New(time.UTC).Next(context.Background(), nil, 1, sequence.Kind("refund"), time.Now())
	assert.ErrorIs(t, err, domainerr.ErrValidation)
}

func TestFormatKeepsDigitsPast999(t *testing.T) {
	assert.Equal(t, "CMD-20240315-1000", sequence.Format("CMD", "20240315", 1000))
	assert.Equal(t, "RAV-20240315-042", sequence.Format("RAV", "20240315", 42))
}
