package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/comptoir/internal/audit/domain"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/comptoir/internal/invoice/domain"
	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	paymentdomain "github.com/smallbiznis/comptoir/internal/payment/domain"
	productdomain "github.com/smallbiznis/comptoir/internal/product/domain"
	"github.com/smallbiznis/comptoir/internal/sequence"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
	supplydomain "github.com/smallbiznis/comptoir/internal/supply/domain"
	tabledomain "github.com/smallbiznis/comptoir/internal/table/domain"
	tenantdomain "github.com/smallbiznis/comptoir/internal/tenant/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&identitydomain.Account{},
		&productdomain.Product{},
		&stockdomain.Level{},
		&stockdomain.Movement{},
		&tabledomain.Table{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&supplydomain.Supply{},
		&supplydomain.SupplyItem{},
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&auditdomain.AuditLog{},
		&sequence.BusinessSequence{},
	}
}

// AutoMigrate builds the schema from the models. It serves sqlite, where
// the postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
