package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/config"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "Comptoir Admin"

// ErrInvalidBootstrap is returned when the configured admin id collides with
// a non-admin principal.
var ErrInvalidBootstrap = errors.New("bootstrap_admin_conflict")

// EnsureBootstrapAdmin creates the platform admin named by cfg when it does
// not exist yet. It is a no-op without an admin id, so a fresh database is
// only reachable once an admin id is configured.
func EnsureBootstrapAdmin(db *gorm.DB, cfg config.BootstrapConfig) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	if cfg.AdminID <= 0 {
		return false, nil
	}

	id := snowflake.ID(cfg.AdminID)
	ctx := context.Background()
	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing identitydomain.Account
		err := tx.WithContext(ctx).Where("id = ?", id).First(&existing).Error
		if err == nil {
			if existing.Role != identitydomain.RoleAdmin {
				return ErrInvalidBootstrap
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		account := identitydomain.Account{
			ID:          id,
			Role:        identitydomain.RoleAdmin,
			DisplayName: defaultAdminDisplay,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail)); email != "" {
			account.Email = &email
		}
		if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
