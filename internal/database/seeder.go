// Package database prepares a fresh store for first use.
package database

import (
	"context"

	"refill-api-server/config"
	"refill-api-server/internal/apperror"
	"refill-api-server/internal/directory"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/models"
)

// SeedAdmin makes sure the configured admin exists in the directory so that
// new requests have someone to notify. It reports whether a user was created.
func SeedAdmin(ctx context.Context, dir *directory.Directory, cfg config.SeedConfig, log *logger.Logger) (bool, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.AdminUserID == "" {
		return false, nil
	}

	existing, err := dir.ByUserID(ctx, cfg.AdminUserID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		log.Infow("admin already exists, seeding skipped", "userId", cfg.AdminUserID)
		return false, nil
	}

	admin := &models.UserDetails{
		UserID:    cfg.AdminUserID,
		FirstName: cfg.AdminFirstName,
		LastName:  cfg.AdminLastName,
		Email:     cfg.AdminEmail,
		Role:      identity.RoleAdmin,
	}
	if err := dir.Create(ctx, admin); err != nil {
		// Another instance seeded it first.
		if apperror.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	log.Infow("admin seeded", "userId", admin.UserID, "email", admin.Email)
	return true, nil
}
