// Package bootstrap seeds state the service needs before it takes traffic.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/pagebuilder-identity/internal/config"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	pkgauth "github.com/BradenHooton/pagebuilder-identity/pkg/auth"
	pkglogger "github.com/BradenHooton/pagebuilder-identity/pkg/logger"
)

// IdentityStore is the subset of the identity repository used for seeding
type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
}

// PasswordHasher hashes the seeded password
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// EnsureAdmin creates the superadmin identity when ADMIN_EMAIL and
// ADMIN_PASSWORD are set and no identity owns that email yet.
func EnsureAdmin(ctx context.Context, cfg config.AdminConfig, identities IdentityStore, hasher PasswordHasher, logger *slog.Logger) error {
	if !cfg.Enabled() {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	subdomain := strings.ToLower(strings.TrimSpace(cfg.Subdomain))
	if subdomain == "" {
		return fmt.Errorf("bootstrap admin: ADMIN_SUBDOMAIN is empty")
	}

	if _, err := identities.GetByEmail(ctx, email); err == nil {
		logger.Info("admin identity already exists")
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	if err := pkgauth.ValidatePassword(cfg.Password); err != nil {
		return fmt.Errorf("bootstrap admin password: %w", err)
	}

	hashed, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := identities.Create(ctx, &models.Identity{
		Subdomain:    subdomain,
		Email:        &email,
		Name:         "Admin",
		PasswordHash: hashed,
		Roles:        []string{models.RoleSuperadmin, models.RoleUser},
	})
	if err != nil {
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	logger.Info("bootstrap admin identity created",
		slog.String("identity_id", created.ID),
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("subdomain", subdomain),
	)
	return nil
}
