package seed

import (
	"context"
	"fmt"

	"spis/m/domain"
	"spis/m/internal/config"
	"spis/m/internal/logger"
	"spis/m/internal/users"
)

type AdminStore interface {
	CountByRole(ctx context.Context, role domain.Role) (int, error)
	Create(ctx context.Context, in users.CreateInput) (*domain.User, error)
}

// EnsureAdmin creates the bootstrap admin when credentials are configured and no active admin exists.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, store AdminStore, cfg config.BootstrapConfig, log *logger.Logger) (bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}
	n, err := store.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	username := cfg.AdminUsername
	if username == "" {
		username = "admin"
	}
	u, err := store.Create(ctx, users.CreateInput{
		Username: username,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     string(domain.RoleAdmin),
	})
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	log.Info(log.WithUserID(ctx, u.ID), "created bootstrap admin")
	return true, nil
}
