package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// BootstrapAdmin creates the first admin user when configured and the users
// table is empty. It never touches a store that already has users: a
// redeployed replica must not resurrect a deleted bootstrap account.
func BootstrapAdmin(ctx context.Context, cfg config.BootstrapConfig, repos *repo.Repos, hasher PasswordHasher, logger *slog.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}

	count, err := repos.Users.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("skipping admin bootstrap, users already exist", "user_count", count)
		return nil
	}

	password, err := resolveBootstrapPassword(cfg)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}

	user, err := repos.Users.Create(ctx, uuid.NewString(), cfg.AdminEmail, hash, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"email": user.Email})
	if err := repos.AuthEvents.Append(ctx, &user.UserID, models.AuthEventBootstrapAdminCreated, payload); err != nil {
		return err
	}
	logger.Info("bootstrap admin created", "email", user.Email)
	return nil
}

func resolveBootstrapPassword(cfg config.BootstrapConfig) (string, error) {
	hasInline := cfg.AdminPassword != ""
	hasFile := cfg.AdminPasswordFile != ""
	if hasInline == hasFile {
		return "", fmt.Errorf("exactly one of BOOTSTRAP_ADMIN_PASSWORD or BOOTSTRAP_ADMIN_PASSWORD_FILE must be set")
	}
	if hasInline {
		return cfg.AdminPassword, nil
	}
	data, err := os.ReadFile(cfg.AdminPasswordFile)
	if err != nil {
		return "", fmt.Errorf("read bootstrap password file: %w", err)
	}
	password := strings.TrimSpace(string(data))
	if password == "" {
		return "", fmt.Errorf("bootstrap password file %s is empty", cfg.AdminPasswordFile)
	}
	return password, nil
}
