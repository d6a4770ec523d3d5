package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/identity"
)

// GeneratedPasswordBytes is the entropy of a generated admin password
const GeneratedPasswordBytes = 12

// AdminDirectory is what the bootstrap needs from the identity service
type AdminDirectory interface {
	CountUsers(ctx context.Context, role identity.Role, activeOnly bool) (int, error)
	SeedAdmin(ctx context.Context, name, email, password string, maxDevices int) (identity.User, error)
}

// AdminBootstrapConfig contains the first admin account's settings
type AdminBootstrapConfig struct {
	// Admin credentials (from ADMIN_NAME, ADMIN_EMAIL, ADMIN_PASSWORD)
	AdminName     string
	AdminEmail    string
	AdminPassword string
	// AdminMaxDevices is the admin's device cap
	AdminMaxDevices int

	Users AdminDirectory
}

// AdminBootstrapResult contains the result of admin bootstrap operation
type AdminBootstrapResult struct {
	UserID     uuid.UUID
	Name       string
	Email      string
	Password   string // Only populated if auto-generated
	MaxDevices int

	UserCreated bool

	// Password was provided via environment variable
	PasswordFromEnv bool
}

// BootstrapAdmin creates the first admin account when no admin exists yet.
// An empty AdminPassword is replaced by a generated one.
func BootstrapAdmin(ctx context.Context, cfg AdminBootstrapConfig) (*AdminBootstrapResult, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid bootstrap configuration: %w", err)
	}

	admins, err := cfg.Users.CountUsers(ctx, identity.RoleAdmin, false)
	if err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}
	if admins > 0 {
		slog.Info("Admin already exists - skipping admin bootstrap", "admins", admins)
		return &AdminBootstrapResult{UserCreated: false}, nil
	}

	password := cfg.AdminPassword
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin password: %w", err)
		}
	}

	name := cfg.AdminName
	if name == "" {
		name = "Admin"
	}
	maxDevices := cfg.AdminMaxDevices
	if maxDevices < 1 {
		maxDevices = 5
	}

	user, err := cfg.Users.SeedAdmin(ctx, name, cfg.AdminEmail, password, maxDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	result := &AdminBootstrapResult{
		UserID:          user.ID,
		Name:            user.Name,
		Email:           user.Email,
		MaxDevices:      user.MaxDevices,
		UserCreated:     true,
		PasswordFromEnv: cfg.AdminPassword != "",
	}
	if !result.PasswordFromEnv {
		result.Password = password
	}

	slog.Info("Admin bootstrap completed successfully", "user_id", user.ID, "email", user.Email)
	return result, nil
}

func validateConfig(cfg AdminBootstrapConfig) error {
	if cfg.AdminEmail == "" {
		return fmt.Errorf("admin email is required")
	}
	if cfg.Users == nil {
		return fmt.Errorf("user directory is required")
	}
	return nil
}

func generatePassword() (string, error) {
	buf := make([]byte, GeneratedPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
