package bootstrap

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/device-trust/pkg/identity"
)

func setupUsers(t *testing.T) *identity.Service {
	t.Helper()
	return identity.NewService(identity.NewInMemRepository(),
		identity.WithHasher(&identity.BcryptHasher{Cost: bcrypt.MinCost}),
	)
}

func TestBootstrapAdmin_GeneratesPassword(t *testing.T) {
	users := setupUsers(t)

	result, err := BootstrapAdmin(context.Background(), AdminBootstrapConfig{
		AdminEmail: "admin@example.com",
		Users:      users,
	})
	require.NoError(t, err)
	assert.True(t, result.UserCreated)
	assert.False(t, result.PasswordFromEnv)
	assert.NotEmpty(t, result.Password)
	assert.Equal(t, 5, result.MaxDevices)

	admin, err := users.FindUserByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.True(t, users.VerifyCredential(admin, result.Password))

	var out bytes.Buffer
	PrintBootstrapResult(&out, result)
	assert.Contains(t, out.String(), result.Password)
}

func TestBootstrapAdmin_SkipsWhenAdminExists(t *testing.T) {
	users := setupUsers(t)
	_, err := users.SeedAdmin(context.Background(), "Root", "root@example.com", "password123", 5)
	require.NoError(t, err)

	result, err := BootstrapAdmin(context.Background(), AdminBootstrapConfig{
		AdminEmail:    "admin@example.com",
		AdminPassword: "password123",
		Users:         users,
	})
	require.NoError(t, err)
	assert.False(t, result.UserCreated)

	var out bytes.Buffer
	PrintBootstrapResult(&out, result)
	assert.Empty(t, out.String())
}

func TestBootstrapAdmin_PasswordFromEnv(t *testing.T) {
	users := setupUsers(t)

	result, err := BootstrapAdmin(context.Background(), AdminBootstrapConfig{
		AdminName:       "Ops",
		AdminEmail:      "ops@example.com",
		AdminPassword:   "from-env-secret",
		AdminMaxDevices: 3,
		Users:           users,
	})
	require.NoError(t, err)
	assert.True(t, result.PasswordFromEnv)
	assert.Empty(t, result.Password)
	assert.Equal(t, 3, result.MaxDevices)

	var out bytes.Buffer
	PrintBootstrapResult(&out, result)
	assert.NotContains(t, out.String(), "from-env-secret")
}

func TestBootstrapAdmin_InvalidConfig(t *testing.T) {
	_, err := BootstrapAdmin(context.Background(), AdminBootstrapConfig{Users: setupUsers(t)})
	assert.Error(t, err)

	_, err = BootstrapAdmin(context.Background(), AdminBootstrapConfig{AdminEmail: "a@example.com"})
	assert.Error(t, err)
}
