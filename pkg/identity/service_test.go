package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	pkgerrors "github.com/tendant/device-trust/pkg/errors"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewInMemRepository(),
		WithHasher(&BcryptHasher{Cost: bcrypt.MinCost}),
		WithNowTime(func() time.Time { return baseTime }),
	)
}

func TestRegister(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{Name: " Alice ", Email: "Alice@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, DefaultMaxDevices, user.MaxDevices)
	assert.True(t, user.IsActive)
	assert.True(t, user.CreatedAt.Equal(baseTime))
	assert.NotEqual(t, "secret1", user.PasswordHash)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Alice Again", Email: "alice@example.com", Password: "secret1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeAlreadyExists))
}

func TestRegister_Validation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"short name", RegisterRequest{Name: "A", Email: "a@example.com", Password: "secret1"}, "name"},
		{"bad email", RegisterRequest{Name: "Alice", Email: "alice.example.com", Password: "secret1"}, "email"},
		{"short password", RegisterRequest{Name: "Alice", Email: "a@example.com", Password: "12345"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidationFailed))
			assert.Equal(t, tt.field, pkgerrors.GetDetails(err)["field"])
		})
	}
}

func TestVerifyCredential(t *testing.T) {
	svc := setupService(t)
	user, err := svc.Register(context.Background(), RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	assert.True(t, svc.VerifyCredential(user, "password123"))
	assert.False(t, svc.VerifyCredential(user, "password124"))
	assert.False(t, svc.VerifyCredential(user, ""))
	assert.False(t, svc.VerifyCredential(User{PasswordHash: "not-a-bcrypt-hash"}, "password123"))
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	first, err := svc.SeedAdmin(ctx, "Admin", "admin@example.com", "password123", 5)
	require.NoError(t, err)
	assert.True(t, first.IsAdmin())
	assert.Equal(t, 5, first.MaxDevices)

	second, err := svc.SeedAdmin(ctx, "Admin", "ADMIN@example.com", "other", 5)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, svc.VerifyCredential(second, "password123"))
}

func TestSetMaxDevicesAndActive(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterRequest{Name: "Carol", Email: "carol@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.SetMaxDevices(ctx, user.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidationFailed))

	updated, err := svc.SetMaxDevices(ctx, user.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.MaxDevices)

	updated, err = svc.SetActive(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = svc.SetActive(ctx, uuid.New(), false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeNotFound))
}
