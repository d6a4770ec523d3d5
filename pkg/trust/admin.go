package trust

import (
	"context"
	"errors"

	"github.com/google/uuid"

	pkgerrors "github.com/tendant/device-trust/pkg/errors"
	"github.com/tendant/device-trust/pkg/identity"
)

// SetUserActive changes the account status. Deactivation logs the user out
// of every device.
func (e *Engine) SetUserActive(ctx context.Context, userID uuid.UUID, active bool) (identity.User, error) {
	user, err := e.users.SetActive(ctx, userID, active)
	if err != nil {
		return identity.User{}, userError(err, userID)
	}
	if !active {
		if _, err := e.ForceLogoutAll(ctx, userID); err != nil {
			return user, err
		}
	}
	return user, nil
}

// ToggleUserStatus flips the account status via SetUserActive
func (e *Engine) ToggleUserStatus(ctx context.Context, userID uuid.UUID) (identity.User, error) {
	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return identity.User{}, userError(err, userID)
	}
	return e.SetUserActive(ctx, userID, !user.IsActive)
}

// SetMaxDevices edits the user's device cap. Sessions above a lowered cap
// stay live; the cap applies from the next login on a new device.
func (e *Engine) SetMaxDevices(ctx context.Context, userID uuid.UUID, maxDevices int) (identity.User, error) {
	if maxDevices < 1 {
		return identity.User{}, pkgerrors.ValidationFailed("maxDevices", "max devices must be at least 1")
	}
	user, err := e.users.SetMaxDevices(ctx, userID, maxDevices)
	if err != nil {
		return identity.User{}, userError(err, userID)
	}
	return user, nil
}

func userError(err error, userID uuid.UUID) error {
	if errors.Is(err, identity.ErrUserNotFound) {
		return pkgerrors.NotFound("user", userID.String())
	}
	var structured *pkgerrors.Error
	if errors.As(err, &structured) {
		return err
	}
	return storeError(err, "failed to update user")
}
