package trust

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/activitylog"
	pkgerrors "github.com/tendant/device-trust/pkg/errors"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/sessions"
)

const forceLogoutNote = "All devices logged out"

// Logout deactivates the live session holding token and records a logout.
// An unknown, expired or already inactive token is a no-op.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	now := e.now()
	s, found, err := e.sessions.Deactivate(ctx, token, now)
	if err != nil {
		return storeError(err, "failed to deactivate session")
	}
	if !found {
		slog.Debug("Logout for a session that is not live")
		return nil
	}

	_, err = e.logs.Append(ctx, activitylog.Entry{
		UserID:     s.UserID,
		Action:     activitylog.ActionLogout,
		DeviceID:   s.DeviceID,
		DeviceInfo: s.DeviceInfo,
		IPAddress:  s.IPAddress,
		Location:   s.Location,
		Timestamp:  now,
	})
	if err != nil {
		return storeError(err, "failed to record logout")
	}
	slog.Info("Session logged out", "session_id", s.ID, "user_id", s.UserID)
	return nil
}

// LogoutSession logs out one device of userID. The session must belong to
// the user and be live, otherwise NOT_FOUND.
func (e *Engine) LogoutSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	s, err := e.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return pkgerrors.NotFound("session", sessionID.String())
		}
		return storeError(err, "failed to find session")
	}
	if s.UserID != userID || !s.IsLive(e.now()) {
		return pkgerrors.NotFound("session", sessionID.String())
	}
	return e.Logout(ctx, s.SessionToken)
}

// ForceLogoutAll deactivates every live session of userID and records a
// single force_logout entry however many sessions there were.
func (e *Engine) ForceLogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	now := e.now()
	count, err := e.sessions.DeactivateAllForUser(ctx, userID, now)
	if err != nil {
		return 0, storeError(err, "failed to deactivate sessions")
	}

	_, err = e.logs.Append(ctx, activitylog.Entry{
		UserID:    userID,
		Action:    activitylog.ActionForceLogout,
		DeviceID:  activitylog.DeviceAll,
		Note:      forceLogoutNote,
		Timestamp: now,
	})
	if err != nil {
		return count, storeError(err, "failed to record force logout")
	}
	slog.Info("All sessions logged out", "user_id", userID, "count", count)
	return count, nil
}

// ListLiveSessions returns the user's live sessions, most recently active first
func (e *Engine) ListLiveSessions(ctx context.Context, userID uuid.UUID) ([]sessions.Session, error) {
	list, err := e.sessions.ListLive(ctx, userID, e.now())
	if err != nil {
		return nil, storeError(err, "failed to list sessions")
	}
	return list, nil
}

// AuthResult is a validated request identity
type AuthResult struct {
	Session sessions.Session
	User    identity.User
}

// Authenticate resolves token to a live session of an active user and
// extends it. Anything else is SESSION_EXPIRED.
func (e *Engine) Authenticate(ctx context.Context, token string) (AuthResult, error) {
	if token == "" {
		return AuthResult{}, pkgerrors.SessionExpired()
	}
	now := e.now()
	s, err := e.sessions.FindLiveByToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return AuthResult{}, pkgerrors.SessionExpired()
		}
		return AuthResult{}, storeError(err, "failed to find session")
	}

	user, err := e.users.FindUserByID(ctx, s.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return AuthResult{}, pkgerrors.SessionExpired()
		}
		return AuthResult{}, storeError(err, "failed to find user")
	}
	if !user.IsActive {
		return AuthResult{}, pkgerrors.SessionExpired()
	}

	s, err = e.sessions.Refresh(ctx, s.ID, now, now.Add(e.cfg.SessionExpiry), nil)
	if err != nil {
		return AuthResult{}, storeError(err, "failed to refresh session")
	}
	return AuthResult{Session: s, User: user}, nil
}

// SweepExpired deletes every expired or inactive session and returns how
// many rows were removed. It writes no activity log entries.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	count, err := e.sessions.DeleteExpiredOrInactive(ctx, e.now())
	if err != nil {
		return 0, storeError(err, "failed to sweep sessions")
	}
	e.metrics.sessionsSwept.Add(ctx, int64(count))
	slog.Info("Expired sessions swept", "count", count)
	return count, nil
}
