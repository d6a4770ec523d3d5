package client

import (
	"context"
	"log/slog"
	"net/http"

	pkgerrors "github.com/tendant/device-trust/pkg/errors"
)

// SessionResolver turns a verified session token into the request identity
type SessionResolver func(ctx context.Context, sessionToken string) (*AuthUser, error)

// ErrorRenderer writes an error response for err
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, err error)

// PlainErrorRenderer writes err with http.Error and the status of its code
func PlainErrorRenderer(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, pkgerrors.GetMessage(err), pkgerrors.MapErrorCodeToHTTPStatus(pkgerrors.GetCode(err)))
}

// RequireSession re-validates every request against the live session named
// by its JWT. Must be used after Verifier.
func RequireSession(resolve SessionResolver, renderError ErrorRenderer) func(http.Handler) http.Handler {
	if renderError == nil {
		renderError = PlainErrorRenderer
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, sessionToken, err := SessionClaims(r.Context())
			if err != nil {
				slog.Debug("Rejected request without valid session claims", "error", err)
				renderError(w, r, pkgerrors.Unauthorized("authentication required"))
				return
			}

			user, err := resolve(r.Context(), sessionToken)
			if err != nil {
				renderError(w, r, err)
				return
			}
			if user.UserID != userID {
				slog.Warn("Session token presented with another user's id", "claimed_user_id", userID, "user_id", user.UserID)
				renderError(w, r, pkgerrors.SessionExpired())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// RequireRole allows requests whose user holds one of roles. Must be used
// after RequireSession.
func RequireRole(renderError ErrorRenderer, roles ...string) func(http.Handler) http.Handler {
	if renderError == nil {
		renderError = PlainErrorRenderer
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetAuthUser(r)
			if !ok {
				renderError(w, r, pkgerrors.Unauthorized("authentication required"))
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("User lacks required role", "user", user, "requiredRoles", roles)
			renderError(w, r, pkgerrors.Forbidden("admin access required"))
		})
	}
}
