package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/device-trust/pkg/client"
	"github.com/tendant/device-trust/pkg/identity"
)

// Routes mounts every route on a new router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers /auth, /user and /admin on r
func (h *Handler) RegisterRoutes(r chi.Router) {
	verifier := client.CookieVerifier(h.jwt, h.jwtCfg.CookieName)
	authenticated := client.RequireSession(h.resolveSession, renderErrorResponse)

	r.Route("/auth", func(r chi.Router) {
		r.With(h.signupLimit.Handler).Post("/signup", h.Signup)
		r.With(h.loginLimit.Handler).Post("/login", h.Login)
		r.With(verifier).Post("/logout", h.Logout)
		r.With(verifier, authenticated).Get("/me", h.Me)
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(verifier, authenticated)
		r.Get("/dashboard", h.UserDashboard)
		r.Get("/sessions", h.UserSessions)
		r.Delete("/sessions/{sessionID}", h.LogoutDevice)
		r.Post("/sessions/logout-all", h.LogoutAll)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(verifier, authenticated, client.RequireRole(renderErrorResponse, string(identity.RoleAdmin)))
		r.Get("/dashboard", h.AdminDashboard)
		r.Get("/users", h.ListUsers)
		r.Get("/users/{userID}/details", h.UserDetails)
		r.Post("/users/{userID}/logout", h.ForceLogoutUser)
		r.Post("/users/{userID}/toggle-status", h.ToggleUserStatus)
		r.Put("/users/{userID}/max-devices", h.SetMaxDevices)
		r.Get("/suspicious", h.SuspiciousSummary)
		r.Get("/sessions", h.AllSessions)
		r.Get("/logs", h.SystemLogs)
	})
}
