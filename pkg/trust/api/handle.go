package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	"github.com/tendant/device-trust/pkg/activitylog"
	"github.com/tendant/device-trust/pkg/client"
	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/device"
	pkgerrors "github.com/tendant/device-trust/pkg/errors"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/ratelimit"
	"github.com/tendant/device-trust/pkg/reporting"
	"github.com/tendant/device-trust/pkg/trust"
)

// Handler serves the auth, user and admin routes
type Handler struct {
	engine  *trust.Engine
	users   *identity.Service
	reports *reporting.Service
	jwt     *jwtauth.JWTAuth
	jwtCfg  config.JWTConfig

	loginLimit  *ratelimit.Middleware
	signupLimit *ratelimit.Middleware
	clientIP    func(*http.Request) string
	nowTime     func() time.Time
}

type Option func(*Handler)

// WithRateLimits installs login and signup limiters; a nil limiter disables one
func WithRateLimits(login, signup *ratelimit.Middleware) Option {
	return func(h *Handler) {
		h.loginLimit = login
		h.signupLimit = signup
	}
}

// WithClientIP sets how the login address is taken from a request, the
// TCP peer (client.ClientIP) by default. Pass an IPResolver's ClientIP
// when running behind trusted proxies.
func WithClientIP(fn func(*http.Request) string) Option {
	return func(h *Handler) {
		h.clientIP = fn
	}
}

// WithNowTime sets the clock used for JWT and cookie expiry
func WithNowTime(now func() time.Time) Option {
	return func(h *Handler) {
		h.nowTime = now
	}
}

// NewHandler creates a handler. The JWT is signed with HS256 and jwtCfg.Secret.
func NewHandler(engine *trust.Engine, users *identity.Service, reports *reporting.Service, jwtCfg config.JWTConfig, opts ...Option) *Handler {
	if jwtCfg.CookieName == "" {
		jwtCfg.CookieName = client.TokenCookieName
	}
	h := &Handler{
		engine:   engine,
		users:    users,
		reports:  reports,
		jwt:      jwtauth.New("HS256", []byte(jwtCfg.Secret), nil),
		jwtCfg:   jwtCfg,
		clientIP: client.ClientIP,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) resolveSession(ctx context.Context, sessionToken string) (*client.AuthUser, error) {
	res, err := h.engine.Authenticate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return &client.AuthUser{
		UserID:       res.User.ID,
		Name:         res.User.Name,
		Email:        res.User.Email,
		Role:         string(res.User.Role),
		SessionID:    res.Session.ID,
		SessionToken: sessionToken,
	}, nil
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.jwtCfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  h.nowTime().Add(h.jwtCfg.Expiry),
		HttpOnly: h.jwtCfg.CookieHttpOnly,
		Secure:   h.jwtCfg.CookieSecure,
		SameSite: h.jwtCfg.CookieSameSite(),
	})
}

func (h *Handler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.jwtCfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: h.jwtCfg.CookieHttpOnly,
		Secure:   h.jwtCfg.CookieSecure,
		SameSite: h.jwtCfg.CookieSameSite(),
	})
}

// Signup handles POST /auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	user, err := h.users.Register(r.Context(), identity.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	slog.Info("User signed up", "user_id", user.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SignupResponse{Message: "User created successfully", User: userResponse(user)})
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	result, err := h.engine.Login(r.Context(), trust.LoginRequest{
		Email:            req.Email,
		Password:         req.Password,
		FingerprintToken: device.FingerprintToken(r, req.DeviceFingerprint),
		Device:           device.InfoFromRequest(r, req.deviceInfo()),
		IPAddress:        h.clientIP(r),
	})
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	token, err := client.IssueToken(h.jwt, result.User.ID, result.Session.SessionToken, h.jwtCfg.Expiry, h.nowTime())
	if err != nil {
		renderErrorResponse(w, r, pkgerrors.InternalWrap(err, "failed to issue token"))
		return
	}
	h.setTokenCookie(w, token)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{
		Message:         "Login successful",
		Token:           token,
		User:            userResponse(result.User),
		Session:         result.Session,
		IsSuspicious:    result.IsSuspicious,
		SuspicionReason: result.SuspicionReason,
	})
}

// Logout handles POST /auth/logout. It succeeds for stale or missing tokens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, sessionToken, err := client.SessionClaims(r.Context()); err == nil {
		if err := h.engine.Logout(r.Context(), sessionToken); err != nil {
			renderErrorResponse(w, r, err)
			return
		}
	}

	h.clearTokenCookie(w)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser, _ := client.GetAuthUser(r)
	user, err := h.users.FindUserByID(r.Context(), authUser.UserID)
	if err != nil {
		renderErrorResponse(w, r, pkgerrors.SessionExpired())
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MeResponse{User: userResponse(user), SessionID: authUser.SessionID})
}

// UserDashboard handles GET /user/dashboard
func (h *Handler) UserDashboard(w http.ResponseWriter, r *http.Request) {
	authUser, _ := client.GetAuthUser(r)
	dashboard, err := h.reports.UserDashboard(r.Context(), authUser.UserID, authUser.SessionID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, dashboard)
}

// UserSessions handles GET /user/sessions
func (h *Handler) UserSessions(w http.ResponseWriter, r *http.Request) {
	authUser, _ := client.GetAuthUser(r)
	list, err := h.reports.UserSessions(r.Context(), authUser.UserID, authUser.SessionID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

// LogoutDevice handles DELETE /user/sessions/{sessionID}
func (h *Handler) LogoutDevice(w http.ResponseWriter, r *http.Request) {
	authUser, _ := client.GetAuthUser(r)
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	if err := h.engine.LogoutSession(r.Context(), authUser.UserID, sessionID); err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	if sessionID == authUser.SessionID {
		h.clearTokenCookie(w)
	}

	render.JSON(w, r, MessageResponse{Message: "Device logged out successfully"})
}

// LogoutAll handles POST /user/sessions/logout-all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	authUser, _ := client.GetAuthUser(r)
	count, err := h.engine.ForceLogoutAll(r.Context(), authUser.UserID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	h.clearTokenCookie(w)
	render.JSON(w, r, LogoutAllResponse{Message: "Logged out from all devices", Sessions: count})
}

// AdminDashboard handles GET /admin/dashboard
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.AdminDashboard(r.Context())
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// ListUsers handles GET /admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.reports.ListUsers(r.Context())
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, users)
}

// UserDetails handles GET /admin/users/{userID}/details
func (h *Handler) UserDetails(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userID")
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	details, err := h.reports.UserDetails(r.Context(), userID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, details)
}

// SuspiciousSummary handles GET /admin/suspicious
func (h *Handler) SuspiciousSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.SuspiciousSummary(r.Context())
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// AllSessions handles GET /admin/sessions
func (h *Handler) AllSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.reports.AllSessions(r.Context())
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

// ForceLogoutUser handles POST /admin/users/{userID}/logout
func (h *Handler) ForceLogoutUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userID")
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	count, err := h.engine.ForceLogoutAll(r.Context(), userID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	admin, _ := client.GetAuthUser(r)
	slog.Info("Admin forced logout", "admin", admin, "user_id", userID, "sessions", count)
	render.JSON(w, r, LogoutAllResponse{Message: "User logged out from all devices", Sessions: count})
}

// ToggleUserStatus handles POST /admin/users/{userID}/toggle-status
func (h *Handler) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userID")
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	user, err := h.engine.ToggleUserStatus(r.Context(), userID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	message := "User deactivated successfully"
	if user.IsActive {
		message = "User activated successfully"
	}
	render.JSON(w, r, UserStatusResponse{Message: message, User: userResponse(user)})
}

// SetMaxDevices handles PUT /admin/users/{userID}/max-devices
func (h *Handler) SetMaxDevices(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userID")
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	var req MaxDevicesRequest
	if err := decodeJSON(r, &req); err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	user, err := h.engine.SetMaxDevices(r.Context(), userID, req.MaxDevices)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, UserStatusResponse{Message: "Device limit updated", User: userResponse(user)})
}

// SystemLogs handles GET /admin/logs?page=&limit=&search=&type=&riskLevel=suspicious
func (h *Handler) SystemLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	logs, err := h.reports.ListLogs(r.Context(), reporting.LogQuery{
		Search:         q.Get("search"),
		Action:         activitylog.Action(q.Get("type")),
		SuspiciousOnly: q.Get("riskLevel") == "suspicious",
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, logs)
}
