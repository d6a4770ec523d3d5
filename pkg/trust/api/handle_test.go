package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/device-trust/pkg/activitylog"
	"github.com/tendant/device-trust/pkg/client"
	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/geo"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/iprisk"
	"github.com/tendant/device-trust/pkg/ratelimit"
	"github.com/tendant/device-trust/pkg/reporting"
	"github.com/tendant/device-trust/pkg/sessions"
	"github.com/tendant/device-trust/pkg/trust"
)

const (
	password   = "password123"
	adminEmail = "admin@example.com"
	userEmail  = "alice@example.com"
	londonIP   = "81.2.69.160"
	vpnIP      = "185.220.101.1"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, ip string) iprisk.Assessment {
	switch ip {
	case londonIP:
		return iprisk.Assessment{Location: geo.NewLocation("United Kingdom", "London", 51.5074, -0.1278, geo.SourceOracle)}
	case vpnIP:
		return iprisk.Assessment{
			IsRisky:    true,
			RiskReason: "VPN Detected",
			Location:   geo.NewLocation("Netherlands", "Amsterdam", 52.3676, 4.9041, geo.SourceOracle),
		}
	}
	return iprisk.Assessment{}
}

type testServer struct {
	handler http.Handler
	users   *identity.Service
	logs    *activitylog.InMemRepository
}

func setupServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	users := identity.NewService(identity.NewInMemRepository(),
		identity.WithHasher(&identity.BcryptHasher{Cost: bcrypt.MinCost}),
	)
	sessionRepo := sessions.NewInMemRepository()
	logs := activitylog.NewInMemRepository()
	engine := trust.New(users, sessionRepo, logs, trust.WithRiskResolver(stubResolver{}))
	reports := reporting.NewService(users, sessionRepo, logs)

	_, err := users.SeedAdmin(context.Background(), "Admin", adminEmail, password, 5)
	require.NoError(t, err)
	_, err = users.Register(context.Background(), identity.RegisterRequest{Name: "Alice", Email: userEmail, Password: password})
	require.NoError(t, err)

	jwtCfg := config.JWTConfig{
		Secret:         "test-secret-key-that-is-long-enough",
		Expiry:         time.Hour,
		CookieName:     "token",
		CookieHttpOnly: true,
	}
	h := NewHandler(engine, users, reports, jwtCfg, opts...)
	return &testServer{handler: h.Routes(), users: users, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.RemoteAddr = londonIP + ":50000"
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) login(t *testing.T, email, fingerprint string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: email, Password: password, DeviceFingerprint: fingerprint, Browser: "Firefox", OS: "Linux",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	return resp
}

func TestSignup(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp SignupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bob@example.com", resp.User.Email)
	assert.Equal(t, identity.RoleUser, resp.User.Role)
	assert.NotContains(t, w.Body.String(), "secret1")

	w = s.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{Name: "Bob", Email: "not-an-email", Password: "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Code)
}

func TestSignup_InvalidBody(t *testing.T) {
	s := setupServer(t)
	r := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, w).Code)
}

func TestLogin_SetsCookie(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: userEmail, Password: password, DeviceFingerprint: "laptop",
	})
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, cookies[0].Value, resp.Token)
	assert.False(t, resp.IsSuspicious)

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	s.handler.ServeHTTP(me, r)
	require.Equal(t, http.StatusOK, me.Code)
	var meResp MeResponse
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &meResp))
	assert.Equal(t, userEmail, meResp.User.Email)
	assert.Equal(t, resp.Session.ID, meResp.SessionID)
}

func TestLogin_FingerprintHeader(t *testing.T) {
	s := setupServer(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(LoginRequest{Email: userEmail, Password: password}))
	r := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
	r.Header.Set("X-Device-Fingerprint", "from-header")
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Firefox", resp.Session.DeviceInfo.Browser)
}

func TestLogin_Failures(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: userEmail, Password: password})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: userEmail, Password: "wrong", DeviceFingerprint: "laptop"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeError(t, w).Code)
}

func TestLogin_DeviceLimit(t *testing.T) {
	s := setupServer(t)
	s.login(t, userEmail, "laptop")
	s.login(t, userEmail, "phone")

	w := s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: userEmail, Password: password, DeviceFingerprint: "tablet"})
	require.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "DEVICE_LIMIT_EXCEEDED", resp.Code)
	assert.EqualValues(t, 2, resp.Details["max_devices"])
	assert.EqualValues(t, 2, resp.Details["active_sessions"])

	// a known device refreshes instead
	s.login(t, userEmail, "laptop")
}

func TestLogout(t *testing.T) {
	s := setupServer(t)
	token := s.login(t, userEmail, "laptop")

	w := s.do(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	w = s.do(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SESSION_EXPIRED", decodeError(t, w).Code)

	// stale and missing tokens still log out
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/auth/logout", "", nil).Code)
}

func TestUserDashboardAndSessions(t *testing.T) {
	s := setupServer(t)
	laptop := s.login(t, userEmail, "laptop")
	s.login(t, userEmail, "phone")

	w := s.do(t, http.MethodGet, "/user/dashboard", laptop, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dashboard reporting.UserDashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dashboard))
	assert.Equal(t, 2, dashboard.ActiveSessions)
	assert.Equal(t, 0, dashboard.AvailableSlots)

	w = s.do(t, http.MethodGet, "/user/sessions", laptop, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []reporting.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	current := 0
	for _, v := range list {
		if v.IsCurrent {
			current++
		}
	}
	assert.Equal(t, 1, current)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/user/dashboard", "", nil).Code)
}

func TestLogoutDevice(t *testing.T) {
	s := setupServer(t)
	laptop := s.login(t, userEmail, "laptop")
	phone := s.login(t, userEmail, "phone")

	w := s.do(t, http.MethodGet, "/auth/me", phone, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))

	w = s.do(t, http.MethodDelete, "/user/sessions/"+me.SessionID.String(), laptop, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", phone, nil).Code)

	w = s.do(t, http.MethodDelete, "/user/sessions/"+me.SessionID.String(), laptop, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/user/sessions/not-a-uuid", laptop, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutAll(t *testing.T) {
	s := setupServer(t)
	laptop := s.login(t, userEmail, "laptop")
	phone := s.login(t, userEmail, "phone")

	w := s.do(t, http.MethodPost, "/user/sessions/logout-all", laptop, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp LogoutAllResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Sessions)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", laptop, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", phone, nil).Code)
}

func TestAdmin_RequiresRole(t *testing.T) {
	s := setupServer(t)
	userToken := s.login(t, userEmail, "laptop")

	w := s.do(t, http.MethodGet, "/admin/dashboard", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, w).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/admin/dashboard", "", nil).Code)
}

func TestAdmin_DashboardAndUsers(t *testing.T) {
	s := setupServer(t)
	s.login(t, userEmail, "laptop")
	admin := s.login(t, adminEmail, "admin-desktop")

	w := s.do(t, http.MethodGet, "/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats reporting.AdminDashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, 2, stats.TotalSessions)

	w = s.do(t, http.MethodGet, "/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []reporting.UserWithSessions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, 1, users[0].ActiveSessionCount)

	w = s.do(t, http.MethodGet, "/admin/users/"+users[0].ID.String()+"/details", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details reporting.UserDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Len(t, details.ActiveSessions, 1)
	assert.Len(t, details.Logs, 1)

	w = s.do(t, http.MethodGet, "/admin/sessions", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestAdmin_ToggleStatusAndForceLogout(t *testing.T) {
	s := setupServer(t)
	userToken := s.login(t, userEmail, "laptop")
	admin := s.login(t, adminEmail, "admin-desktop")

	alice, err := s.users.FindUserByEmail(context.Background(), userEmail)
	require.NoError(t, err)
	base := "/admin/users/" + alice.ID.String()

	w := s.do(t, http.MethodPost, base+"/toggle-status", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status UserStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "User deactivated successfully", status.Message)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", userToken, nil).Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: userEmail, Password: password, DeviceFingerprint: "laptop"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCOUNT_SUSPENDED", decodeError(t, w).Code)

	w = s.do(t, http.MethodPost, base+"/toggle-status", admin, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "User activated successfully", status.Message)

	userToken = s.login(t, userEmail, "laptop")
	w = s.do(t, http.MethodPost, base+"/logout", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", userToken, nil).Code)
}

func TestAdmin_SetMaxDevices(t *testing.T) {
	s := setupServer(t)
	admin := s.login(t, adminEmail, "admin-desktop")
	alice, err := s.users.FindUserByEmail(context.Background(), userEmail)
	require.NoError(t, err)
	path := "/admin/users/" + alice.ID.String() + "/max-devices"

	w := s.do(t, http.MethodPut, path, admin, MaxDevicesRequest{MaxDevices: 3})
	require.Equal(t, http.StatusOK, w.Code)
	var resp UserStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.User.MaxDevices)

	s.login(t, userEmail, "a")
	s.login(t, userEmail, "b")
	s.login(t, userEmail, "c")

	w = s.do(t, http.MethodPut, path, admin, MaxDevicesRequest{MaxDevices: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_LogsAndSuspicious(t *testing.T) {
	s := setupServer(t, WithClientIP(client.IPResolver{TrustedProxyHops: 1}.ClientIP))
	admin := s.login(t, adminEmail, "admin-desktop")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(LoginRequest{Email: userEmail, Password: password, DeviceFingerprint: "laptop"}))
	r := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
	r.RemoteAddr = "10.0.0.1:50000"
	r.Header.Set("X-Forwarded-For", vpnIP)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.True(t, login.IsSuspicious)
	assert.Equal(t, "VPN Detected", login.SuspicionReason)

	w = s.do(t, http.MethodGet, "/admin/logs?riskLevel=suspicious&type=all", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page reporting.LogPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Pages)

	w = s.do(t, http.MethodGet, "/admin/logs?search=alice&page=1&limit=5", admin, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)

	w = s.do(t, http.MethodGet, "/admin/logs?type=delete", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/admin/suspicious", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary reporting.SuspiciousSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Last7Days)
	assert.Len(t, summary.Recent, 1)
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.LoginAttempts = 2
	s := setupServer(t, WithRateLimits(ratelimit.NewLoginMiddleware(cfg), nil))

	bad := LoginRequest{Email: userEmail, Password: "wrong", DeviceFingerprint: "laptop"}
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/auth/login", "", bad).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/auth/login", "", bad).Code)

	w := s.do(t, http.MethodPost, "/auth/login", "", bad)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, w).Code)

	// signup is not limited here
	w = s.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLogin_ForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	s := setupServer(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(LoginRequest{Email: userEmail, Password: password, DeviceFingerprint: "laptop"}))
	r := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
	r.RemoteAddr = vpnIP + ":50000"
	r.Header.Set("X-Forwarded-For", londonIP)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.True(t, login.IsSuspicious)
	assert.Equal(t, vpnIP, login.Session.IPAddress)
}

func TestLogin_RateLimitKeyedOnPeerAddress(t *testing.T) {
	cfg := config.DefaultRateLimitConfig()
	cfg.LoginAttempts = 2
	s := setupServer(t, WithRateLimits(ratelimit.NewLoginMiddleware(cfg), nil))

	bad := LoginRequest{Email: userEmail, Password: "wrong", DeviceFingerprint: "laptop"}
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(bad))
		r := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
		r.RemoteAddr = londonIP + ":50000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
