package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/tendant/device-trust/pkg/activitylog"
	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/device"
	pkgerrors "github.com/tendant/device-trust/pkg/errors"
	"github.com/tendant/device-trust/pkg/geo"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/iprisk"
	"github.com/tendant/device-trust/pkg/sessions"
	"github.com/tendant/device-trust/pkg/suspicious"
)

// maxTokenAttempts bounds regeneration when a new token collides with a stored one
const maxTokenAttempts = 3

// UserDirectory is the identity provider the engine reads users from.
// *identity.Service satisfies it.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (identity.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (identity.User, error)
	VerifyCredential(user identity.User, secret string) bool
	SetActive(ctx context.Context, id uuid.UUID, active bool) (identity.User, error)
	SetMaxDevices(ctx context.Context, id uuid.UUID, maxDevices int) (identity.User, error)
}

// RiskResolver yields the IP risk verdict and location for a login.
// *iprisk.Resolver satisfies it.
type RiskResolver interface {
	Resolve(ctx context.Context, ip string) iprisk.Assessment
}

// TravelChecker classifies a login as impossible travel.
// *suspicious.Detector satisfies it.
type TravelChecker interface {
	CheckImpossibleTravel(ctx context.Context, userID uuid.UUID, loc *geo.Location, at time.Time) suspicious.Verdict
}

// Engine creates, refreshes and revokes device-bound sessions and records
// every decision in the activity log.
type Engine struct {
	users    UserDirectory
	sessions sessions.Repository
	logs     activitylog.Repository

	risk     RiskResolver
	detector TravelChecker
	newToken sessions.TokenGenerator
	cfg      config.TrustConfig
	nowTime  func() time.Time

	meter   metric.Meter
	metrics *engineMetrics
}

type Option func(*Engine)

func WithConfig(cfg config.TrustConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithRiskResolver(r RiskResolver) Option {
	return func(e *Engine) { e.risk = r }
}

// WithDetector replaces the impossible-travel detector built from the
// activity log and the engine config.
func WithDetector(d TravelChecker) Option {
	return func(e *Engine) { e.detector = d }
}

func WithTokenGenerator(g sessions.TokenGenerator) Option {
	return func(e *Engine) { e.newToken = g }
}

func WithNowTime(now func() time.Time) Option {
	return func(e *Engine) { e.nowTime = now }
}

// WithMeter records engine counters on meter instead of the global provider
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) { e.meter = meter }
}

func New(users UserDirectory, sessionRepo sessions.Repository, logs activitylog.Repository, opts ...Option) *Engine {
	e := &Engine{
		users:    users,
		sessions: sessionRepo,
		logs:     logs,
		risk:     iprisk.NewResolver(),
		newToken: sessions.NewToken,
		cfg:      config.DefaultTrustConfig(),
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector == nil {
		e.detector = suspicious.NewDetector(logs, e.cfg)
	}
	if e.cfg.SessionExpiry <= 0 {
		e.cfg.SessionExpiry = config.DefaultSessionExpiry
	}
	if e.cfg.MaxDevices <= 0 {
		e.cfg.MaxDevices = config.DefaultMaxDevices
	}
	e.metrics = newEngineMetrics(e.meter)
	return e
}

func (e *Engine) now() time.Time {
	return e.nowTime().UTC()
}

// LoginRequest is one login attempt from a fingerprinted device
type LoginRequest struct {
	Email            string
	Password         string
	FingerprintToken string
	Device           device.Info
	IPAddress        string
}

// LoginResult is returned for a login that passed every gate. A suspicious
// result is still a successful login.
type LoginResult struct {
	Session         sessions.Session
	User            identity.User
	Refreshed       bool
	IsSuspicious    bool
	SuspicionReason string
}

// Login authenticates req and binds a session to its device. It fails with
// VALIDATION_FAILED, INVALID_CREDENTIALS, ACCOUNT_SUSPENDED or
// DEVICE_LIMIT_EXCEEDED; DeviceLimit extracts the cap from the latter.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	info := req.Device.WithDefaults()
	deviceID, err := device.Fingerprint(req.FingerprintToken, info)
	if err != nil {
		e.metrics.login(ctx, outcomeInvalidDevice)
		return LoginResult{}, err
	}

	user, err := e.users.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			e.metrics.login(ctx, outcomeInvalidCredentials)
			return LoginResult{}, pkgerrors.InvalidCredentials()
		}
		return LoginResult{}, e.loginFail(ctx, err, "failed to find user")
	}
	if !e.users.VerifyCredential(user, req.Password) {
		e.metrics.login(ctx, outcomeInvalidCredentials)
		return LoginResult{}, pkgerrors.InvalidCredentials()
	}
	if !user.IsActive {
		e.metrics.login(ctx, outcomeSuspended)
		return LoginResult{}, pkgerrors.AccountSuspended()
	}

	assessment := e.risk.Resolve(ctx, req.IPAddress)
	now := e.now()

	live, err := e.sessions.CountLive(ctx, user.ID, now)
	if err != nil {
		return LoginResult{}, e.loginFail(ctx, err, "failed to count sessions")
	}
	existing, err := e.sessions.FindLiveByDevice(ctx, user.ID, deviceID, now)
	hasExisting := err == nil
	if err != nil && !errors.Is(err, sessions.ErrNotFound) {
		return LoginResult{}, e.loginFail(ctx, err, "failed to find device session")
	}

	maxDevices := e.maxDevicesFor(user)
	if !hasExisting && live >= maxDevices {
		return LoginResult{}, e.rejectDeviceLimit(ctx, user, deviceID, info, req.IPAddress, assessment.Location, live, maxDevices, now)
	}

	var session sessions.Session
	if hasExisting {
		var loc *geo.Location
		if assessment.Location.HasCity() {
			loc = assessment.Location
		}
		session, err = e.sessions.Refresh(ctx, existing.ID, now, now.Add(e.cfg.SessionExpiry), loc)
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			// logged out since FindLiveByDevice
			slog.Info("Device session ended before refresh", "session_id", existing.ID, "user_id", user.ID)
			hasExisting = false
		case err != nil:
			return LoginResult{}, e.loginFail(ctx, err, "failed to refresh session")
		default:
			slog.Info("Session refreshed", "session_id", session.ID, "user_id", user.ID)
		}
	}
	if !hasExisting {
		session, err = e.createSession(ctx, user.ID, deviceID, info, req.IPAddress, assessment.Location, now)
		if err != nil {
			return LoginResult{}, e.loginFail(ctx, err, "failed to create session")
		}
		slog.Info("Session created", "session_id", session.ID, "user_id", user.ID, "device", device.Nickname(info))
	}

	travel := e.detector.CheckImpossibleTravel(ctx, user.ID, assessment.Location, now)
	isSuspicious := assessment.IsRisky || travel.IsSuspicious
	var reasons []string
	if assessment.IsRisky && assessment.RiskReason != "" {
		reasons = append(reasons, assessment.RiskReason)
	}
	if travel.IsSuspicious && travel.Reason != "" {
		reasons = append(reasons, travel.Reason)
	}
	reason := ""
	if isSuspicious {
		reason = strings.Join(reasons, "; ")
	}

	_, err = e.logs.Append(ctx, activitylog.Entry{
		UserID:          user.ID,
		Action:          activitylog.ActionLogin,
		DeviceID:        deviceID,
		DeviceInfo:      info,
		IPAddress:       req.IPAddress,
		Location:        assessment.Location,
		IsSuspicious:    isSuspicious,
		SuspicionReason: reason,
		Timestamp:       now,
	})
	if err != nil {
		return LoginResult{}, e.loginFail(ctx, err, "failed to record login")
	}

	if isSuspicious {
		slog.Warn("Suspicious login", "user_id", user.ID, "session_id", session.ID, "reason", reason)
		e.metrics.suspiciousLogins.Add(ctx, 1)
	}
	e.metrics.login(ctx, outcomeSuccess)

	return LoginResult{
		Session:         session,
		User:            user,
		Refreshed:       hasExisting,
		IsSuspicious:    isSuspicious,
		SuspicionReason: reason,
	}, nil
}

func (e *Engine) maxDevicesFor(user identity.User) int {
	if user.MaxDevices > 0 {
		return user.MaxDevices
	}
	return e.cfg.MaxDevices
}

func (e *Engine) rejectDeviceLimit(ctx context.Context, user identity.User, deviceID string, info device.Info, ip string, loc *geo.Location, live, maxDevices int, now time.Time) error {
	reason := fmt.Sprintf("Device limit exceeded (%d/%d)", live, maxDevices)
	_, err := e.logs.Append(ctx, activitylog.Entry{
		UserID:          user.ID,
		Action:          activitylog.ActionDeviceLimitExceeded,
		DeviceID:        deviceID,
		DeviceInfo:      info,
		IPAddress:       ip,
		Location:        loc,
		IsSuspicious:    true,
		SuspicionReason: reason,
		Timestamp:       now,
	})
	if err != nil {
		return e.loginFail(ctx, err, "failed to record device limit rejection")
	}

	slog.Warn("Device limit exceeded", "user_id", user.ID, "active_sessions", live, "max_devices", maxDevices)
	e.metrics.deviceLimitRejections.Add(ctx, 1)
	e.metrics.login(ctx, outcomeDeviceLimit)
	return pkgerrors.DeviceLimitExceeded(maxDevices, live)
}

func (e *Engine) createSession(ctx context.Context, userID uuid.UUID, deviceID string, info device.Info, ip string, loc *geo.Location, now time.Time) (sessions.Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := e.newToken()
		if err != nil {
			return sessions.Session{}, fmt.Errorf("failed to generate session token: %w", err)
		}
		s, err := e.sessions.Create(ctx, sessions.Session{
			ID:           uuid.New(),
			UserID:       userID,
			DeviceID:     deviceID,
			DeviceInfo:   info,
			SessionToken: token,
			IPAddress:    ip,
			Location:     loc,
			IsActive:     true,
			LastActivity: now,
			ExpiresAt:    now.Add(e.cfg.SessionExpiry),
			CreatedAt:    now,
		})
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, sessions.ErrDuplicateToken) {
			return sessions.Session{}, err
		}
		lastErr = err
	}
	return sessions.Session{}, lastErr
}

// loginFail counts a failed login and wraps err like storeError
func (e *Engine) loginFail(ctx context.Context, err error, msg string) error {
	e.metrics.login(ctx, outcomeError)
	return storeError(err, msg)
}

// storeError logs a store failure and wraps it as INTERNAL_ERROR
func storeError(err error, msg string) error {
	slog.Error(msg, "error", err)
	return pkgerrors.InternalWrap(err, msg)
}

// DeviceLimit reports the cap and live session count carried by a
// DEVICE_LIMIT_EXCEEDED error.
func DeviceLimit(err error) (maxDevices, activeSessions int, ok bool) {
	if !pkgerrors.IsCode(err, pkgerrors.ErrCodeDeviceLimitExceeded) {
		return 0, 0, false
	}
	details := pkgerrors.GetDetails(err)
	maxDevices, ok1 := details[pkgerrors.DetailMaxDevices].(int)
	activeSessions, ok2 := details[pkgerrors.DetailActiveSessions].(int)
	return maxDevices, activeSessions, ok1 && ok2
}
