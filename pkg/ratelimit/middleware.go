package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/tendant/device-trust/pkg/client"
	"github.com/tendant/device-trust/pkg/config"
	pkgerrors "github.com/tendant/device-trust/pkg/errors"
)

const (
	LoginMessage  = "Too many login attempts. Please try again after 15 minutes."
	SignupMessage = "Too many accounts created. Please try again later."
)

// Middleware rejects requests with 429 once a client exhausts its bucket
type Middleware struct {
	name           string
	message        string
	limiter        *KeyedLimiter
	keyFunc        func(*http.Request) string
	includeHeaders bool
	renderError    client.ErrorRenderer
}

type Option func(*Middleware)

// WithKeyFunc overrides the bucket key, client.ClientIP (RemoteAddr) by default
func WithKeyFunc(fn func(*http.Request) string) Option {
	return func(m *Middleware) {
		m.keyFunc = fn
	}
}

func WithHeaders(include bool) Option {
	return func(m *Middleware) {
		m.includeHeaders = include
	}
}

func WithMessage(message string) Option {
	return func(m *Middleware) {
		m.message = message
	}
}

// WithErrorRenderer sets how the 429 response is written
func WithErrorRenderer(fn client.ErrorRenderer) Option {
	return func(m *Middleware) {
		m.renderError = fn
	}
}

// New creates a middleware named name around limiter
func New(name string, limiter *KeyedLimiter, opts ...Option) *Middleware {
	m := &Middleware{
		name:        name,
		message:     "rate limit exceeded",
		limiter:     limiter,
		keyFunc:     client.ClientIP,
		renderError: renderJSONError,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewLoginMiddleware returns nil when login limiting is disabled
func NewLoginMiddleware(cfg config.RateLimitConfig, opts ...Option) *Middleware {
	if !cfg.LoginEnabled {
		return nil
	}
	limiter := NewKeyedLimiter(cfg.LoginAttempts, cfg.LoginWindow, cfg.BucketTTL)
	opts = append([]Option{WithHeaders(cfg.IncludeHeaders), WithMessage(LoginMessage)}, opts...)
	return New("login", limiter, opts...)
}

// NewSignupMiddleware returns nil when signup limiting is disabled
func NewSignupMiddleware(cfg config.RateLimitConfig, opts ...Option) *Middleware {
	if !cfg.SignupEnabled {
		return nil
	}
	limiter := NewKeyedLimiter(cfg.SignupAttempts, cfg.SignupWindow, cfg.BucketTTL)
	opts = append([]Option{WithHeaders(cfg.IncludeHeaders), WithMessage(SignupMessage)}, opts...)
	return New("signup", limiter, opts...)
}

// Handler wraps next. A nil Middleware passes every request through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.keyFunc(r)
		d := m.limiter.Allow(key)

		if m.includeHeaders {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}

		if !d.Allowed {
			retryAfter := retryAfterSeconds(d.RetryAfter)
			w.Header().Set("Retry-After", retryAfter)
			slog.Warn("Rate limit exceeded",
				"limiter", m.name,
				"key", key,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			err := pkgerrors.RateLimitExceeded(retryAfter)
			err.Message = m.message
			m.renderError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func renderJSONError(w http.ResponseWriter, r *http.Request, err error) {
	body := map[string]interface{}{
		"status":  "error",
		"message": pkgerrors.GetMessage(err),
		"code":    string(pkgerrors.GetCode(err)),
	}
	if details := pkgerrors.GetDetails(err); len(details) > 0 {
		body["details"] = details
	}
	render.Status(r, pkgerrors.MapErrorCodeToHTTPStatus(pkgerrors.GetCode(err)))
	render.JSON(w, r, body)
}
