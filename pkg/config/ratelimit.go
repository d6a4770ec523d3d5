package config

import "time"

// RateLimitConfig contains per-IP limits for the unauthenticated endpoints.
// Each limit allows Attempts requests per Window with a burst of Attempts.
type RateLimitConfig struct {
	LoginEnabled  bool          `env:"RATELIMIT_LOGIN_ENABLED" env-default:"true"`
	LoginAttempts int           `env:"RATELIMIT_LOGIN_ATTEMPTS" env-default:"5"`
	LoginWindow   time.Duration `env:"RATELIMIT_LOGIN_WINDOW" env-default:"15m"`

	SignupEnabled  bool          `env:"RATELIMIT_SIGNUP_ENABLED" env-default:"true"`
	SignupAttempts int           `env:"RATELIMIT_SIGNUP_ATTEMPTS" env-default:"3"`
	SignupWindow   time.Duration `env:"RATELIMIT_SIGNUP_WINDOW" env-default:"1h"`

	// BucketTTL is how long an idle client's limiter is kept in memory
	BucketTTL time.Duration `env:"RATELIMIT_BUCKET_TTL" env-default:"1h"`

	// IncludeHeaders controls whether rate limit headers are included in responses
	IncludeHeaders bool `env:"RATELIMIT_INCLUDE_HEADERS" env-default:"true"`
}

// DefaultRateLimitConfig returns 5 logins per 15 minutes and 3 signups per hour
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		LoginEnabled:   true,
		LoginAttempts:  5,
		LoginWindow:    15 * time.Minute,
		SignupEnabled:  true,
		SignupAttempts: 3,
		SignupWindow:   time.Hour,
		BucketTTL:      time.Hour,
		IncludeHeaders: true,
	}
}

// NewRateLimitConfigFromEnv loads RateLimitConfig from standard environment variables.
//
// Environment variables:
//   - RATELIMIT_LOGIN_ENABLED: Enable login rate limiting (default: true)
//   - RATELIMIT_LOGIN_ATTEMPTS: Login attempts per window (default: 5)
//   - RATELIMIT_LOGIN_WINDOW: Login window (default: 15m)
//   - RATELIMIT_SIGNUP_ENABLED: Enable signup rate limiting (default: true)
//   - RATELIMIT_SIGNUP_ATTEMPTS: Signups per window (default: 3)
//   - RATELIMIT_SIGNUP_WINDOW: Signup window (default: 1h)
//   - RATELIMIT_BUCKET_TTL: Idle limiter retention (default: 1h)
//   - RATELIMIT_INCLUDE_HEADERS: Include rate limit headers in responses (default: true)
func NewRateLimitConfigFromEnv() RateLimitConfig {
	return RateLimitConfig{
		LoginEnabled:   GetEnvBool("RATELIMIT_LOGIN_ENABLED", true),
		LoginAttempts:  GetEnvInt("RATELIMIT_LOGIN_ATTEMPTS", 5),
		LoginWindow:    GetEnvDuration("RATELIMIT_LOGIN_WINDOW", 15*time.Minute),
		SignupEnabled:  GetEnvBool("RATELIMIT_SIGNUP_ENABLED", true),
		SignupAttempts: GetEnvInt("RATELIMIT_SIGNUP_ATTEMPTS", 3),
		SignupWindow:   GetEnvDuration("RATELIMIT_SIGNUP_WINDOW", time.Hour),
		BucketTTL:      GetEnvDuration("RATELIMIT_BUCKET_TTL", time.Hour),
		IncludeHeaders: GetEnvBool("RATELIMIT_INCLUDE_HEADERS", true),
	}
}

// Validate checks enabled limits
func (c RateLimitConfig) Validate() error {
	return Validate(
		func() ValidationErrors {
			if !c.LoginEnabled {
				return nil
			}
			return CollectErrors(
				RequirePositive("RATELIMIT_LOGIN_ATTEMPTS", c.LoginAttempts),
				RequirePositiveDuration("RATELIMIT_LOGIN_WINDOW", c.LoginWindow),
			)
		},
		func() ValidationErrors {
			if !c.SignupEnabled {
				return nil
			}
			return CollectErrors(
				RequirePositive("RATELIMIT_SIGNUP_ATTEMPTS", c.SignupAttempts),
				RequirePositiveDuration("RATELIMIT_SIGNUP_WINDOW", c.SignupWindow),
			)
		},
	)
}
