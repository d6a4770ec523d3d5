package config

import (
	"net/http"
	"time"
)

// JWTConfig holds the settings of the JWT that wraps a session token
type JWTConfig struct {
	Secret         string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Expiry         time.Duration `env:"JWT_EXPIRY" env-default:"24h"`
	CookieName     string        `env:"COOKIE_NAME" env-default:"token"`
	CookieHttpOnly bool          `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool          `env:"COOKIE_SECURE" env-default:"true"`
}

// CookieSameSite returns None for cross-site secure cookies and Lax otherwise
func (j JWTConfig) CookieSameSite() http.SameSite {
	if j.CookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// Validate rejects the built-in secret in production
func (j JWTConfig) Validate() error {
	return Validate(func() ValidationErrors {
		errs := CollectErrors(
			RequireMinLength("JWT_SECRET", j.Secret, 16),
			RequirePositiveDuration("JWT_EXPIRY", j.Expiry),
			RequireNonEmpty("COOKIE_NAME", j.CookieName),
		)
		if IsProduction() && j.Secret == "very-secure-jwt-secret" {
			errs = append(errs, ValidationError{Field: "JWT_SECRET", Message: "must be changed in production"})
		}
		return errs
	})
}

// NewJWTConfigFromEnv creates a JWTConfig from environment variables
func NewJWTConfigFromEnv() JWTConfig {
	return JWTConfig{
		Secret:         GetEnvOrDefault("JWT_SECRET", "very-secure-jwt-secret"),
		Expiry:         GetEnvDuration("JWT_EXPIRY", 24*time.Hour),
		CookieName:     GetEnvOrDefault("COOKIE_NAME", "token"),
		CookieHttpOnly: GetEnvBool("COOKIE_HTTP_ONLY", true),
		CookieSecure:   GetEnvBool("COOKIE_SECURE", true),
	}
}

// TelemetryConfig configures the OTLP metrics exporter.
// An empty endpoint installs a MeterProvider without exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	Insecure     bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"false"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" env-default:"device-trust"`
}
