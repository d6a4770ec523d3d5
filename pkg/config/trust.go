package config

import "time"

// Fixed defaults of the trust engine.
const (
	DefaultMaxDevices           = 2
	DefaultSessionExpiry        = 24 * time.Hour
	DefaultSuspiciousDistanceKm = 500.0
	DefaultSuspiciousWindow     = 30 * time.Minute
	DefaultSweepInterval        = 15 * time.Minute
)

// TrustConfig contains the device cap, session horizon and anomaly thresholds.
type TrustConfig struct {
	// MaxDevices applies to users whose own limit is unset
	MaxDevices int `env:"TRUST_MAX_DEVICES" env-default:"2"`

	// SessionExpiry is the horizon set on create and on every refresh
	SessionExpiry time.Duration `env:"TRUST_SESSION_EXPIRY" env-default:"24h"`

	// SuspiciousDistanceKm is the distance above which a fast relogin is impossible travel
	SuspiciousDistanceKm float64 `env:"TRUST_SUSPICIOUS_DISTANCE_KM" env-default:"500"`

	// SuspiciousWindow bounds both the lookback and the elapsed time
	SuspiciousWindow time.Duration `env:"TRUST_SUSPICIOUS_WINDOW" env-default:"30m"`

	// SweepInterval is how often expired and inactive sessions are purged
	SweepInterval time.Duration `env:"TRUST_SWEEP_INTERVAL" env-default:"15m"`
}

// DefaultTrustConfig returns a TrustConfig with the standard thresholds
func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		MaxDevices:           DefaultMaxDevices,
		SessionExpiry:        DefaultSessionExpiry,
		SuspiciousDistanceKm: DefaultSuspiciousDistanceKm,
		SuspiciousWindow:     DefaultSuspiciousWindow,
		SweepInterval:        DefaultSweepInterval,
	}
}

// NewTrustConfigFromEnv loads TrustConfig from standard environment variables.
//
// Environment variables:
//   - TRUST_MAX_DEVICES: default device cap (default: 2)
//   - TRUST_SESSION_EXPIRY: session horizon (default: 24h)
//   - TRUST_SUSPICIOUS_DISTANCE_KM: impossible travel distance (default: 500)
//   - TRUST_SUSPICIOUS_WINDOW: impossible travel window (default: 30m)
//   - TRUST_SWEEP_INTERVAL: purge interval (default: 15m)
func NewTrustConfigFromEnv() TrustConfig {
	return TrustConfig{
		MaxDevices:           GetEnvInt("TRUST_MAX_DEVICES", DefaultMaxDevices),
		SessionExpiry:        GetEnvDuration("TRUST_SESSION_EXPIRY", DefaultSessionExpiry),
		SuspiciousDistanceKm: GetEnvFloat64("TRUST_SUSPICIOUS_DISTANCE_KM", DefaultSuspiciousDistanceKm),
		SuspiciousWindow:     GetEnvDuration("TRUST_SUSPICIOUS_WINDOW", DefaultSuspiciousWindow),
		SweepInterval:        GetEnvDuration("TRUST_SWEEP_INTERVAL", DefaultSweepInterval),
	}
}

// Validate checks the thresholds
func (c TrustConfig) Validate() error {
	return Validate(func() ValidationErrors {
		return CollectErrors(
			RequirePositive("TRUST_MAX_DEVICES", c.MaxDevices),
			RequirePositiveDuration("TRUST_SESSION_EXPIRY", c.SessionExpiry),
			RequirePositiveFloat("TRUST_SUSPICIOUS_DISTANCE_KM", c.SuspiciousDistanceKm),
			RequirePositiveDuration("TRUST_SUSPICIOUS_WINDOW", c.SuspiciousWindow),
			RequirePositiveDuration("TRUST_SWEEP_INTERVAL", c.SweepInterval),
		)
	})
}

// IPRiskConfig configures the vpnapi.io lookup.
// An empty APIKey disables the lookup; logins then rely on the local GeoIP fallback.
type IPRiskConfig struct {
	APIKey  string        `env:"VPN_API_KEY" env-default:""`
	BaseURL string        `env:"VPN_API_BASE_URL" env-default:"https://vpnapi.io/api"`
	Timeout time.Duration `env:"VPN_API_TIMEOUT" env-default:"3s"`
}

// DefaultIPRiskConfig returns the lookup disabled with a 3 second timeout
func DefaultIPRiskConfig() IPRiskConfig {
	return IPRiskConfig{
		BaseURL: "https://vpnapi.io/api",
		Timeout: 3 * time.Second,
	}
}

// NewIPRiskConfigFromEnv loads IPRiskConfig from VPN_API_KEY, VPN_API_BASE_URL and VPN_API_TIMEOUT
func NewIPRiskConfigFromEnv() IPRiskConfig {
	return IPRiskConfig{
		APIKey:  GetEnvOrDefault("VPN_API_KEY", ""),
		BaseURL: GetEnvOrDefault("VPN_API_BASE_URL", "https://vpnapi.io/api"),
		Timeout: GetEnvDuration("VPN_API_TIMEOUT", 3*time.Second),
	}
}

// Enabled reports whether a key is configured
func (c IPRiskConfig) Enabled() bool {
	return c.APIKey != ""
}

// Validate checks the lookup settings when a key is configured
func (c IPRiskConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	return Validate(func() ValidationErrors {
		return CollectErrors(
			RequireValidURL("VPN_API_BASE_URL", c.BaseURL),
			RequirePositiveDuration("VPN_API_TIMEOUT", c.Timeout),
		)
	})
}

// GeoIPConfig points at a MaxMind GeoLite2 City database.
// An empty path disables the local fallback.
type GeoIPConfig struct {
	DatabasePath string `env:"GEOIP_DATABASE_PATH" env-default:""`
}
