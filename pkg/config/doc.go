// Package config provides configuration helpers and the per-concern
// configuration structs of the device trust service.
//
// # Environment Variable Helpers
//
//	host := config.GetEnvOrDefault("TRUST_PG_HOST", "localhost")
//	port := config.GetEnvUint16("TRUST_PG_PORT", 5432)
//	km := config.GetEnvFloat64("TRUST_SUSPICIOUS_DISTANCE_KM", 500)
//	window := config.GetEnvDuration("TRUST_SUSPICIOUS_WINDOW", 30*time.Minute)
//
// # Configuration Structs
//
// Each concern has a struct carrying cleanenv tags, a Default...Config()
// constructor and, where useful, a New...ConfigFromEnv() loader:
//
//   - TrustConfig: device cap, session expiry, impossible travel thresholds, sweep interval
//   - IPRiskConfig: vpnapi.io key, base URL and timeout
//   - GeoIPConfig: MaxMind database path for the local fallback
//   - RateLimitConfig: login and signup limits
//   - DatabaseConfig / SQLiteConfig / StoreConfig: persistence
//   - JWTConfig: signing secret and cookie flags
//   - TelemetryConfig: OTLP endpoint
//
// Binaries compose these into one struct and read it with cleanenv:
//
//	type Config struct {
//		Trust config.TrustConfig
//		Db    config.DatabaseConfig
//	}
//	cfg := Config{}
//	cleanenv.ReadEnv(&cfg)
//
// # Validation
//
//	if err := cfg.Trust.Validate(); err != nil {
//		slog.Error("Invalid trust configuration", "error", err)
//	}
//
// Validate collects every failing field into ValidationErrors rather than
// stopping at the first one.
package config
