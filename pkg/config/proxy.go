package config

// MaxTrustedProxyHops bounds TRUST_PROXY_HOPS
const MaxTrustedProxyHops = 10

// ProxyConfig says how many reverse proxies front the service. Each trusted
// hop appends the address it saw to X-Forwarded-For; with zero hops the
// header is ignored and the TCP peer address identifies the client for rate
// limiting, IP risk and impossible travel.
type ProxyConfig struct {
	TrustedHops int `env:"TRUST_PROXY_HOPS" env-default:"0"`
}

// NewProxyConfigFromEnv loads ProxyConfig from TRUST_PROXY_HOPS
func NewProxyConfigFromEnv() ProxyConfig {
	return ProxyConfig{TrustedHops: GetEnvInt("TRUST_PROXY_HOPS", 0)}
}

func (c ProxyConfig) Validate() error {
	return Validate(func() ValidationErrors {
		return CollectErrors(
			RequireInRange("TRUST_PROXY_HOPS", c.TrustedHops, 0, MaxTrustedProxyHops),
		)
	})
}
