package iprisk

import (
	"context"
	"errors"
	"net/netip"
	"strings"

	"github.com/tendant/device-trust/pkg/geo"
)

var ErrNotConfigured = errors.New("ip risk oracle not configured")

// Signals are the raw reputation flags returned by an oracle
type Signals struct {
	VPN   bool `json:"vpn"`
	Proxy bool `json:"proxy"`
	Tor   bool `json:"tor"`
	Relay bool `json:"relay"`
}

// Any reports whether at least one flag is set
func (s Signals) Any() bool {
	return s.VPN || s.Proxy || s.Tor || s.Relay
}

// Reason lists the set flags, comma separated
func (s Signals) Reason() string {
	var reasons []string
	if s.VPN {
		reasons = append(reasons, "VPN Detected")
	}
	if s.Proxy {
		reasons = append(reasons, "Proxy Detected")
	}
	if s.Tor {
		reasons = append(reasons, "Tor Exit Node")
	}
	if s.Relay {
		reasons = append(reasons, "Relay Detected")
	}
	return strings.Join(reasons, ", ")
}

// Result is the verdict of an oracle for one address
type Result struct {
	IsRisky    bool
	RiskReason string
	Signals    Signals
	Location   *geo.Location
}

// Oracle looks up reputation and location of a public IP address.
// Implementations return an error when they cannot answer; callers decide
// how to degrade.
type Oracle interface {
	Analyze(ctx context.Context, ip string) (Result, error)
}

// NoopOracle is used when no provider is configured
type NoopOracle struct{}

func (NoopOracle) Analyze(context.Context, string) (Result, error) {
	return Result{}, ErrNotConfigured
}

// IsPrivate reports whether ip must never be sent to an external lookup:
// loopback, private, link-local, unspecified, or not an address at all.
func IsPrivate(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return true
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
