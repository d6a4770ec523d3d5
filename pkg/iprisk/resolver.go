package iprisk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tendant/device-trust/pkg/geo"
)

// Assessment is what the login path needs from an address: a risk verdict and
// the best location available.
type Assessment struct {
	IsRisky    bool
	RiskReason string
	Location   *geo.Location
}

// Resolver combines an Oracle with a local Locator. Oracle failures degrade
// to non-risky and the location falls back to the Locator.
type Resolver struct {
	oracle  Oracle
	locator geo.Locator
	timeout time.Duration
}

type ResolverOption func(*Resolver)

func WithOracle(o Oracle) ResolverOption {
	return func(r *Resolver) { r.oracle = o }
}

func WithLocator(l geo.Locator) ResolverOption {
	return func(r *Resolver) { r.locator = l }
}

// WithTimeout bounds each oracle call
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver defaults to no oracle, no locator and a 3 second timeout
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		oracle:  NoopOracle{},
		locator: geo.NoopLocator{},
		timeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails. Private addresses short-circuit with no lookup.
func (r *Resolver) Resolve(ctx context.Context, ip string) Assessment {
	if IsPrivate(ip) {
		return Assessment{}
	}

	var out Assessment

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := r.oracle.Analyze(lookupCtx, ip)
	cancel()

	switch {
	case err == nil:
		out.IsRisky = result.IsRisky
		if result.IsRisky {
			out.RiskReason = result.RiskReason
		}
		out.Location = result.Location
	case errors.Is(err, ErrNotConfigured):
		slog.Debug("IP risk oracle not configured, using local geolocation", "ip", ip)
	default:
		slog.Warn("IP risk lookup failed, treating address as not risky", "ip", ip, "error", err)
	}

	if out.Location == nil {
		out.Location = r.fallback(ip)
	}
	return out
}

func (r *Resolver) fallback(ip string) *geo.Location {
	loc, err := r.locator.Lookup(ip)
	if err != nil {
		slog.Warn("Local geolocation failed", "ip", ip, "error", err)
		return nil
	}
	return loc
}
