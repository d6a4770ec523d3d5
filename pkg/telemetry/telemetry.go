// Package telemetry sets up the OpenTelemetry MeterProvider for the trust
// binaries, exporting over OTLP gRPC.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tendant/device-trust/pkg/config"
)

// ExportInterval is how often metrics are pushed to the collector
const ExportInterval = 10 * time.Second

// Provider holds the MeterProvider and its shutdown function
type Provider struct {
	MeterProvider *metric.MeterProvider
	Shutdown      func(context.Context) error
	// Exporting is false when no endpoint was configured
	Exporting bool
}

// NewProvider builds a MeterProvider exporting to cfg.OTLPEndpoint.
// The endpoint may be host:port or a URL; only the host is used for the gRPC
// dial. Non-https endpoints are insecure, and cfg.Insecure forces insecure.
// An empty endpoint yields a MeterProvider without reader.
func NewProvider(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		mp := metric.NewMeterProvider()
		return &Provider{MeterProvider: mp, Shutdown: mp.Shutdown}, nil
	}

	target, insecure, err := grpcTarget(endpoint)
	if err != nil {
		return nil, err
	}
	insecure = insecure || cfg.Insecure

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(ExportInterval))),
	)
	return &Provider{MeterProvider: mp, Shutdown: mp.Shutdown, Exporting: true}, nil
}

// SetGlobal installs the MeterProvider as the global provider
func (p *Provider) SetGlobal() {
	otel.SetMeterProvider(p.MeterProvider)
}

func newResource(serviceName string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = "device-trust"
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
}

func grpcTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, errors.New("invalid OTLP endpoint: missing host")
	}
	return u.Host, u.Scheme != "https", nil
}
