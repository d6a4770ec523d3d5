package trust

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/tendant/device-trust/pkg/trust"

// Values of the outcome attribute on trust.logins
const (
	outcomeSuccess            = "success"
	outcomeInvalidDevice      = "invalid_device"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeSuspended          = "suspended"
	outcomeDeviceLimit        = "device_limit"
	outcomeError              = "error"
)

type engineMetrics struct {
	logins                metric.Int64Counter
	suspiciousLogins      metric.Int64Counter
	deviceLimitRejections metric.Int64Counter
	sessionsSwept         metric.Int64Counter
}

func newEngineMetrics(meter metric.Meter) *engineMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	m, err := buildEngineMetrics(meter)
	if err != nil {
		slog.Warn("Failed to create trust metrics, recording disabled", "error", err)
		m, _ = buildEngineMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func buildEngineMetrics(meter metric.Meter) (*engineMetrics, error) {
	var m engineMetrics
	var err error
	if m.logins, err = meter.Int64Counter("trust.logins",
		metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if m.suspiciousLogins, err = meter.Int64Counter("trust.suspicious_logins",
		metric.WithDescription("Successful logins flagged as suspicious")); err != nil {
		return nil, err
	}
	if m.deviceLimitRejections, err = meter.Int64Counter("trust.device_limit_rejections",
		metric.WithDescription("Logins rejected by the device cap")); err != nil {
		return nil, err
	}
	if m.sessionsSwept, err = meter.Int64Counter("trust.sessions_swept",
		metric.WithDescription("Expired or inactive sessions deleted by the sweep")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *engineMetrics) login(ctx context.Context, outcome string) {
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
