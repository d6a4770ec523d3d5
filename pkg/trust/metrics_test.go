package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAttributes(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}

func TestEngineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	env := setupEngine(t, WithMeter(provider.Meter("test")))
	env.register(t, "alice@example.com")
	ctx := context.Background()

	_, err := env.login("alice@example.com", "device-a", londonIP)
	require.NoError(t, err)
	_, err = env.login("alice@example.com", "device-b", vpnIP)
	require.NoError(t, err)
	_, err = env.login("alice@example.com", "device-c", londonIP)
	require.Error(t, err)
	_, err = env.login("nobody@example.com", "device-c", londonIP)
	require.Error(t, err)

	outcome := func(v string) attribute.KeyValue { return attribute.String("outcome", v) }
	assert.Equal(t, int64(2), counterValue(t, reader, "trust.logins", outcome(outcomeSuccess)))
	assert.Equal(t, int64(1), counterValue(t, reader, "trust.logins", outcome(outcomeDeviceLimit)))
	assert.Equal(t, int64(1), counterValue(t, reader, "trust.logins", outcome(outcomeInvalidCredentials)))
	assert.Equal(t, int64(4), counterValue(t, reader, "trust.logins"))
	assert.Equal(t, int64(1), counterValue(t, reader, "trust.suspicious_logins"))
	assert.Equal(t, int64(1), counterValue(t, reader, "trust.device_limit_rejections"))

	env.clock.Advance(48 * time.Hour)
	_, err = env.engine.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counterValue(t, reader, "trust.sessions_swept"))
}
