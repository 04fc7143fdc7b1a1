package internaltelemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestBufferPoolMetricsAreRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewBufferPoolMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.HitsCounter.Add(ctx, 3)
	m.MissesCounter.Add(ctx, 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	values := map[string]int64{}
	for _, metrics := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := metrics.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				values[metrics.Name] += dp.Value
			}
		}
	}
	require.Equal(t, int64(3), values["minisql.bufferpool.hits_total"])
	require.Equal(t, int64(1), values["minisql.bufferpool.misses_total"])
}

func TestNewIndexMetrics(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	m, err := NewIndexMetrics(provider.Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, m.OperationsCounter)
	require.NotNil(t, m.LatencyHistogram)
	require.NotNil(t, m.ActiveOperationsUpDown)
}
