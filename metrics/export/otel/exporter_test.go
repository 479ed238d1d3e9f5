package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/tokenauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot tokenauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() tokenauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tokenauth.MetricsSnapshot{
		Counters:   make(map[tokenauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[tokenauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func int64Value(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				require.Len(t, data.DataPoints, 1)
				return data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				require.Len(t, data.DataPoints, 1)
				return data.DataPoints[0].Value
			default:
				t.Fatalf("unexpected data type %T for %s", m.Data, name)
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricRefreshSuccess: 3,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := New(provider.Meter("tokenauth-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.EqualValues(t, 3, int64Value(t, rm, "tokenauth_refresh_success_total"))
	assert.EqualValues(t, 0, int64Value(t, rm, "tokenauth_logout_total"))
	assert.EqualValues(t, 1, int64Value(t, rm, "tokenauth_audit_dropped_total"))
	assert.EqualValues(t, 1, int64Value(t, rm, "tokenauth_verify_latency_seconds_bucket_le_0_005"))
	assert.EqualValues(t, 8, int64Value(t, rm, "tokenauth_verify_latency_seconds_bucket_le_inf"))
	assert.EqualValues(t, 8, int64Value(t, rm, "tokenauth_verify_latency_seconds_count"))
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()

	_, err := New(provider.Meter("tokenauth-test"), nil)
	require.ErrorIs(t, err, ErrNilSource)

	_, err = New(nil, &fakeSource{})
	require.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricIssueSuccess: 1,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricVerifyLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := New(provider.Meter("tokenauth-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exp.Close()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[tokenauth.MetricIssueSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
