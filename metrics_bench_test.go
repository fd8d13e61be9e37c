package carebook

import (
	"testing"
	"time"
)

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		id := MetricID(0)
		for pb.Next() {
			m.Inc(id)
			id = (id + 1) % metricIDCount
		}
	})
}

func BenchmarkMetricsObserveVerifyLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricVerifyLatency, d)
		}
	})
}
