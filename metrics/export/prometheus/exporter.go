package prometheus

import (
	"net/http"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() carebook.MetricsSnapshot
	AuditDropped() uint64
}

// Collector publishes Engine counters as a prometheus.Collector.
type Collector struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector reads from engine on every scrape.
func NewCollector(engine *carebook.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			"carebook_audit_dropped_total",
			"Audit events dropped because the dispatcher buffer was full.",
			nil, nil,
		),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[j]
		}
		// Snapshots carry no sum.
		ch <- prometheus.MustNewConstHistogram(c.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler serves the collector, plus Go runtime and process metrics, from a
// private registry.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
