package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/carebook"
	"github.com/MrEthical07/carebook/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() carebook.MetricsSnapshot
	AuditDropped() uint64
}

type latencyGauges struct {
	id      carebook.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[carebook.MetricID]metric.Int64ObservableCounter
	latency      []latencyGauges
	auditDropped metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, engine *carebook.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[carebook.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		g := latencyGauges{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative bucket count. "+def.Help))
			if err != nil {
				return nil, fmt.Errorf("create bucket gauge %s: %w", name, err)
			}
			g.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Sample count. "+def.Help))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s_count: %w", def.Name, err)
		}
		g.count = count
		observables = append(observables, count)
		e.latency = append(e.latency, g)
	}

	dropped, err := meter.Int64ObservableCounter(
		"carebook_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return nil
	}

	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}
	for _, g := range e.latency {
		raw, ok := snapshot.Histograms[g.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			o.ObserveInt64(g.buckets[i], int64(cumulative[i]))
		}
		o.ObserveInt64(g.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. It is safe on a nil Exporter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
