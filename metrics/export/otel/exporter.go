package otel

import (
	"context"
	"errors"
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *goGuard.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goGuard.MetricsSnapshot
	AuditDropped() uint64
}

type sessionCounter interface {
	ActiveSessions() int
}

// histogram publishes one engine histogram as a cumulative bucket gauge keyed
// by an "le" attribute, plus a sample count.
type histogram struct {
	id     goGuard.MetricID
	bucket metric.Int64ObservableGauge
	count  metric.Int64ObservableGauge
}

// leSets are the per-bucket attribute sets, built once.
var leSets = func() []metric.ObserveOption {
	out := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		out[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	return out
}()

// Exporter registers observable instruments on a meter and fills them from
// Source at collection time.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     map[goGuard.MetricID]metric.Int64ObservableCounter
	histograms   []histogram
	auditDropped metric.Int64ObservableCounter
	sessions     metric.Int64ObservableGauge
}

func NewExporter(meter metric.Meter, engine *goGuard.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[goGuard.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable
	counter := func(name, help string) (metric.Int64ObservableCounter, error) {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}
	gauge := func(name, help string) (metric.Int64ObservableGauge, error) {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("otel: gauge %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}

	for _, def := range internaldefs.CounterDefs {
		ins, err := counter(def.Name, def.Help)
		if err != nil {
			return nil, err
		}
		e.counters[def.ID] = ins
	}

	for _, def := range internaldefs.HistogramDefs {
		bucket, err := gauge(def.Name+"_bucket", def.Help+" Cumulative count per upper bound.")
		if err != nil {
			return nil, err
		}
		count, err := gauge(def.Name+"_count", def.Help+" Total samples.")
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, histogram{id: def.ID, bucket: bucket, count: count})
	}

	var err error
	if e.auditDropped, err = counter("goguard_audit_dropped_total", "Audit events dropped under backpressure."); err != nil {
		return nil, err
	}
	if _, ok := source.(sessionCounter); ok {
		if e.sessions, err = gauge("goguard_sessions_active", "Client sessions currently open."); err != nil {
			return nil, err
		}
	}

	if e.registration, err = meter.RegisterCallback(e.observe, observables...); err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}
	for _, h := range e.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cum := internaldefs.Cumulative(raw)
		for i, n := range cum {
			o.ObserveInt64(h.bucket, int64(n), leSets[i])
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	if sc, ok := e.source.(sessionCounter); ok && e.sessions != nil {
		o.ObserveInt64(e.sessions, int64(sc.ActiveSessions()))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
