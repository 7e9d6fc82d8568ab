package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/deskauth"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is satisfied by *deskauth.Engine.
type Source interface {
	MetricsSnapshot() deskauth.MetricsSnapshot
	AuditDropped() uint64
	SideEffectFailures() uint64
}

type observedCounter struct {
	id         deskauth.MetricID
	instrument metric.Int64ObservableCounter
}

type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	buckets      metric.Int64ObservableGauge
	bucketAttrs  []metric.ObserveOption
	latencyCount metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
	sideEffects  metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(internalmetrics.CounterDefs)),
	}
	observables := make([]metric.Observable, 0, len(internalmetrics.CounterDefs)+4)

	for _, def := range internalmetrics.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	var err error
	name := internalmetrics.HistogramDef.Name
	e.buckets, err = meter.Int64ObservableGauge(name+"_bucket",
		metric.WithDescription("Cumulative authenticate latency bucket counts."))
	if err != nil {
		return nil, fmt.Errorf("create bucket gauge: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableGauge(name+"_count",
		metric.WithDescription("Authenticate calls observed."))
	if err != nil {
		return nil, fmt.Errorf("create count gauge: %w", err)
	}
	for _, b := range internalmetrics.BucketUpperBounds() {
		e.bucketAttrs = append(e.bucketAttrs,
			metric.WithAttributes(attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64))))
	}
	e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(attribute.String("le", "+Inf")))

	e.auditDropped, err = meter.Int64ObservableCounter("deskauth_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher queue was full."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.sideEffects, err = meter.Int64ObservableCounter("deskauth_side_effect_failures_total",
		metric.WithDescription("Background side effects that returned an error."))
	if err != nil {
		return nil, fmt.Errorf("create side effect counter: %w", err)
	}
	observables = append(observables, e.buckets, e.latencyCount, e.auditDropped, e.sideEffects)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snap.Counters[c.id]))
	}

	cumulative := internalmetrics.Cumulative(snap.Latency)
	for i, v := range cumulative {
		if i < len(e.bucketAttrs) {
			o.ObserveInt64(e.buckets, int64(v), e.bucketAttrs[i])
		}
	}
	var count uint64
	if n := len(cumulative); n > 0 {
		count = cumulative[n-1]
	}
	o.ObserveInt64(e.latencyCount, int64(count))

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	o.ObserveInt64(e.sideEffects, int64(e.source.SideEffectFailures()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
