package prometheus

import (
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/deskauth"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

// Source is satisfied by *deskauth.Engine.
type Source interface {
	MetricsSnapshot() deskauth.MetricsSnapshot
	AuditDropped() uint64
	SideEffectFailures() uint64
}

type counterDesc struct {
	id   deskauth.MetricID
	desc *promclient.Desc
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source      Source
	counters    []counterDesc
	latency     *promclient.Desc
	bounds      []float64
	dropped     *promclient.Desc
	sideEffects *promclient.Desc
}

var _ promclient.Collector = (*Collector)(nil)

func NewCollector(source Source) *Collector {
	c := &Collector{
		source:  source,
		bounds:  internalmetrics.BucketUpperBounds(),
		latency: promclient.NewDesc(internalmetrics.HistogramDef.Name, internalmetrics.HistogramDef.Help, nil, nil),
		dropped: promclient.NewDesc("deskauth_audit_dropped_total",
			"Audit events dropped because the dispatcher queue was full.", nil, nil),
		sideEffects: promclient.NewDesc("deskauth_side_effect_failures_total",
			"Background side effects that returned an error.", nil, nil),
	}
	for _, def := range internalmetrics.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: promclient.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *promclient.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.latency
	ch <- c.dropped
	ch <- c.sideEffects
}

func (c *Collector) Collect(ch chan<- promclient.Metric) {
	if c.source == nil {
		return
	}
	snap := c.source.MetricsSnapshot()
	for _, cd := range c.counters {
		ch <- promclient.MustNewConstMetric(cd.desc, promclient.CounterValue, float64(snap.Counters[cd.id]))
	}

	cumulative := internalmetrics.Cumulative(snap.Latency)
	buckets := make(map[float64]uint64, len(c.bounds))
	var count uint64
	for i, v := range cumulative {
		if i < len(c.bounds) {
			buckets[c.bounds[i]] = v
		}
		count = v
	}
	// Durations are bucketed without a running sum.
	ch <- promclient.MustNewConstHistogram(c.latency, count, 0, buckets)

	ch <- promclient.MustNewConstMetric(c.dropped, promclient.CounterValue, float64(c.source.AuditDropped()))
	ch <- promclient.MustNewConstMetric(c.sideEffects, promclient.CounterValue, float64(c.source.SideEffectFailures()))
}

// Handler serves source in the Prometheus exposition format from a private registry.
func Handler(source Source) http.Handler {
	registry := promclient.NewRegistry()
	registry.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
