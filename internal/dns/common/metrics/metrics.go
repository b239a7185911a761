// Package metrics records sinkhole counters. Components depend on the Recorder
// interface; the Prometheus implementation is wired in at startup and a no-op
// is used everywhere else.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes reported by the resolver.
const (
	OutcomeBlocked   = "blocked"
	OutcomeForwarded = "forwarded"
	OutcomeServFail  = "servfail"
)

// Recorder receives events from the resolver, the forwarder, the decision cache
// and the ingestion pipeline.
type Recorder interface {
	Query(outcome string, qtype string)
	UpstreamAttempt(server string, d time.Duration, err error)
	CacheLookup(hit bool)
	StoreLookup(err error)
	Ingested(category string, inserted int, err error)
}

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	queries          *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamFailures *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	storeLookups     *prometheus.CounterVec
	ingested         *prometheus.CounterVec
	ingestErrors     *prometheus.CounterVec
	lastIngest       prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinkhole_queries_total",
			Help: "DNS queries handled, by outcome and question type",
		}, []string{"outcome", "qtype"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sinkhole_upstream_latency_seconds",
			Help:    "Latency of upstream attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"server"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinkhole_upstream_failures_total",
			Help: "Failed upstream attempts per server",
		}, []string{"server"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinkhole_decision_cache_lookups_total",
			Help: "Block decision cache lookups by result",
		}, []string{"result"}),
		storeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinkhole_store_lookups_total",
			Help: "Blocklist store point lookups by result",
		}, []string{"result"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinkhole_ingested_entries_total",
			Help: "Blocklist entries inserted per category",
		}, []string{"category"}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinkhole_ingest_errors_total",
			Help: "Feeds that failed to ingest per category",
		}, []string{"category"}),
		lastIngest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sinkhole_last_ingest_timestamp_seconds",
			Help: "Unix time of the last ingested feed",
		}),
	}
	for _, c := range []prometheus.Collector{
		p.queries, p.upstreamLatency, p.upstreamFailures, p.cacheLookups,
		p.storeLookups, p.ingested, p.ingestErrors, p.lastIngest,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// RegisterCacheSize exposes the current decision cache size as a gauge.
func RegisterCacheSize(reg prometheus.Registerer, size func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sinkhole_decision_cache_entries",
		Help: "Entries currently held by the block decision cache",
	}, func() float64 { return float64(size()) }))
}

func (p *Prometheus) Query(outcome, qtype string) {
	p.queries.WithLabelValues(outcome, qtype).Inc()
}

func (p *Prometheus) UpstreamAttempt(server string, d time.Duration, err error) {
	p.upstreamLatency.WithLabelValues(server).Observe(d.Seconds())
	if err != nil {
		p.upstreamFailures.WithLabelValues(server).Inc()
	}
}

func (p *Prometheus) CacheLookup(hit bool) {
	p.cacheLookups.WithLabelValues(resultLabel(hit, "hit", "miss")).Inc()
}

func (p *Prometheus) StoreLookup(err error) {
	p.storeLookups.WithLabelValues(resultLabel(err == nil, "ok", "error")).Inc()
}

func (p *Prometheus) Ingested(category string, inserted int, err error) {
	if err != nil {
		p.ingestErrors.WithLabelValues(category).Inc()
		return
	}
	p.ingested.WithLabelValues(category).Add(float64(inserted))
	p.lastIngest.SetToCurrentTime()
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

type noop struct{}

// NewNoop returns a Recorder that drops every event.
func NewNoop() Recorder { return noop{} }

func (noop) Query(string, string) {}
func (noop) UpstreamAttempt(string, time.Duration, error) {}
func (noop) CacheLookup(bool) {}
func (noop) StoreLookup(error) {}
func (noop) Ingested(string, int, error) {}

var _ Recorder = (*Prometheus)(nil)
var _ Recorder = noop{}
