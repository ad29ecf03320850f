// Package telemetry exports Prometheus metrics for the Veritas service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veritas"

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheError = "error"
)

// Analysis outcomes besides error kinds.
const (
	OutcomeRemote   = "remote"
	OutcomeCached   = "cached"
	OutcomeRejected = "rejected"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	AnalysesTotal       *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	ProvisionalHints    prometheus.Counter
	RemoteDuration      *prometheus.HistogramVec
	Timeouts            prometheus.Counter
	LateResultsDropped  prometheus.Counter
	InFlightRejected    prometheus.Counter
	BreakerStateChanges *prometheus.CounterVec
}

// Provider owns the metrics and the registry they were registered on.
// A nil *Provider is valid and records nothing.
type Provider struct {
	Metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewProvider registers metrics on reg. Nil reg uses the default registry.
func NewProvider(reg *prometheus.Registry) *Provider {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}

	return &Provider{
		Metrics:  initMetrics(promauto.With(registerer)),
		gatherer: gatherer,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func initMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis requests by outcome (remote, cached, rejected or an error kind)",
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result",
		}, []string{"result"}),
		ProvisionalHints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisional_hints_total",
			Help:      "Local heuristic results surfaced as provisional hints",
		}),
		RemoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_duration_seconds",
			Help:      "Latency of remote credibility calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"outcome"}),
		Timeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_timeouts_total",
			Help:      "Remote calls that outlived the analysis bound",
		}),
		LateResultsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_results_dropped_total",
			Help:      "Remote outcomes discarded because their request was superseded",
		}),
		InFlightRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "in_flight_rejected_total",
			Help:      "Analysis requests rejected because one was already running for the context",
		}),
		BreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_state_changes_total",
			Help:      "Circuit breaker transitions by target state",
		}, []string{"state"}),
	}
}

// RecordAnalysis counts a finished analysis.
func (p *Provider) RecordAnalysis(outcome string) {
	if p == nil {
		return
	}
	p.Metrics.AnalysesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a cache lookup.
func (p *Provider) RecordCacheLookup(result string) {
	if p == nil {
		return
	}
	p.Metrics.CacheLookups.WithLabelValues(result).Inc()
}

// RecordProvisionalHint counts a surfaced local hint.
func (p *Provider) RecordProvisionalHint() {
	if p == nil {
		return
	}
	p.Metrics.ProvisionalHints.Inc()
}

// ObserveRemote records a remote call's latency.
func (p *Provider) ObserveRemote(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.RemoteDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTimeout counts a remote call that hit the bound.
func (p *Provider) RecordTimeout() {
	if p == nil {
		return
	}
	p.Metrics.Timeouts.Inc()
}

// RecordLateResultDropped counts a discarded late outcome.
func (p *Provider) RecordLateResultDropped() {
	if p == nil {
		return
	}
	p.Metrics.LateResultsDropped.Inc()
}

// RecordInFlightRejected counts a rejected concurrent request.
func (p *Provider) RecordInFlightRejected() {
	if p == nil {
		return
	}
	p.Metrics.InFlightRejected.Inc()
}

// RecordBreakerState counts a circuit breaker transition.
func (p *Provider) RecordBreakerState(state string) {
	if p == nil {
		return
	}
	p.Metrics.BreakerStateChanges.WithLabelValues(state).Inc()
}
