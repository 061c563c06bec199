// Package prom adapts noncecache.Metrics to Prometheus, the same way the
// pack's Prometheus client is used elsewhere: one Adapter registers a
// family of counters/gauges and satisfies the consumer's small metrics
// interface directly, no reflection or label-string parsing involved.
package prom

import (
	"github.com/IvanBrykalov/noncecache/noncecache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements noncecache.Metrics and exports Prometheus
// counters/gauges for one cache instance. Safe for concurrent use; every
// Prometheus metric type already is.
type Adapter struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	bypasses       prometheus.Counter
	evicts         prometheus.Counter
	verifyMismatch prometheus.Counter
	size           prometheus.Gauge
}

// New constructs a Prometheus metrics adapter for a single cache.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (e.g. {"cache": name})
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Queries answered from a resident entry",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Queries that required a Recompute call",
			ConstLabels: constLabels,
		}),
		bypasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "bypasses_total",
			Help:        "Queries served with caching bypassed (unset or disabled nonce)",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Entries evicted to enforce the entry-count limit",
			ConstLabels: constLabels,
		}),
		verifyMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "verify_mismatches_total",
			Help:        "VERIFY-mode comparisons that found a stale returned result",
			ConstLabels: constLabels,
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.bypasses, a.evicts, a.verifyMismatch, a.size)
	return a
}

func (a *Adapter) Hit()            { a.hits.Inc() }
func (a *Adapter) Miss()           { a.misses.Inc() }
func (a *Adapter) Bypass()         { a.bypasses.Inc() }
func (a *Adapter) Evict()          { a.evicts.Inc() }
func (a *Adapter) VerifyMismatch() { a.verifyMismatch.Inc() }
func (a *Adapter) Size(entries int) {
	a.size.Set(float64(entries))
}

var _ noncecache.Metrics = (*Adapter)(nil)

// CoordinatorAdapter exports process-wide InvalidationCoordinator
// activity as three counters: Invalidate, Cork and Uncork calls. It does
// not track how many names are currently corked. Caches call through coordinator.Invalidate/Cork/
// Uncork directly; callers that want these counters wrap those calls at
// the call site and increment this adapter themselves, since the
// coordinator package exposes no metrics hook of its own.
type CoordinatorAdapter struct {
	invalidations prometheus.Counter
	corks         prometheus.Counter
	uncorks       prometheus.Counter
}

// NewCoordinatorAdapter constructs the process-wide coordinator counters.
func NewCoordinatorAdapter(reg prometheus.Registerer, ns string) *CoordinatorAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CoordinatorAdapter{
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "coordinator",
			Name:      "invalidations_total",
			Help:      "Nonces published via coordinator.Invalidate",
		}),
		corks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "coordinator",
			Name:      "corks_total",
			Help:      "coordinator.Cork calls",
		}),
		uncorks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "coordinator",
			Name:      "uncorks_total",
			Help:      "coordinator.Uncork calls",
		}),
	}
	reg.MustRegister(a.invalidations, a.corks, a.uncorks)
	return a
}

func (a *CoordinatorAdapter) Invalidate() { a.invalidations.Inc() }
func (a *CoordinatorAdapter) Cork()       { a.corks.Inc() }
func (a *CoordinatorAdapter) Uncork()     { a.uncorks.Inc() }
