// Package metrics exposes Prometheus collectors for the evaluation engine,
// the decision cache, and audit storage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/minerva/pkg/config"
)

// Collector owns every minerva metric and its registry.
type Collector struct {
	registry *prometheus.Registry

	evaluations     *prometheus.CounterVec
	evalDuration    prometheus.Histogram
	rulesEvaluated  prometheus.Counter
	rulesMatched    prometheus.Counter
	rulesSkipped    prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	cacheEvictions  prometheus.Counter
	decisionsStored prometheus.Counter
	activations     prometheus.Counter
	storeErrors     *prometheus.CounterVec
}

// NewCollector creates and registers the minerva collectors. A nil registry
// gets a fresh one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "mercator"
	}
	sub := cfg.Subsystem
	if sub == "" {
		sub = "minerva"
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "evaluations_total",
			Help: "Evaluation runs by status.",
		}, []string{"status"}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "evaluation_duration_seconds",
			Help:    "Wall time of one evaluation run.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		}),
		rulesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "rules_evaluated_total",
			Help: "Active rules considered across all runs.",
		}),
		rulesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "rules_matched_total",
			Help: "Rules whose conditions matched.",
		}),
		rulesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "rules_skipped_total",
			Help: "Rules skipped for malformed expressions.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "decision_cache_lookups_total",
			Help: "Decision cache lookups by outcome.",
		}, []string{"outcome"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "decision_cache_evictions_total",
			Help: "Expired decisions removed by the sweep.",
		}),
		decisionsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "decisions_stored_total",
			Help: "Decisions computed and cached.",
		}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "ruleset_activations_total",
			Help: "Ruleset version activations.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "store_errors_total",
			Help: "Storage failures by store.",
		}, []string{"store"}),
	}

	registry.MustRegister(
		c.evaluations, c.evalDuration,
		c.rulesEvaluated, c.rulesMatched, c.rulesSkipped,
		c.cacheLookups, c.cacheEvictions, c.decisionsStored,
		c.activations, c.storeErrors,
	)
	return c
}

// Registry returns the underlying Prometheus registry for exposition.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveEvaluation records one evaluation run.
func (c *Collector) ObserveEvaluation(status string, duration time.Duration, evaluated, matched, skipped int) {
	c.evaluations.WithLabelValues(status).Inc()
	c.evalDuration.Observe(duration.Seconds())
	c.rulesEvaluated.Add(float64(evaluated))
	c.rulesMatched.Add(float64(matched))
	c.rulesSkipped.Add(float64(skipped))
}

// CacheHit records a decision cache hit.
func (c *Collector) CacheHit() { c.cacheLookups.WithLabelValues("hit").Inc() }

// CacheMiss records a decision cache miss.
func (c *Collector) CacheMiss() { c.cacheLookups.WithLabelValues("miss").Inc() }

// CacheEvicted records sweep evictions.
func (c *Collector) CacheEvicted(n int) { c.cacheEvictions.Add(float64(n)) }

// DecisionStored records a computed decision entering the cache.
func (c *Collector) DecisionStored() { c.decisionsStored.Inc() }

// Activation records a ruleset version activation.
func (c *Collector) Activation() { c.activations.Inc() }

// StoreError records a storage failure.
func (c *Collector) StoreError(store string) { c.storeErrors.WithLabelValues(store).Inc() }
