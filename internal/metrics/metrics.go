// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "persona_engine"

// Metrics holds every collector on its own registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	replies          *prometheus.CounterVec
	strategyOutcomes *prometheus.CounterVec
	strategyLatency  *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	feedback         *prometheus.HistogramVec
	reloads          *prometheus.CounterVec
	corpusSamples    prometheus.Gauge
	corpusPersonas   prometheus.Gauge
}

// New registers the engine collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies returned, by winning strategy.",
		}, []string{"strategy"}),
		strategyOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_runs_total",
			Help:      "Strategy invocations, by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		strategyLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Time spent in a single strategy call.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"strategy"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Synthesized replies, by fallback kind.",
		}, []string{"kind"}),
		feedback: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feedback_reward",
			Help:      "Rewards recorded through feedback.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"strategy"}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Index reloads, by result.",
		}, []string{"result"}),
		corpusSamples: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_samples",
			Help:      "Training samples in the live index set.",
		}),
		corpusPersonas: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_personas",
			Help:      "Personas with their own index in the live set.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStrategy records one strategy call.
func (m *Metrics) ObserveStrategy(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.strategyOutcomes.WithLabelValues(name, outcome).Inc()
	m.strategyLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveReply counts a returned reply.
func (m *Metrics) ObserveReply(strategy string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(strategy).Inc()
}

// ObserveFallback counts a synthesized reply.
func (m *Metrics) ObserveFallback(kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(kind).Inc()
}

// ObserveFeedback records a reward.
func (m *Metrics) ObserveFeedback(strategy string, reward float64) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.feedback.WithLabelValues(strategy).Observe(reward)
}

// ObserveReload records a reload attempt and, on success, the new corpus size.
func (m *Metrics) ObserveReload(err error, samples, personas int) {
	if m == nil {
		return
	}
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
	m.corpusSamples.Set(float64(samples))
	m.corpusPersonas.Set(float64(personas))
}
