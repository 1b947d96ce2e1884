package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "convertbot"

// PrometheusRecorder implements Recorder on its own registry.
type PrometheusRecorder struct {
	registry           *prometheus.Registry
	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	activeWorkspaces   prometheus.Gauge
	cleanupFailures    prometheus.Counter
	staleSwept         prometheus.Counter
	updatesTotal       *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder registered on a fresh registry
// that also carries the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		registry: reg,
		conversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Conversion attempts by pair and outcome",
			},
			[]string{"pair", "outcome"},
		),
		conversionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "conversion_duration_seconds",
				Help:      "Wall time of conversion attempts from upload to delivery",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"pair"},
		),
		activeWorkspaces: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workspaces",
			Help:      "Workspaces opened and not yet released",
		}),
		cleanupFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspace_cleanup_failures_total",
			Help:      "Workspace removals that failed and left files behind",
		}),
		staleSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_workspaces_swept_total",
			Help:      "Leftover workspaces removed by maintenance sweeps",
		}),
		updatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Transport updates by event kind",
			},
			[]string{"kind"},
		),
	}
}

func (p *PrometheusRecorder) ObserveConversion(pair, outcome string, duration time.Duration) {
	p.conversionsTotal.WithLabelValues(pair, outcome).Inc()
	p.conversionDuration.WithLabelValues(pair).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) WorkspaceOpened() { p.activeWorkspaces.Inc() }

func (p *PrometheusRecorder) WorkspaceReleased() { p.activeWorkspaces.Dec() }

func (p *PrometheusRecorder) IncCleanupFailure() { p.cleanupFailures.Inc() }

func (p *PrometheusRecorder) AddStaleSwept(n int) {
	if n > 0 {
		p.staleSwept.Add(float64(n))
	}
}

func (p *PrometheusRecorder) IncUpdate(kind string) {
	p.updatesTotal.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Gatherer exposes the registry for tests and embedding.
func (p *PrometheusRecorder) Gatherer() prometheus.Gatherer {
	return p.registry
}
