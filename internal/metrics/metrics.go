// Package metrics exposes agent run counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements engine.Metrics and app.UndoObserver.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runSteps    prometheus.Histogram
	runSeconds  prometheus.Histogram
	stepsTotal  *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
	undoTotal   *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manity",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Agent runs by stop reason",
		}, []string{"reason"}),
		runSteps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "manity",
			Subsystem: "agent",
			Name:      "run_steps",
			Help:      "Executed steps per run",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		runSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "manity",
			Subsystem: "agent",
			Name:      "run_seconds",
			Help:      "Wall time per run",
			Buckets:   prometheus.DefBuckets,
		}),
		stepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manity",
			Subsystem: "agent",
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool and status",
		}, []string{"tool", "status"}),
		stepSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "manity",
			Subsystem: "agent",
			Name:      "tool_seconds",
			Help:      "Tool execution latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"tool"}),
		undoTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "manity",
			Subsystem: "agent",
			Name:      "undo_total",
			Help:      "Undo requests by tool and whether anything was reverted",
		}, []string{"tool", "undone"}),
	}
}

func (r *Recorder) ObserveStep(tool, status string, elapsed time.Duration) {
	r.stepsTotal.WithLabelValues(tool, status).Inc()
	r.stepSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveRun(reason string, steps int, elapsed time.Duration) {
	r.runsTotal.WithLabelValues(reason).Inc()
	r.runSteps.Observe(float64(steps))
	r.runSeconds.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveUndo(tool string, undone bool) {
	r.undoTotal.WithLabelValues(tool, strconv.FormatBool(undone)).Inc()
}

// Registry is exposed for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
