package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/procwatch/pkg/watchdog"
)

// allPhases is used to zero out the phase gauge on every transition so
// exactly one phase reads 1 per worker
var allPhases = []watchdog.Phase{
	watchdog.PhaseStopped,
	watchdog.PhaseStarting,
	watchdog.PhaseRunning,
	watchdog.PhaseTerminating,
	watchdog.PhaseBackoffWait,
	watchdog.PhaseFailed,
}

// Recorder exports supervision telemetry in Prometheus format. It
// implements the watchdog's Recorder collaborator.
type Recorder struct {
	registry *prometheus.Registry

	restarts *prometheus.CounterVec
	failures *prometheus.CounterVec
	phase    *prometheus.GaugeVec
	rssBytes *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procwatch_worker_restarts_total",
				Help: "Total number of worker restarts performed by the supervisor",
			},
			[]string{"worker"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procwatch_worker_failures_total",
				Help: "Total worker failures by classified reason",
			},
			[]string{"worker", "reason"},
		),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "procwatch_worker_phase",
				Help: "Current lifecycle phase of the worker (1 = active phase)",
			},
			[]string{"worker", "phase"},
		),
		rssBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "procwatch_worker_rss_bytes",
				Help: "Resident memory of the worker process in bytes",
			},
			[]string{"worker"},
		),
	}

	r.registry.MustRegister(r.restarts)
	r.registry.MustRegister(r.failures)
	r.registry.MustRegister(r.phase)
	r.registry.MustRegister(r.rssBytes)

	return r
}

// Handler returns the /metrics HTTP handler
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordPhase marks the worker's active phase
func (r *Recorder) RecordPhase(worker string, phase watchdog.Phase) {
	for _, p := range allPhases {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		r.phase.WithLabelValues(worker, string(p)).Set(v)
	}
}

// RecordRestart counts one restart of the worker
func (r *Recorder) RecordRestart(worker string) {
	r.restarts.WithLabelValues(worker).Inc()
}

// RecordFailure counts one classified worker failure
func (r *Recorder) RecordFailure(worker string, reason watchdog.ExitReason) {
	r.failures.WithLabelValues(worker, string(reason)).Inc()
}

// RecordRSS records the worker's resident memory
func (r *Recorder) RecordRSS(worker string, bytes uint64) {
	r.rssBytes.WithLabelValues(worker).Set(float64(bytes))
}
