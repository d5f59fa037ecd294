package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	backendStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gantry",
			Subsystem: "backend",
			Name:      "starts_total",
			Help:      "Number of successful backend starts (readiness observed).",
		}, []string{"name"},
	)
	backendStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gantry",
			Subsystem: "backend",
			Name:      "stops_total",
			Help:      "Number of backend stops (explicit stop or exit).",
		}, []string{"name"},
	)
	backendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gantry",
			Subsystem: "backend",
			Name:      "start_failures_total",
			Help:      "Number of failed start attempts by failure reason.",
		}, []string{"name", "reason"},
	)
	startupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gantry",
			Subsystem: "backend",
			Name:      "startup_duration_seconds",
			Help:      "Time from spawn to observed readiness signal.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	backendReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gantry",
			Subsystem: "backend",
			Name:      "ready",
			Help:      "1 while the backend is ready and accepting connections.",
		}, []string{"name"},
	)
	backendPort = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gantry",
			Subsystem: "backend",
			Name:      "port",
			Help:      "Effective port the backend is serving on (0 when down).",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{backendStarts, backendStops, backendFailures, startupDuration, backendReady, backendPort}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving metrics from the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called, so library embedders
// that never wire metrics pay nothing.

func IncStart(name string) {
	if regOK.Load() {
		backendStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		backendStops.WithLabelValues(name).Inc()
	}
}

func IncStartFailure(name, reason string) {
	if regOK.Load() {
		backendFailures.WithLabelValues(name, reason).Inc()
	}
}

func ObserveStartupDuration(name string, seconds float64) {
	if regOK.Load() {
		startupDuration.WithLabelValues(name).Observe(seconds)
	}
}

func SetReady(name string, ready bool) {
	if !regOK.Load() {
		return
	}
	v := 0.0
	if ready {
		v = 1.0
	}
	backendReady.WithLabelValues(name).Set(v)
}

func SetPort(name string, port int) {
	if regOK.Load() {
		backendPort.WithLabelValues(name).Set(float64(port))
	}
}
