/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metrics.go
Description: Prometheus metrics for a fuzzing run. Counts dispatched payloads, mutations,
crashes and device command failures, records launch latency, and optionally serves everything
on a /metrics endpoint while the run is in progress.
*/

package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "fuzzdeep"

// Metrics holds the run's collectors in a private registry
type Metrics struct {
	registry *prometheus.Registry

	dispatched     *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	mutations      *prometheus.CounterVec
	crashes        *prometheus.CounterVec
	launchLatency  prometheus.Histogram
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_dispatched_total",
			Help:      "Payloads sent to the device, by source mode.",
		}, []string{"mode"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_command_errors_total",
			Help:      "Failed device commands, by stage.",
		}, []string{"stage"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Mutation engine invocations, by engine.",
		}, []string{"engine"}),
		crashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crashes_total",
			Help:      "Crashes found in logcat after a dispatch, by type.",
		}, []string{"type"}),
		launchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Time taken by the activity launch command.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	m.registry.MustRegister(m.dispatched, m.dispatchErrors, m.mutations, m.crashes, m.launchLatency)
	return m
}

// OnDispatch records a completed dispatch
func (m *Metrics) OnDispatch(mode string, launch time.Duration) {
	m.dispatched.WithLabelValues(mode).Inc()
	m.launchLatency.Observe(launch.Seconds())
}

// OnDeviceError records a failed device command
func (m *Metrics) OnDeviceError(stage string) {
	m.dispatchErrors.WithLabelValues(stage).Inc()
}

// OnMutation records one engine call
func (m *Metrics) OnMutation(engine string) {
	m.mutations.WithLabelValues(engine).Inc()
}

// OnCrash records a detected crash
func (m *Metrics) OnCrash(kind string) {
	m.crashes.WithLabelValues(kind).Inc()
}

// Registry exposes the registry for scraping and tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. It returns once the listener is bound;
// the returned channel yields the server's terminal error.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logrus.Logger) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() {
		err := server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", ln.Addr().String()).Info("Serving metrics")
	return ln.Addr(), done, nil
}
