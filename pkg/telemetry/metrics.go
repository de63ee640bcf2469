// Package telemetry exposes the pipeline's Prometheus metrics (§6, ambient
// observability stack). The teacher only ever consumes the Prometheus HTTP
// API as a query client (pkg/monitoring/prometheus/client.go); here the same
// dependency is used the other direction, as an instrumented process
// exposing its own /metrics endpoint via the standard promauto/promhttp
// registration pattern.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram the controller updates as
// chains run.
type Metrics struct {
	Iterations          *prometheus.CounterVec
	ChimericAccepts      *prometheus.CounterVec
	GlobalAccepts        *prometheus.CounterVec
	IntegrationFailures  *prometheus.CounterVec
	TotalLogLik          *prometheus.GaugeVec
	IterationDuration    *prometheus.HistogramVec
}

// New registers and returns the pipeline's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flepimop_iterations_total",
			Help: "Total inference iterations run, by chain.",
		}, []string{"chain"}),
		ChimericAccepts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flepimop_chimeric_accepts_total",
			Help: "Total per-subpopulation chimeric proposal acceptances.",
		}, []string{"chain", "subpop"}),
		GlobalAccepts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flepimop_global_accepts_total",
			Help: "Total global proposal acceptances, by chain.",
		}, []string{"chain"}),
		IntegrationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flepimop_integration_failures_total",
			Help: "Total integration failures (rejected proposals), by chain.",
		}, []string{"chain"}),
		TotalLogLik: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flepimop_total_loglik",
			Help: "Most recent pooled log-likelihood scored, by chain.",
		}, []string{"chain"}),
		IterationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flepimop_iteration_duration_seconds",
			Help:    "Wall-clock time to score one proposal, by chain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr, shutting down when
// ctx is canceled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
