package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
)

// Collector holds the in-process counters for experiment lifecycle outcomes
type Collector struct {
	registry *prometheus.Registry
	started  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	stopped  *prometheus.CounterVec
}

// NewCollector registers the lifecycle counters on a fresh registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	collector := &Collector{
		registry: registry,
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaos_experiments_started_total",
			Help: "Number of experiments applied successfully",
		}, []string{"experiment"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaos_experiments_failed_total",
			Help: "Number of experiment operations that failed",
		}, []string{"experiment"}),
		stopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chaos_experiments_stopped_total",
			Help: "Number of experiments stopped",
		}, []string{"experiment"}),
	}
	registry.MustRegister(collector.started, collector.failed, collector.stopped)
	return collector
}

// ExperimentStarted counts a successful apply
func (c *Collector) ExperimentStarted(name string) {
	if c == nil {
		return
	}
	c.started.WithLabelValues(name).Inc()
}

// ExperimentFailed counts a failed lifecycle operation
func (c *Collector) ExperimentFailed(name string) {
	if c == nil {
		return
	}
	c.failed.WithLabelValues(name).Inc()
}

// ExperimentStopped counts a stop
func (c *Collector) ExperimentStopped(name string) {
	if c == nil {
		return
	}
	c.stopped.WithLabelValues(name).Inc()
}

// Serve exposes the registry on addr in the background
func (c *Collector) Serve(addr string) {
	if c == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("Serving metrics on %v", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("Metrics server stopped, err: %v", err)
		}
	}()
}
