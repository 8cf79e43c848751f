package daemon

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stat carries the supervisor counters. They live on the daemon rather
// than in package globals so tests can build isolated instances.
type Stat struct {
	registry *prometheus.Registry

	Spawned        prometheus.Counter
	Errors         prometheus.Counter
	Restores       prometheus.Counter
	LogsRotated    prometheus.Counter
	QueuedStatuses prometheus.Counter
}

// NewStat builds and registers the counter set
func NewStat() *Stat {
	s := &Stat{
		registry: prometheus.NewRegistry(),
		Spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "porto_containers_spawned_total",
			Help: "Container root processes started.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "porto_errors_total",
			Help: "Failed RPC operations.",
		}),
		Restores: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "porto_restores_total",
			Help: "Containers restored after daemon restart.",
		}),
		LogsRotated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "porto_logs_rotated_total",
			Help: "Container log files rotated.",
		}),
		QueuedStatuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "porto_queued_statuses_total",
			Help: "Reaped exit statuses no container claimed.",
		}),
	}
	s.registry.MustRegister(s.Spawned, s.Errors, s.Restores, s.LogsRotated, s.QueuedStatuses)
	return s
}

// serveMetrics exposes the counters over HTTP when a listen address is
// configured; the returned stop function shuts the listener down
func (d *Daemon) serveMetrics() (func(), error) {
	if d.cfg.MetricsAddr == "" {
		return func() {}, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.stat.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: d.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Errorf("metrics server: %v", err)
		}
	}()
	return func() { srv.Close() }, nil
}
