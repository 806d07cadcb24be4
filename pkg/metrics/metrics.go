// Package metrics exports device telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	fx "github.com/robotalks/morse.go/pkg/framework"
)

const namespace = "morse"

// Metrics holds the device collectors in their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	Commands       *prometheus.CounterVec
	Saves          *prometheus.CounterVec
	Messages       *prometheus.CounterVec
	Characters     prometheus.Counter
	NetworkRetries prometheus.Counter
	ConnectRetries prometheus.Counter
	State          prometheus.Gauge
	Restarts       prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command lines processed, by key and outcome.",
		}, []string{"key", "outcome"}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_saves_total",
			Help:      "Configuration saves, by result.",
		}, []string{"result"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Inbound bus messages, by topic kind.",
		}, []string{"kind"}),
		Characters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "characters_played_total",
			Help:      "Characters rendered as morse.",
		}),
		NetworkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_retries_total",
			Help:      "Network join retries.",
		}),
		ConnectRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_connect_retries_total",
			Help:      "Bus connect retries.",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_state",
			Help:      "0 network down, 1 network up, 2 bus connected.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Requested device restarts.",
		}),
	}
	m.Registry.MustRegister(
		m.Commands, m.Saves, m.Messages, m.Characters,
		m.NetworkRetries, m.ConnectRetries, m.State, m.Restarts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server serves the metrics over HTTP.
type Server struct {
	Addr    string
	Metrics *Metrics
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Metrics.Handler())
	srv := &http.Server{Addr: s.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	glog.Infof("metrics: serving on %s", s.Addr)
	err := fx.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, srv.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
