package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the bot's Prometheus collectors.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	PriceRequests *prometheus.CounterVec
	Orders        *prometheus.CounterVec
	Checkpoints   *prometheus.CounterVec
	Summaries     *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	EngineState   *prometheus.GaugeVec
}

// New constructs the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PriceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "momentum_price_requests_total",
				Help: "Quote attempts by symbol and result",
			},
			[]string{"symbol", "result"},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "momentum_orders_total",
				Help: "Order submissions by side and result",
			},
			[]string{"side", "result"},
		),
		Checkpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "momentum_checkpoints_total",
				Help: "Checkpoint waits by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		Summaries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "momentum_summary_writes_total",
				Help: "End-of-day summary writes by sink and result",
			},
			[]string{"sink", "result"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "momentum_notifications_total",
				Help: "Notifications by channel and result",
			},
			[]string{"channel", "result"},
		),
		EngineState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "momentum_engine_state",
				Help: "1 for the engine's current state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(
		m.PriceRequests,
		m.Orders,
		m.Checkpoints,
		m.Summaries,
		m.Notifications,
		m.EngineState,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PriceRequest(symbol, result string) {
	if m == nil {
		return
	}
	m.PriceRequests.WithLabelValues(symbol, result).Inc()
}

func (m *Metrics) Order(side, result string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(side, result).Inc()
}

func (m *Metrics) Checkpoint(role, outcome string) {
	if m == nil {
		return
	}
	m.Checkpoints.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) Summary(sink, result string) {
	if m == nil {
		return
	}
	m.Summaries.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) Notification(channel, result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}

// SetState marks state as current and clears prev.
func (m *Metrics) SetState(prev, state string) {
	if m == nil {
		return
	}
	if prev != "" {
		m.EngineState.WithLabelValues(prev).Set(0)
	}
	m.EngineState.WithLabelValues(state).Set(1)
}

// HealthFunc reports the current engine state for /healthz.
type HealthFunc func() (state string, healthy bool)

// Handler mounts /metrics and /healthz.
func (m *Metrics) Handler(health HealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state, healthy := "unknown", true
		if health != nil {
			state, healthy = health()
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":   state,
			"healthy": healthy,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	return mux
}

// Serve runs the metrics server on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, health HealthFunc) {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(health),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ERROR: metrics server: %v", err)
	}
}
