// Package metrics exposes reconciliation counters and histograms to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

const shutdownTimeout = 5 * time.Second

// ReconcileMetrics records engine outcomes.
type ReconcileMetrics struct {
	IntentsTotal  *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	BatchDuration prometheus.Histogram
	BatchSize     prometheus.Histogram

	registry *prometheus.Registry
}

// NewReconcileMetrics creates the collectors on a dedicated registry.
func NewReconcileMetrics() *ReconcileMetrics {
	m := &ReconcileMetrics{
		IntentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsletter_intents_total",
				Help: "Intents reconciled, by operation and resulting transition",
			},
			[]string{"operation", "transition"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsletter_intent_failures_total",
				Help: "Intents that were not applied, by failure reason",
			},
			[]string{"reason"},
		),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsletter_batch_duration_seconds",
			Help:    "Time spent reconciling one delivered batch",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsletter_batch_size",
			Help:    "Messages per delivered batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.IntentsTotal,
		m.FailuresTotal,
		m.BatchDuration,
		m.BatchSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveTransition counts an applied or skipped intent.
func (m *ReconcileMetrics) ObserveTransition(op model.Operation, transition model.Transition) {
	m.IntentsTotal.WithLabelValues(string(op), string(transition)).Inc()
}

// ObserveFailure counts a failed intent under its FailureReason label.
func (m *ReconcileMetrics) ObserveFailure(err error) {
	m.FailuresTotal.WithLabelValues(model.FailureReason(err)).Inc()
}

// ObserveBatch records the size and duration of one batch.
func (m *ReconcileMetrics) ObserveBatch(size int, elapsed time.Duration) {
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *ReconcileMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Run serves /metrics on addr until ctx is cancelled.
func (m *ReconcileMetrics) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
