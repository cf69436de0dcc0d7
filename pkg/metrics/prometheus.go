package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fraud_scoring/internal/domain"
)

type MetricsCollector struct {
	registry            *prometheus.Registry
	predictionsTotal    *prometheus.CounterVec
	blockedTransactions prometheus.Counter
	predictionErrors    prometheus.Counter
	predictionLatency   prometheus.Histogram
	fraudScore          prometheus.Histogram
	modelLoaded         prometheus.Gauge
	currentThreshold    prometheus.Gauge
	driftScore          prometheus.Gauge
	logger              *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		predictionsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_predictions_total",
			Help: "Total number of predictions made",
		}, []string{"risk_level"}),
		blockedTransactions: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fraud_blocked_transactions_total",
			Help: "Total number of blocked transactions",
		}),
		predictionErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fraud_prediction_errors_total",
			Help: "Total number of prediction errors",
		}),
		predictionLatency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_prediction_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		fraudScore: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_score",
			Help:    "Distribution of fraud scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		modelLoaded: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "fraud_model_loaded",
			Help: "Whether the model bundle is loaded (1) or not (0)",
		}),
		currentThreshold: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "fraud_current_threshold",
			Help: "Current fraud detection threshold",
		}),
		driftScore: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "fraud_drift_score",
			Help: "Current data drift score (0-1)",
		}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordPrediction(level domain.RiskLevel, score float64, blocked bool, duration time.Duration) {
	m.predictionsTotal.WithLabelValues(string(level)).Inc()
	m.fraudScore.Observe(score)
	m.predictionLatency.Observe(duration.Seconds())
	if blocked {
		m.blockedTransactions.Inc()
	}
}

func (m *MetricsCollector) RecordPredictionError(duration time.Duration) {
	m.predictionErrors.Inc()
	m.predictionLatency.Observe(duration.Seconds())
}

func (m *MetricsCollector) SetModelLoaded(loaded bool) {
	if loaded {
		m.modelLoaded.Set(1)
	} else {
		m.modelLoaded.Set(0)
	}
}

func (m *MetricsCollector) SetThreshold(threshold float64) {
	m.currentThreshold.Set(threshold)
}

func (m *MetricsCollector) SetDriftScore(score float64) {
	m.driftScore.Set(score)
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
