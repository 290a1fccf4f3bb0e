// Package metrics provides Prometheus metrics collection for the loan scoring
// service. It defines the scoring, transport and dataset metrics exposed via
// the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
type Metrics struct {
	// Scoring metrics
	Predictions      *prometheus.CounterVec   // Explained predictions by decision
	Failures         *prometheus.CounterVec   // Failed requests by operation and error kind
	Latency          *prometheus.HistogramVec // Scoring latency by operation
	PredictionScores prometheus.Histogram     // Distribution of predicted default probabilities
	Threshold        prometheus.Gauge         // Last acceptance threshold applied

	// Transport metrics
	HTTPRequests      *prometheus.CounterVec // HTTP requests by route, method and status
	StreamConnections prometheus.Gauge       // Open scoring stream connections

	// Dataset and model metrics
	DatasetRows   prometheus.Gauge // Rows in the served dataset
	ModelFeatures prometheus.Gauge // Features the served model expects
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanscore_predictions_total",
			Help: "Total number of explained predictions by decision",
		}, []string{"decision"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanscore_failures_total",
			Help: "Total number of failed scoring requests by operation and error kind",
		}, []string{"operation", "kind"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loanscore_latency_seconds",
			Help:    "Scoring latency in seconds by operation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loanscore_prediction_scores",
			Help:    "Distribution of predicted default probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Threshold: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loanscore_acceptance_threshold",
			Help: "Acceptance threshold applied to the last prediction",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanscore_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loanscore_stream_connections",
			Help: "Number of open scoring stream connections",
		}),
		DatasetRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loanscore_dataset_rows",
			Help: "Number of rows in the served dataset",
		}),
		ModelFeatures: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loanscore_model_features",
			Help: "Number of features the served model expects",
		}),
	}
}

// ObserveLoad records the size of the loaded dataset and model.
func (m *Metrics) ObserveLoad(rows, features int) {
	m.DatasetRows.Set(float64(rows))
	m.ModelFeatures.Set(float64(features))
}
