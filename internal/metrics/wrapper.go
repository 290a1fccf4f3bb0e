package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsGauge is the gauge surface handed to the transport.
type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// MetricsWrapper adapts Metrics to the narrow interfaces the scoring service
// and the transport use.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc(decision int) {
	label := "accepted"
	if decision == 1 {
		label = "refused"
	}
	w.m.Predictions.WithLabelValues(label).Inc()
}

func (w *MetricsWrapper) FailuresInc(operation, kind string) {
	w.m.Failures.WithLabelValues(operation, kind).Inc()
}

func (w *MetricsWrapper) LatencyObserve(operation string, seconds float64) {
	w.m.Latency.WithLabelValues(operation).Observe(seconds)
}

func (w *MetricsWrapper) ScoreObserve(p float64) {
	w.m.PredictionScores.Observe(p)
}

func (w *MetricsWrapper) ThresholdSet(t float64) {
	w.m.Threshold.Set(t)
}

// HTTPRequestsInc counts a served HTTP request.
func (w *MetricsWrapper) HTTPRequestsInc(route, method string, status int) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

func (w *MetricsWrapper) StreamConnections() MetricsGauge {
	return &GaugeWrapper{w.m.StreamConnections}
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}
