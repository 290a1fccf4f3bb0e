package scoring

import (
	"context"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions map[int]int
	failures    map[string]int
	latencies   map[string]int
	scores      []float64
	threshold   float64
}

func (m *MockMetrics) PredictionsInc(decision int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[int]int)
	}
	m.predictions[decision]++
}

func (m *MockMetrics) FailuresInc(operation, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[operation+"/"+kind]++
}

func (m *MockMetrics) LatencyObserve(operation string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latencies == nil {
		m.latencies = make(map[string]int)
	}
	m.latencies[operation]++
}

func (m *MockMetrics) ScoreObserve(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, p)
}

func (m *MockMetrics) ThresholdSet(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = t
}

// Predictions returns the number of decisions recorded for decision.
func (m *MockMetrics) Predictions(decision int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[decision]
}

// Failures returns the failures recorded for an operation and error kind.
func (m *MockMetrics) Failures(operation, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[operation+"/"+kind]
}

// Latencies returns how many latencies were observed for an operation.
func (m *MockMetrics) Latencies(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latencies[operation]
}

// Threshold returns the last threshold reported.
func (m *MockMetrics) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// StubThreshold is a ThresholdResolver returning a fixed value or error.
type StubThreshold struct {
	Value float64
	Err   error
}

func (s StubThreshold) Resolve(context.Context) (float64, error) {
	return s.Value, s.Err
}

func (s StubThreshold) Policy() string { return "stub" }
