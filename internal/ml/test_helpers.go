package ml

import (
	"fmt"
	"sync"

	"loanscore/internal/common"
)

// StaticModel is a Classifier with a fixed probability, for tests of the
// layers above the models.
type StaticModel struct {
	mu          sync.Mutex
	Name        string
	Features    []string
	Probability float64
	Importances []float64
	Err         error
	calls       int
}

func (m *StaticModel) PredictProbability(values []float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return 0, m.Err
	}
	if len(values) != len(m.Features) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", common.ErrModelInference, len(values), len(m.Features))
	}
	return m.Probability, nil
}

func (m *StaticModel) FeatureImportances() []Importance {
	out := make([]Importance, len(m.Features))
	for i, name := range m.Features {
		out[i] = Importance{Feature: name}
		if i < len(m.Importances) {
			out[i].Value = m.Importances[i]
		}
	}
	return out
}

func (m *StaticModel) FeatureNames() []string { return m.Features }

func (m *StaticModel) Identity() string { return m.Name }

// Calls returns how many predictions were requested.
func (m *StaticModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// StaticAttributor returns the same attributions for every row.
type StaticAttributor struct {
	Values []float64
	Err    error
}

func (a *StaticAttributor) Attribute(values []float64) ([]float64, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	out := make([]float64, len(a.Values))
	copy(out, a.Values)
	return out, nil
}
