package ml

import (
	"encoding/json"
	"fmt"
	"math"

	"loanscore/internal/common"
)

// LogisticModel is a logistic regression classifier:
//
//	p = 1 / (1 + exp(-(bias + sum(w_i * x_i))))
//
// Missing values are replaced by the model's impute values when the model
// carries them and rejected otherwise.
type LogisticModel struct {
	identity string
	features []string
	weights  []float64
	bias     float64
	impute   []float64
}

type logisticDoc struct {
	Features []string  `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Impute   []float64 `json:"impute,omitempty"`
}

// ParseLogistic decodes a logistic model document:
//
//	{"features": [...], "weights": [...], "bias": b, "impute": [...]}
func ParseLogistic(buf []byte, identity string) (*LogisticModel, error) {
	var doc logisticDoc
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling: %w", err)
	}
	if len(doc.Features) == 0 {
		return nil, fmt.Errorf("model has no features")
	}
	if len(doc.Weights) != len(doc.Features) {
		return nil, fmt.Errorf("%d weights for %d features", len(doc.Weights), len(doc.Features))
	}
	if doc.Impute != nil && len(doc.Impute) != len(doc.Features) {
		return nil, fmt.Errorf("%d impute values for %d features", len(doc.Impute), len(doc.Features))
	}

	return &LogisticModel{
		identity: identity,
		features: doc.Features,
		weights:  doc.Weights,
		bias:     doc.Bias,
		impute:   doc.Impute,
	}, nil
}

// value returns the input used for feature i, imputing missing values.
func (m *LogisticModel) value(values []float64, i int) (float64, error) {
	v := values[i]
	if !math.IsNaN(v) {
		return v, nil
	}
	if m.impute == nil {
		return 0, fmt.Errorf("%w: missing value for feature %q", common.ErrModelInference, m.features[i])
	}
	return m.impute[i], nil
}

// Margin returns bias + w.x.
func (m *LogisticModel) Margin(values []float64) (float64, error) {
	if err := checkWidth(values, len(m.features)); err != nil {
		return 0, err
	}
	z := m.bias
	for i, w := range m.weights {
		v, err := m.value(values, i)
		if err != nil {
			return 0, err
		}
		z += w * v
	}
	return z, nil
}

// PredictProbability implements Classifier.
func (m *LogisticModel) PredictProbability(values []float64) (float64, error) {
	z, err := m.Margin(values)
	if err != nil {
		return 0, err
	}
	p := sigmoid(z)
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: probability is NaN", common.ErrModelInference)
	}
	return p, nil
}

// FeatureImportances implements Classifier. A feature's importance is the
// magnitude of its weight.
func (m *LogisticModel) FeatureImportances() []Importance {
	scores := make([]float64, len(m.weights))
	for i, w := range m.weights {
		scores[i] = math.Abs(w)
	}
	return normalise(m.features, scores)
}

// FeatureNames implements Classifier.
func (m *LogisticModel) FeatureNames() []string { return m.features }

// Identity implements Classifier.
func (m *LogisticModel) Identity() string { return m.identity }

// LinearExplainer attributes a logistic model's margin exactly:
// phi_i = w_i * (x_i - mean_i), with the means taken over a background
// dataset.
type LinearExplainer struct {
	model *LogisticModel
	means []float64
}

// NewLinearExplainer builds an explainer against background column means.
func NewLinearExplainer(m *LogisticModel, means []float64) (*LinearExplainer, error) {
	if len(means) != len(m.features) {
		return nil, fmt.Errorf("%w: %d background means for %d features",
			common.ErrStartupLoad, len(means), len(m.features))
	}
	return &LinearExplainer{model: m, means: means}, nil
}

// ExpectedValue is the margin at the background means.
func (e *LinearExplainer) ExpectedValue() float64 {
	z := e.model.bias
	for i, w := range e.model.weights {
		z += w * e.means[i]
	}
	return z
}

// Attribute implements Attributor.
func (e *LinearExplainer) Attribute(values []float64) ([]float64, error) {
	if err := checkWidth(values, len(e.model.features)); err != nil {
		return nil, err
	}
	phi := make([]float64, len(values))
	for i, w := range e.model.weights {
		v, err := e.model.value(values, i)
		if err != nil {
			return nil, err
		}
		phi[i] = w * (v - e.means[i])
		if math.IsNaN(phi[i]) || math.IsInf(phi[i], 0) {
			return nil, fmt.Errorf("%w: attribution for feature %d is %v", common.ErrModelInference, i, phi[i])
		}
	}
	return phi, nil
}
