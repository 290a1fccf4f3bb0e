// Package ml provides the classifiers and attribution engines behind loan
// scoring. It reads XGBoost JSON dumps and logistic regression weight files,
// explains individual predictions with per-feature attributions and ranks
// both attributions and global feature importances.
//
// Models and engines are immutable once loaded and safe for concurrent use.
package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"loanscore/internal/common"
	"loanscore/internal/dataset"
)

// Classifier is a trained binary classifier over a fixed feature order.
type Classifier interface {
	// PredictProbability returns the probability of the positive class.
	PredictProbability(values []float64) (float64, error)

	// FeatureImportances returns one importance per feature in model order.
	FeatureImportances() []Importance

	// FeatureNames returns the feature order the model expects.
	FeatureNames() []string

	// Identity is the name threshold mappings refer to the model by.
	Identity() string
}

// Attributor explains a single prediction with one signed contribution per
// feature, aligned with the classifier's feature order.
type Attributor interface {
	Attribute(values []float64) ([]float64, error)
}

// Importance is a feature's global importance.
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"importance"`
}

// Model kinds
const (
	KindXGBoost  = "xgboost"
	KindLogistic = "logistic"
)

// Load reads a model file and detects its kind from the document shape.
// importanceType only applies to tree ensembles.
func Load(path, identity, importanceType string) (Classifier, error) {
	buf, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: reading model file: %v", common.ErrStartupLoad, err)
	}

	kind, err := detectKind(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrStartupLoad, path, err)
	}

	var model Classifier
	switch kind {
	case KindXGBoost:
		model, err = ParseXGBoost(buf, identity, importanceType)
	case KindLogistic:
		model, err = ParseLogistic(buf, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrStartupLoad, path, err)
	}

	log.Info().
		Str("path", path).
		Str("kind", kind).
		Str("identity", identity).
		Int("features", len(model.FeatureNames())).
		Msg("Model loaded")

	return model, nil
}

func detectKind(buf []byte) (string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(buf, &probe); err != nil {
		return "", fmt.Errorf("model is not a JSON object: %w", err)
	}
	if _, ok := probe["learner"]; ok {
		return KindXGBoost, nil
	}
	if _, ok := probe["weights"]; ok {
		return KindLogistic, nil
	}
	return "", fmt.Errorf("unrecognised model document")
}

// NewAttributor builds the attribution engine matching the model. The
// dataset provides the background distribution where the engine needs one.
func NewAttributor(model Classifier, background *dataset.Dataset) (Attributor, error) {
	switch m := model.(type) {
	case *TreeEnsemble:
		return NewTreeExplainer(m), nil
	case *LogisticModel:
		return NewLinearExplainer(m, background.ColumnMeans())
	default:
		return nil, fmt.Errorf("%w: no attribution engine for %T", common.ErrStartupLoad, model)
	}
}

// CheckFeatures verifies that the dataset columns are exactly the model's
// features, in the same order.
func CheckFeatures(model Classifier, columns []string) error {
	names := model.FeatureNames()
	if len(names) != len(columns) {
		return fmt.Errorf("%w: model expects %d features, dataset has %d columns",
			common.ErrStartupLoad, len(names), len(columns))
	}
	for i, name := range names {
		if columns[i] != name {
			return fmt.Errorf("%w: column %d is %q, model expects %q",
				common.ErrStartupLoad, i, columns[i], name)
		}
	}
	return nil
}

func checkWidth(values []float64, want int) error {
	if len(values) != want {
		return fmt.Errorf("%w: got %d values, model expects %d", common.ErrModelInference, len(values), want)
	}
	return nil
}
