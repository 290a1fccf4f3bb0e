package ml

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanscore/internal/common"
)

const xgbTestModel = "testdata/xgb_model.json"

func loadTestEnsemble(t *testing.T, importanceType string) *TreeEnsemble {
	t.Helper()
	buf, err := os.ReadFile(xgbTestModel)
	require.NoError(t, err)
	m, err := ParseXGBoost(buf, "xgb_model.json", importanceType)
	require.NoError(t, err)
	return m
}

// mutateModel rewrites the test model's learner before parsing it.
func mutateModel(t *testing.T, fn func(learner map[string]any)) []byte {
	t.Helper()
	buf, err := os.ReadFile(xgbTestModel)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf, &doc))
	fn(doc["learner"].(map[string]any))

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func firstTree(learner map[string]any) map[string]any {
	gb := learner["gradient_booster"].(map[string]any)
	trees := gb["model"].(map[string]any)["trees"].([]any)
	return trees[0].(map[string]any)
}

func TestTreeEnsemble_PredictProbability(t *testing.T) {
	m := loadTestEnsemble(t, common.ImportanceGain)
	nan := math.NaN()

	tests := []struct {
		name   string
		values []float64
		margin float64
	}{
		{"left leaf and low f2", []float64{0.2, 5, 1}, 0.7},
		{"right subtree", []float64{0.8, 0.5, 3}, -0.3},
		{"right subtree high f1", []float64{0.8, 1.5, 1}, 0.9},
		{"split value goes right", []float64{0.5, 1.0, 2.0}, 0.5},
		{"all missing", []float64{nan, nan, nan}, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			margin, err := m.Margin(tt.values)
			require.NoError(t, err)
			assert.InDelta(t, tt.margin, margin, 1e-6)

			p, err := m.PredictProbability(tt.values)
			require.NoError(t, err)
			assert.InDelta(t, 1/(1+math.Exp(-tt.margin)), p, 1e-6)
		})
	}
}

func TestTreeEnsemble_WrongWidth(t *testing.T) {
	m := loadTestEnsemble(t, common.ImportanceGain)

	_, err := m.PredictProbability([]float64{1, 2})
	assert.ErrorIs(t, err, common.ErrModelInference)
}

func TestTreeEnsemble_Metadata(t *testing.T) {
	m := loadTestEnsemble(t, common.ImportanceGain)

	assert.Equal(t, []string{"f0", "f1", "f2"}, m.FeatureNames())
	assert.Equal(t, "xgb_model.json", m.Identity())
	assert.Equal(t, 2, m.NumTrees())
}

func TestTreeEnsemble_FeatureImportances(t *testing.T) {
	tests := []struct {
		importanceType string
		want           []float64
	}{
		{common.ImportanceWeight, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{common.ImportanceGain, []float64{5.0 / 9, 3.0 / 9, 1.0 / 9}},
		{common.ImportanceTotalGain, []float64{5.0 / 9, 3.0 / 9, 1.0 / 9}},
	}

	for _, tt := range tests {
		t.Run(tt.importanceType, func(t *testing.T) {
			m := loadTestEnsemble(t, tt.importanceType)
			importances := m.FeatureImportances()
			require.Len(t, importances, 3)

			var sum float64
			for i, imp := range importances {
				assert.Equal(t, m.FeatureNames()[i], imp.Feature)
				assert.InDelta(t, tt.want[i], imp.Value, 1e-6)
				sum += imp.Value
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestTreeEnsemble_GainAveragesRepeatedSplits(t *testing.T) {
	buf := mutateModel(t, func(learner map[string]any) {
		// Second split of tree 0 now also uses f0
		firstTree(learner)["split_indices"] = []any{0, 0, 0, 0, 0}
	})

	gain, err := ParseXGBoost(buf, "m", common.ImportanceGain)
	require.NoError(t, err)
	total, err := ParseXGBoost(buf, "m", common.ImportanceTotalGain)
	require.NoError(t, err)

	// f0: splits with gains 5 and 3; f2: one split with gain 1
	assert.InDelta(t, 4.0/5, gain.FeatureImportances()[0].Value, 1e-6)
	assert.InDelta(t, 8.0/9, total.FeatureImportances()[0].Value, 1e-6)
	assert.Zero(t, gain.FeatureImportances()[1].Value)
}

func TestTreeEnsemble_ImportancesAreCopies(t *testing.T) {
	m := loadTestEnsemble(t, common.ImportanceGain)

	first := m.FeatureImportances()
	first[0].Value = 42
	assert.NotEqual(t, 42.0, m.FeatureImportances()[0].Value)
}

func TestParseBaseScore(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"5E-1", 0.5, false},
		{"[2.5E-1]", 0.25, false},
		{" 0.08 ", 0.08, false},
		{"", 0.5, false},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBaseScore(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseXGBoost_BaseScoreShiftsMargin(t *testing.T) {
	buf := mutateModel(t, func(learner map[string]any) {
		learner["learner_model_param"].(map[string]any)["base_score"] = "[2E-1]"
	})

	m, err := ParseXGBoost(buf, "m", common.ImportanceGain)
	require.NoError(t, err)

	margin, err := m.Margin([]float64{0.2, 5, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.2/0.8)+0.7, margin, 1e-6)
}

func TestParseXGBoost_BestNtreeLimit(t *testing.T) {
	buf := mutateModel(t, func(learner map[string]any) {
		learner["attributes"] = map[string]any{"best_ntree_limit": "1"}
	})

	m, err := ParseXGBoost(buf, "m", common.ImportanceGain)
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumTrees())

	margin, err := m.Margin([]float64{0.2, 5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, margin, 1e-6)
}

func TestParseXGBoost_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(learner map[string]any)
	}{
		{"unsupported objective", func(l map[string]any) {
			l["objective"] = map[string]any{"name": "reg:squarederror"}
		}},
		{"unsupported booster", func(l map[string]any) {
			l["gradient_booster"].(map[string]any)["name"] = "gblinear"
		}},
		{"no feature names", func(l map[string]any) {
			delete(l, "feature_names")
		}},
		{"base score out of range", func(l map[string]any) {
			l["learner_model_param"].(map[string]any)["base_score"] = "1.5"
		}},
		{"short array", func(l map[string]any) {
			firstTree(l)["sum_hessian"] = []any{10.0, 4.0}
		}},
		{"child before parent", func(l map[string]any) {
			firstTree(l)["left_children"] = []any{0, -1, 3, -1, -1}
		}},
		{"child out of range", func(l map[string]any) {
			firstTree(l)["right_children"] = []any{9, -1, 4, -1, -1}
		}},
		{"split on unknown feature", func(l map[string]any) {
			firstTree(l)["split_indices"] = []any{7, 0, 1, 0, 0}
		}},
		{"zero cover", func(l map[string]any) {
			firstTree(l)["sum_hessian"] = []any{0.0, 4.0, 6.0, 2.0, 4.0}
		}},
		{"bad node count", func(l map[string]any) {
			firstTree(l)["tree_param"] = map[string]any{"num_nodes": "five"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := mutateModel(t, tt.mutate)
			_, err := ParseXGBoost(buf, "m", common.ImportanceGain)
			assert.Error(t, err)
		})
	}
}

func TestParseXGBoost_UnknownImportanceType(t *testing.T) {
	buf, err := os.ReadFile(filepath.Clean(xgbTestModel))
	require.NoError(t, err)

	_, err = ParseXGBoost(buf, "m", "cover")
	assert.Error(t, err)
}
