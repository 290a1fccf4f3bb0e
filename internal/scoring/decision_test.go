package scoring

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/ml"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		p, t float64
		want Decision
	}{
		{"above threshold", 0.7, 0.5, Refused},
		{"below threshold", 0.7, 0.8, Accepted},
		{"equal is accepted", 0.51, 0.51, Accepted},
		{"zero threshold", 0.0001, 0, Refused},
		{"zero probability at zero", 0, 0, Accepted},
		{"one threshold", 1, 1, Accepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.p, tt.t))
		})
	}
}

func TestDecide_StrictBoundary(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p, th := rng.Float64(), rng.Float64()
		if i%10 == 0 {
			th = p
		}
		assert.Equal(t, p > th, Decide(p, th) == Refused, "p=%v t=%v", p, th)
	}
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "refused", Refused.String())
}

func evalRow(values ...float64) dataset.Row {
	return dataset.Row{Index: 3, Columns: []string{"a", "b"}, Values: values}
}

func TestEvaluate(t *testing.T) {
	model := &ml.StaticModel{Features: []string{"a", "b"}, Probability: 0.7}

	eval, err := Evaluate(model, evalRow(1, 2), 0.5)
	require.NoError(t, err)
	assert.Equal(t, Evaluation{Probability: 0.7, Threshold: 0.5, Decision: Refused}, eval)

	eval, err = Evaluate(model, evalRow(1, 2), 0.8)
	require.NoError(t, err)
	assert.Equal(t, Accepted, eval.Decision)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		model *ml.StaticModel
		row   dataset.Row
	}{
		{"row shape mismatch", &ml.StaticModel{Features: []string{"a", "b", "c"}, Probability: 0.5}, evalRow(1, 2)},
		{"model error", &ml.StaticModel{Features: []string{"a", "b"}, Err: errors.New("boom")}, evalRow(1, 2)},
		{"NaN probability", &ml.StaticModel{Features: []string{"a", "b"}, Probability: math.NaN()}, evalRow(1, 2)},
		{"probability above one", &ml.StaticModel{Features: []string{"a", "b"}, Probability: 1.2}, evalRow(1, 2)},
		{"negative probability", &ml.StaticModel{Features: []string{"a", "b"}, Probability: -0.1}, evalRow(1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.model, tt.row, 0.5)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrModelInference)
		})
	}
}
