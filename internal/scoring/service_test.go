package scoring

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/ml"
)

type serviceFixture struct {
	service    *Service
	model      *ml.StaticModel
	attributor *ml.StaticAttributor
	metrics    *MockMetrics
}

func newServiceFixture(t *testing.T, thresholds ThresholdResolver) *serviceFixture {
	t.Helper()

	ds, err := dataset.New(
		[]string{"f1", "f2", "f3", "f4"},
		[][]float64{
			{1, 2, 3, 4},
			{5, math.NaN(), 7, 8},
		},
		nil,
	)
	require.NoError(t, err)

	f := &serviceFixture{
		model: &ml.StaticModel{
			Name:        "test_model.pkl",
			Features:    []string{"f1", "f2", "f3", "f4"},
			Probability: 0.7,
			Importances: []float64{0.2, 0.1, 0.4, 0.3},
		},
		attributor: &ml.StaticAttributor{Values: []float64{0.1, 0.2, 0.3, 0.4}},
		metrics:    &MockMetrics{},
	}
	f.service = NewService(ds, f.model, f.attributor, thresholds, f.metrics)
	return f
}

func TestService_Predict(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	result, err := f.service.Predict(context.Background(), PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 2})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Index)
	assert.Equal(t, 0.7, result.Probability)
	assert.Equal(t, 0.5, result.Threshold)
	assert.Equal(t, Refused, result.Decision)
	assert.Equal(t, []ml.RankedFeature{
		{Feature: "f4", Value: 4, Attribution: 0.4},
		{Feature: "f3", Value: 3, Attribution: 0.3},
	}, result.TopFeatures)

	assert.Equal(t, 1, f.metrics.Predictions(int(Refused)))
	assert.Equal(t, 1, f.metrics.Latencies(OpPredict))
	assert.Equal(t, 0.5, f.metrics.Threshold())
}

func TestService_Predict_AcceptedBelowThreshold(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.8))

	result, err := f.service.Predict(context.Background(), PredictRequest{SelectedIndex: 1, ShapMaxDisplay: 10})
	require.NoError(t, err)

	assert.Equal(t, Accepted, result.Decision)
	require.Len(t, result.TopFeatures, 4)
	// f2 is missing on row 1
	assert.Equal(t, "f2", result.TopFeatures[2].Feature)
	assert.True(t, math.IsNaN(result.TopFeatures[2].Value))
}

func TestService_Predict_ZeroDisplay(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	result, err := f.service.Predict(context.Background(), PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 0})
	require.NoError(t, err)
	assert.Empty(t, result.TopFeatures)
	assert.Equal(t, Refused, result.Decision)
}

func TestService_Predict_Errors(t *testing.T) {
	tests := []struct {
		name       string
		thresholds ThresholdResolver
		setup      func(f *serviceFixture)
		req        PredictRequest
		want       error
		kind       string
	}{
		{
			name:       "index past the end",
			thresholds: FixedThreshold(0.5),
			req:        PredictRequest{SelectedIndex: 2, ShapMaxDisplay: 3},
			want:       common.ErrOutOfRange,
			kind:       common.KindOutOfRange,
		},
		{
			name:       "negative index",
			thresholds: FixedThreshold(0.5),
			req:        PredictRequest{SelectedIndex: -1, ShapMaxDisplay: 3},
			want:       common.ErrOutOfRange,
			kind:       common.KindOutOfRange,
		},
		{
			name:       "negative display count",
			thresholds: FixedThreshold(0.5),
			req:        PredictRequest{SelectedIndex: 0, ShapMaxDisplay: -1},
			want:       common.ErrInvalidDisplayCount,
			kind:       common.KindInvalidDisplayCount,
		},
		{
			name:       "threshold not found",
			thresholds: StubThreshold{Err: common.ErrThresholdNotFound},
			req:        PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 3},
			want:       common.ErrThresholdNotFound,
			kind:       common.KindThresholdNotFound,
		},
		{
			name:       "model failure",
			thresholds: FixedThreshold(0.5),
			setup:      func(f *serviceFixture) { f.model.Err = errors.New("boom") },
			req:        PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 3},
			want:       common.ErrModelInference,
			kind:       common.KindModelInference,
		},
		{
			name:       "attribution failure",
			thresholds: FixedThreshold(0.5),
			setup:      func(f *serviceFixture) { f.attributor.Err = errors.New("engine crashed") },
			req:        PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 3},
			want:       common.ErrModelInference,
			kind:       common.KindModelInference,
		},
		{
			name:       "attribution length mismatch",
			thresholds: FixedThreshold(0.5),
			setup:      func(f *serviceFixture) { f.attributor.Values = []float64{0.1, 0.2} },
			req:        PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 3},
			want:       common.ErrModelInference,
			kind:       common.KindModelInference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, tt.thresholds)
			if tt.setup != nil {
				tt.setup(f)
			}

			result, err := f.service.Predict(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, f.metrics.Failures(OpPredict, tt.kind))
			assert.Equal(t, 0, f.metrics.Predictions(int(Refused)))
		})
	}
}

func TestService_Predict_InvalidDisplayChecksFirst(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	// Both the index and the display count are invalid
	_, err := f.service.Predict(context.Background(), PredictRequest{SelectedIndex: 99, ShapMaxDisplay: -1})
	assert.ErrorIs(t, err, common.ErrInvalidDisplayCount)
	assert.Equal(t, 0, f.model.Calls())
}

func TestService_Predict_CanceledBeforeAttribution(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.Predict(ctx, PredictRequest{SelectedIndex: 0, ShapMaxDisplay: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.metrics.Failures(OpPredict, common.KindCanceled))
}

func TestService_Predict_Concurrent(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.service.Predict(context.Background(), PredictRequest{SelectedIndex: i % 2, ShapMaxDisplay: 2})
			if assert.NoError(t, err) {
				assert.Equal(t, "f4", result.TopFeatures[0].Feature)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, f.metrics.Predictions(int(Refused)))
}

func TestService_Importance(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	result, err := f.service.Importance(context.Background(), ImportanceRequest{MaxDisplay: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"f3", "f4", "f1"}, result.Features)
	assert.Equal(t, []float64{0.4, 0.3, 0.2}, result.Importances)
	assert.Equal(t, 1, f.metrics.Latencies(OpImportance))

	result, err = f.service.Importance(context.Background(), ImportanceRequest{MaxDisplay: 100})
	require.NoError(t, err)
	assert.Len(t, result.Features, 4)

	_, err = f.service.Importance(context.Background(), ImportanceRequest{MaxDisplay: -5})
	assert.ErrorIs(t, err, common.ErrInvalidDisplayCount)
	assert.Equal(t, 1, f.metrics.Failures(OpImportance, common.KindInvalidDisplayCount))
}

func TestService_Importance_IgnoresThresholdFailures(t *testing.T) {
	f := newServiceFixture(t, StubThreshold{Err: common.ErrThresholdNotFound})

	_, err := f.service.Importance(context.Background(), ImportanceRequest{MaxDisplay: 2})
	assert.NoError(t, err)
}

func TestService_Row(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	row, err := f.service.Row(1)
	require.NoError(t, err)
	assert.Equal(t, 1, row.Index)
	assert.Equal(t, 5.0, row.Values[0])

	_, err = f.service.Row(5)
	assert.ErrorIs(t, err, common.ErrOutOfRange)
	assert.Equal(t, 1, f.metrics.Failures(OpRow, common.KindOutOfRange))
}

func TestService_Info(t *testing.T) {
	f := newServiceFixture(t, FixedThreshold(0.5))

	assert.Equal(t, ModelInfo{
		Identity:        "test_model.pkl",
		Features:        []string{"f1", "f2", "f3", "f4"},
		Rows:            2,
		ThresholdPolicy: "fixed",
	}, f.service.Info())
}
