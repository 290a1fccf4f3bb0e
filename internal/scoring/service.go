package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/ml"
)

// MetricsInterface defines the metrics the service reports.
type MetricsInterface interface {
	PredictionsInc(decision int)
	FailuresInc(operation, kind string)
	LatencyObserve(operation string, seconds float64)
	ScoreObserve(p float64)
	ThresholdSet(t float64)
}

// Operation names used in metrics and logs
const (
	OpPredict    = "predict"
	OpImportance = "importance"
	OpRow        = "row"
)

// PredictRequest selects an applicant and the number of features to explain.
type PredictRequest struct {
	SelectedIndex  int `json:"selected_index"`
	ShapMaxDisplay int `json:"shap_max_display"`
}

// PredictionResult is an explained decision.
type PredictionResult struct {
	Index       int
	Probability float64
	Threshold   float64
	Decision    Decision
	TopFeatures []ml.RankedFeature
}

// ImportanceRequest asks for the n most important features.
type ImportanceRequest struct {
	MaxDisplay int `json:"max_display"`
}

// ImportanceResult holds aligned feature names and importances, most
// important first.
type ImportanceResult struct {
	Features    []string
	Importances []float64
}

// ModelInfo describes what the service is serving.
type ModelInfo struct {
	Identity        string   `json:"identity"`
	Features        []string `json:"features"`
	Rows            int      `json:"rows"`
	ThresholdPolicy string   `json:"threshold_policy"`
}

// Service is the read-only scoring context built once at startup. All of
// its collaborators are immutable, so it is safe for concurrent use.
type Service struct {
	dataset    *dataset.Dataset
	model      ml.Classifier
	attributor ml.Attributor
	thresholds ThresholdResolver
	metrics    MetricsInterface
}

// NewService wires the loaded collaborators together.
func NewService(ds *dataset.Dataset, model ml.Classifier, attributor ml.Attributor, thresholds ThresholdResolver, metrics MetricsInterface) *Service {
	return &Service{
		dataset:    ds,
		model:      model,
		attributor: attributor,
		thresholds: thresholds,
		metrics:    metrics,
	}
}

// Predict scores the selected applicant and explains the score with its
// ShapMaxDisplay most influential features.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (*PredictionResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.LatencyObserve(OpPredict, time.Since(start).Seconds())
	}()

	result, err := s.predict(ctx, req)
	if err != nil {
		s.fail(OpPredict, err, req.SelectedIndex)
		return nil, err
	}

	s.metrics.PredictionsInc(int(result.Decision))
	s.metrics.ScoreObserve(result.Probability)
	s.metrics.ThresholdSet(result.Threshold)

	log.Debug().
		Int("index", result.Index).
		Float64("probability", result.Probability).
		Float64("threshold", result.Threshold).
		Str("decision", result.Decision.String()).
		Dur("latency", time.Since(start)).
		Msg("Prediction explained")

	return result, nil
}

func (s *Service) predict(ctx context.Context, req PredictRequest) (*PredictionResult, error) {
	if req.ShapMaxDisplay < 0 {
		return nil, fmt.Errorf("%w: shap max display %d", common.ErrInvalidDisplayCount, req.ShapMaxDisplay)
	}

	row, err := dataset.ResolveRow(s.dataset, req.SelectedIndex)
	if err != nil {
		return nil, err
	}

	threshold, err := s.thresholds.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve threshold: %w", err)
	}

	eval, err := Evaluate(s.model, row, threshold)
	if err != nil {
		return nil, err
	}

	// Attribution is the expensive step
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("predict row %d: %w", row.Index, err)
	}

	attrs, err := s.attributor.Attribute(row.Values)
	if err != nil {
		return nil, inferenceError(fmt.Sprintf("attribute row %d", row.Index), err)
	}
	if len(attrs) != len(row.Values) {
		return nil, fmt.Errorf("%w: %d attributions for %d values", common.ErrModelInference, len(attrs), len(row.Values))
	}

	top, err := ml.RankAttributions(attrs, row.Values, row.Columns, req.ShapMaxDisplay)
	if err != nil {
		return nil, err
	}

	return &PredictionResult{
		Index:       row.Index,
		Probability: eval.Probability,
		Threshold:   eval.Threshold,
		Decision:    eval.Decision,
		TopFeatures: top,
	}, nil
}

// Importance returns the model's MaxDisplay most important features.
func (s *Service) Importance(ctx context.Context, req ImportanceRequest) (*ImportanceResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.LatencyObserve(OpImportance, time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		s.fail(OpImportance, err, -1)
		return nil, err
	}

	names, values, err := ml.RankImportances(s.model.FeatureImportances(), req.MaxDisplay)
	if err != nil {
		s.fail(OpImportance, err, -1)
		return nil, err
	}

	return &ImportanceResult{Features: names, Importances: values}, nil
}

// Row returns the applicant at index for display.
func (s *Service) Row(index int) (dataset.Row, error) {
	start := time.Now()
	defer func() {
		s.metrics.LatencyObserve(OpRow, time.Since(start).Seconds())
	}()

	row, err := dataset.ResolveRow(s.dataset, index)
	if err != nil {
		s.fail(OpRow, err, index)
		return dataset.Row{}, err
	}
	return row, nil
}

// Category returns the label of a categorical value of the dataset.
func (s *Service) Category(column string, value float64) (string, bool) {
	return s.dataset.Category(column, value)
}

// Info describes the served model and dataset.
func (s *Service) Info() ModelInfo {
	return ModelInfo{
		Identity:        s.model.Identity(),
		Features:        s.model.FeatureNames(),
		Rows:            s.dataset.Len(),
		ThresholdPolicy: s.thresholds.Policy(),
	}
}

func (s *Service) fail(operation string, err error, index int) {
	kind := common.KindOf(err)
	s.metrics.FailuresInc(operation, kind)

	event := log.Warn()
	if kind == common.KindModelInference || kind == common.KindThresholdNotFound || kind == common.KindInternal {
		event = log.Error()
	}
	event.Err(err).
		Str("operation", operation).
		Str("kind", kind).
		Int("index", index).
		Msg("Scoring request failed")
}
