// Package scoring turns a selected applicant into an explained credit
// decision: it resolves the row, scores it, compares the probability of
// default against the acceptance threshold and ranks the attributions.
package scoring

import (
	"fmt"
	"math"

	"loanscore/internal/common"
	"loanscore/internal/dataset"
	"loanscore/internal/ml"
)

// Decision is the binary outcome for an applicant.
type Decision int

const (
	Accepted Decision = 0 // probability of default at or below the threshold
	Refused  Decision = 1 // probability of default above the threshold
)

func (d Decision) String() string {
	if d == Refused {
		return "refused"
	}
	return "accepted"
}

// Decide returns Refused iff p > t. A probability equal to the threshold is
// accepted.
func Decide(p, t float64) Decision {
	if p > t {
		return Refused
	}
	return Accepted
}

// Evaluation is a scored row.
type Evaluation struct {
	Probability float64
	Threshold   float64
	Decision    Decision
}

// Evaluate scores a row and decides it against t.
func Evaluate(model ml.Classifier, row dataset.Row, t float64) (Evaluation, error) {
	if want := len(model.FeatureNames()); len(row.Values) != want {
		return Evaluation{}, fmt.Errorf("%w: row %d has %d values, model expects %d",
			common.ErrModelInference, row.Index, len(row.Values), want)
	}

	p, err := model.PredictProbability(row.Values)
	if err != nil {
		return Evaluation{}, inferenceError(fmt.Sprintf("predict row %d", row.Index), err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Evaluation{}, fmt.Errorf("%w: row %d scored %v", common.ErrModelInference, row.Index, p)
	}

	return Evaluation{
		Probability: p,
		Threshold:   t,
		Decision:    Decide(p, t),
	}, nil
}

// inferenceError keeps a model failure classified as a model inference error.
func inferenceError(op string, err error) error {
	if common.KindOf(err) == common.KindModelInference {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, common.ErrModelInference, err)
}
