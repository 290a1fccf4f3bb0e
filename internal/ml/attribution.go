package ml

import (
	"fmt"
	"math"
	"sort"

	"loanscore/internal/common"
)

// RankedFeature is one entry of an explained prediction.
type RankedFeature struct {
	Feature     string
	Value       float64 // raw row value, NaN when missing
	Attribution float64
}

// RankAttributions returns the k features with the largest absolute
// attribution, most influential first. Ties keep the lower column first.
// attrs, values and names must be aligned.
func RankAttributions(attrs, values []float64, names []string, k int) ([]RankedFeature, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: shap max display %d", common.ErrInvalidDisplayCount, k)
	}
	if len(attrs) != len(values) || len(attrs) != len(names) {
		return nil, fmt.Errorf("%w: %d attributions for %d values and %d features",
			common.ErrModelInference, len(attrs), len(values), len(names))
	}

	order := make([]int, len(attrs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(attrs[order[a]]) > math.Abs(attrs[order[b]])
	})

	if k > len(order) {
		k = len(order)
	}

	ranked := make([]RankedFeature, k)
	for i, pos := range order[:k] {
		ranked[i] = RankedFeature{
			Feature:     names[pos],
			Value:       values[pos],
			Attribution: attrs[pos],
		}
	}
	return ranked, nil
}
