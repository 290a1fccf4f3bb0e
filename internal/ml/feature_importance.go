package ml

import (
	"fmt"
	"sort"

	"loanscore/internal/common"
)

// treeImportances aggregates split statistics per feature.
//
//	weight     - number of splits on the feature
//	gain       - average loss change of those splits
//	total_gain - summed loss change
//
// The scores are normalised to sum to 1; features never split on score 0.
func treeImportances(m *TreeEnsemble, importanceType string) ([]Importance, error) {
	counts := make([]float64, len(m.features))
	gains := make([]float64, len(m.features))

	for _, tree := range m.trees {
		for i := range tree.nodes {
			node := &tree.nodes[i]
			if node.isLeaf() {
				continue
			}
			counts[node.feature]++
			gains[node.feature] += node.gain
		}
	}

	scores := make([]float64, len(m.features))
	switch importanceType {
	case common.ImportanceWeight:
		copy(scores, counts)
	case common.ImportanceGain:
		for i := range scores {
			if counts[i] > 0 {
				scores[i] = gains[i] / counts[i]
			}
		}
	case common.ImportanceTotalGain:
		copy(scores, gains)
	default:
		return nil, fmt.Errorf("unknown importance type %q", importanceType)
	}

	return normalise(m.features, scores), nil
}

func normalise(features []string, scores []float64) []Importance {
	var total float64
	for _, s := range scores {
		total += s
	}

	out := make([]Importance, len(features))
	for i, name := range features {
		v := scores[i]
		if total > 0 {
			v /= total
		}
		out[i] = Importance{Feature: name, Value: v}
	}
	return out
}

// RankImportances orders importances from most to least important and keeps
// the first n. Equal importances keep their input order. It returns the
// names and values as two aligned slices.
func RankImportances(importances []Importance, n int) ([]string, []float64, error) {
	if n < 0 {
		return nil, nil, fmt.Errorf("%w: max display %d", common.ErrInvalidDisplayCount, n)
	}

	sorted := make([]Importance, len(importances))
	copy(sorted, importances)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	if n > len(sorted) {
		n = len(sorted)
	}

	names := make([]string, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		names[i] = sorted[i].Feature
		values[i] = sorted[i].Value
	}
	return names, values, nil
}
