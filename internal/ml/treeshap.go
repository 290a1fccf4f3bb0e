package ml

// The path algorithm below follows the TreeSHAP implementation in XGBoost
// (cpu_treeshap.cc).
//
// Copyright by XGBoost Contributors 2017-2023
//
// xgboost's code is Apache 2.0 licensed.

import (
	"fmt"
	"math"

	"loanscore/internal/common"
)

// TreeExplainer computes exact TreeSHAP attributions in margin (log-odds)
// space. For every row the attributions plus ExpectedValue sum to the
// ensemble's margin.
type TreeExplainer struct {
	model      *TreeEnsemble
	meanValues [][]float64 // per tree, per node
	expected   float64
}

// pathElement is an element used by the treeshap algorithm.
type pathElement struct {
	featureIndex int
	zeroFraction float64
	oneFraction  float64
	pweight      float64
}

// NewTreeExplainer precomputes the node mean values of every tree.
func NewTreeExplainer(m *TreeEnsemble) *TreeExplainer {
	e := &TreeExplainer{
		model:      m,
		meanValues: make([][]float64, len(m.trees)),
		expected:   m.baseMargin,
	}
	for i, tree := range m.trees {
		e.meanValues[i] = make([]float64, len(tree.nodes))
		e.expected += fillNodeMeanValues(tree, 0, e.meanValues[i])
	}
	return e
}

// ExpectedValue is the margin the attributions are measured against.
func (e *TreeExplainer) ExpectedValue() float64 {
	return e.expected
}

// Attribute implements Attributor. Buffers are allocated per call so the
// explainer can be shared between goroutines.
func (e *TreeExplainer) Attribute(values []float64) ([]float64, error) {
	if err := checkWidth(values, len(e.model.features)); err != nil {
		return nil, err
	}

	phi := make([]float64, len(values))
	for _, tree := range e.model.trees {
		// Preallocate space for the unique path data
		maxDepth := tree.maxDepth + 2
		uniquePath := make([]pathElement, (maxDepth*(maxDepth+1))/2)

		if err := treeShap(tree, values, phi, 0, 0, uniquePath, 1, 1, -1); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrModelInference, err)
		}
	}

	for i, v := range phi {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: attribution for feature %d is %v", common.ErrModelInference, i, v)
		}
	}
	return phi, nil
}

// fillNodeMeanValues stores the cover-weighted mean leaf value under every node.
func fillNodeMeanValues(tree *regTree, nodeIndex int, meanValues []float64) float64 {
	node := &tree.nodes[nodeIndex]

	var result float64
	if node.isLeaf() {
		result = node.value
	} else {
		result = fillNodeMeanValues(tree, node.left, meanValues) * tree.nodes[node.left].cover
		result += fillNodeMeanValues(tree, node.right, meanValues) * tree.nodes[node.right].cover
		result /= node.cover
	}

	meanValues[nodeIndex] = result
	return result
}

// treeShap recursively accumulates the attributions of one tree into phi.
func treeShap(
	tree *regTree,
	values []float64,
	phi []float64,
	nodeIndex,
	uniqueDepth int,
	parentUniquePath []pathElement,
	parentZeroFraction,
	parentOneFraction float64,
	parentFeatureIndex int,
) error {
	node := &tree.nodes[nodeIndex]

	// extend the unique path
	uniquePath := parentUniquePath[uniqueDepth+1:]
	copy(uniquePath, parentUniquePath[:uniqueDepth+1])
	extendPath(uniquePath, uniqueDepth, parentZeroFraction, parentOneFraction, parentFeatureIndex)

	if node.isLeaf() {
		for i := 1; i <= uniqueDepth; i++ {
			w, err := unwoundPathSum(uniquePath, uniqueDepth, i)
			if err != nil {
				return err
			}
			el := uniquePath[i]
			phi[el.featureIndex] += w * (el.oneFraction - el.zeroFraction) * node.value
		}
		return nil
	}

	// find which branch is "hot" (meaning x would follow it)
	hotIndex := tree.next(nodeIndex, values[node.feature])
	coldIndex := node.left
	if hotIndex == node.left {
		coldIndex = node.right
	}

	w := node.cover
	hotZeroFraction := tree.nodes[hotIndex].cover / w
	coldZeroFraction := tree.nodes[coldIndex].cover / w
	incomingZeroFraction := 1.0
	incomingOneFraction := 1.0

	// see if we have already split on this feature,
	// if so we undo that split so we can redo it for this node
	pathIndex := 0
	for ; pathIndex <= uniqueDepth; pathIndex++ {
		if uniquePath[pathIndex].featureIndex == node.feature {
			break
		}
	}
	if pathIndex != uniqueDepth+1 {
		incomingZeroFraction = uniquePath[pathIndex].zeroFraction
		incomingOneFraction = uniquePath[pathIndex].oneFraction
		unwindPath(uniquePath, uniqueDepth, pathIndex)
		uniqueDepth--
	}

	err := treeShap(tree, values, phi, hotIndex, uniqueDepth+1, uniquePath,
		hotZeroFraction*incomingZeroFraction, incomingOneFraction, node.feature)
	if err != nil {
		return err
	}

	return treeShap(tree, values, phi, coldIndex, uniqueDepth+1, uniquePath,
		coldZeroFraction*incomingZeroFraction, 0, node.feature)
}

// extend our decision path with a fraction of one and zero extensions
func extendPath(uniquePath []pathElement, uniqueDepth int, zeroFraction, oneFraction float64, featureIndex int) {
	uniquePath[uniqueDepth].featureIndex = featureIndex
	uniquePath[uniqueDepth].zeroFraction = zeroFraction
	uniquePath[uniqueDepth].oneFraction = oneFraction
	if uniqueDepth == 0 {
		uniquePath[uniqueDepth].pweight = 1
	} else {
		uniquePath[uniqueDepth].pweight = 0
	}

	for i := uniqueDepth - 1; i >= 0; i-- {
		uniquePath[i+1].pweight += oneFraction * uniquePath[i].pweight * float64(i+1) / float64(uniqueDepth+1)
		uniquePath[i].pweight = zeroFraction * uniquePath[i].pweight * float64(uniqueDepth-i) / float64(uniqueDepth+1)
	}
}

// undo a previous extension of the decision path
func unwindPath(uniquePath []pathElement, uniqueDepth, pathIndex int) {
	oneFraction := uniquePath[pathIndex].oneFraction
	zeroFraction := uniquePath[pathIndex].zeroFraction
	nextOnePortion := uniquePath[uniqueDepth].pweight

	for i := uniqueDepth - 1; i >= 0; i-- {
		if oneFraction != 0 {
			tmp := uniquePath[i].pweight
			uniquePath[i].pweight = nextOnePortion * float64(uniqueDepth+1) / (float64(i+1) * oneFraction)
			nextOnePortion = tmp - uniquePath[i].pweight*zeroFraction*float64(uniqueDepth-i)/float64(uniqueDepth+1)
		} else {
			uniquePath[i].pweight = (uniquePath[i].pweight * float64(uniqueDepth+1)) / (zeroFraction * float64(uniqueDepth-i))
		}
	}

	for i := pathIndex; i < uniqueDepth; i++ {
		uniquePath[i].featureIndex = uniquePath[i+1].featureIndex
		uniquePath[i].zeroFraction = uniquePath[i+1].zeroFraction
		uniquePath[i].oneFraction = uniquePath[i+1].oneFraction
	}
}

// determine what the total permutation weight would be if
// we unwound a previous extension in the decision path
func unwoundPathSum(uniquePath []pathElement, uniqueDepth, pathIndex int) (float64, error) {
	oneFraction := uniquePath[pathIndex].oneFraction
	zeroFraction := uniquePath[pathIndex].zeroFraction
	nextOnePortion := uniquePath[uniqueDepth].pweight

	var total float64
	for i := uniqueDepth - 1; i >= 0; i-- {
		if oneFraction != 0 {
			tmp := nextOnePortion * float64(uniqueDepth+1) / (float64(i+1) * oneFraction)
			total += tmp
			nextOnePortion = uniquePath[i].pweight - tmp*zeroFraction*(float64(uniqueDepth-i)/float64(uniqueDepth+1))
			continue
		}
		if zeroFraction != 0 {
			total += (uniquePath[i].pweight / zeroFraction) / (float64(uniqueDepth-i) / float64(uniqueDepth+1))
			continue
		}
		if uniquePath[i].pweight != 0 {
			return 0, fmt.Errorf("unique path %d must have zero weight", i)
		}
	}
	return total, nil
}
