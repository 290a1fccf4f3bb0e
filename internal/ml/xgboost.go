package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"loanscore/internal/common"
)

// xgbModel corresponds to an XGBoost JSON model (Booster.save_model).
type xgbModel struct {
	Learner xgbLearner `json:"learner"`
}

type xgbLearner struct {
	Attributes struct {
		BestNtreeLimit json.Number `json:"best_ntree_limit"`
	} `json:"attributes"`
	FeatureNames      []string `json:"feature_names"`
	LearnerModelParam struct {
		BaseScore  string `json:"base_score"`
		NumFeature string `json:"num_feature"`
	} `json:"learner_model_param"`
	Objective struct {
		Name string `json:"name"`
	} `json:"objective"`
	GradientBooster struct {
		Name  string `json:"name"`
		Model struct {
			Trees []xgbTree `json:"trees"`
		} `json:"model"`
	} `json:"gradient_booster"`
}

type xgbTree struct {
	BaseWeights     []float32 `json:"base_weights"`
	DefaultLeft     []int     `json:"default_left"`
	LeftChildren    []int     `json:"left_children"`
	LossChanges     []float32 `json:"loss_changes"`
	RightChildren   []int     `json:"right_children"`
	SplitConditions []float32 `json:"split_conditions"`
	SplitIndices    []int     `json:"split_indices"`
	SumHessian      []float32 `json:"sum_hessian"`
	TreeParam       struct {
		NumNodes json.Number `json:"num_nodes"`
	} `json:"tree_param"`
}

const objectiveBinaryLogistic = "binary:logistic"

// TreeEnsemble is a gradient boosted tree classifier with a logistic link.
type TreeEnsemble struct {
	identity    string
	features    []string
	trees       []*regTree
	baseMargin  float64
	importances []Importance
}

type regTree struct {
	nodes    []treeNode // Index 0 is the root.
	maxDepth int
}

type treeNode struct {
	left, right int // -1 on leaves
	feature     int
	threshold   float32
	defaultLeft bool
	value       float64 // leaf output
	cover       float64 // sum of hessians
	gain        float64 // loss change of the split
}

func (n *treeNode) isLeaf() bool { return n.left == -1 }

// next returns the child a value follows at an internal node. Missing values
// take the default direction; comparisons happen in float32 as XGBoost does.
func (t *regTree) next(nodeIndex int, value float64) int {
	node := &t.nodes[nodeIndex]
	if math.IsNaN(value) {
		if node.defaultLeft {
			return node.left
		}
		return node.right
	}
	if float32(value) < node.threshold {
		return node.left
	}
	return node.right
}

func (t *regTree) leafFor(values []float64) float64 {
	i := 0
	for !t.nodes[i].isLeaf() {
		i = t.next(i, values[t.nodes[i].feature])
	}
	return t.nodes[i].value
}

// ParseXGBoost decodes an XGBoost JSON model trained with the
// binary:logistic objective.
func ParseXGBoost(buf []byte, identity, importanceType string) (*TreeEnsemble, error) {
	var xm xgbModel
	if err := json.Unmarshal(buf, &xm); err != nil {
		return nil, fmt.Errorf("unmarshaling: %w", err)
	}
	learner := xm.Learner

	if learner.Objective.Name != objectiveBinaryLogistic {
		return nil, fmt.Errorf("unsupported objective %q, expected %s", learner.Objective.Name, objectiveBinaryLogistic)
	}
	if name := learner.GradientBooster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	if len(learner.FeatureNames) == 0 {
		return nil, fmt.Errorf("model has no feature_names")
	}

	baseScore, err := parseBaseScore(learner.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score %v outside (0, 1)", baseScore)
	}

	trees := make([]*regTree, 0, len(learner.GradientBooster.Model.Trees))
	for i, xt := range learner.GradientBooster.Model.Trees {
		tree, err := parseTree(xt, len(learner.FeatureNames))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees = append(trees, tree)
	}

	if limit := learner.Attributes.BestNtreeLimit.String(); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("getting best ntree limit as int: %w", err)
		}
		if n > 0 && n < len(trees) {
			trees = trees[:n]
		}
	}

	m := &TreeEnsemble{
		identity:   identity,
		features:   learner.FeatureNames,
		trees:      trees,
		baseMargin: math.Log(baseScore / (1 - baseScore)),
	}

	m.importances, err = treeImportances(m, importanceType)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// parseBaseScore accepts both "5E-1" and the "[5E-1]" form newer XGBoost
// versions write.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing base_score %q: %w", s, err)
	}
	return v, nil
}

func parseTree(xt xgbTree, numFeatures int) (*regTree, error) {
	numNodes64, err := xt.TreeParam.NumNodes.Int64()
	if err != nil {
		return nil, fmt.Errorf("getting num nodes as int64: %w", err)
	}
	numNodes := int(numNodes64)
	if numNodes < 1 {
		return nil, fmt.Errorf("tree has no nodes")
	}

	for name, n := range map[string]int{
		"default_left":     len(xt.DefaultLeft),
		"left_children":    len(xt.LeftChildren),
		"right_children":   len(xt.RightChildren),
		"split_conditions": len(xt.SplitConditions),
		"split_indices":    len(xt.SplitIndices),
		"sum_hessian":      len(xt.SumHessian),
	} {
		if n != numNodes {
			return nil, fmt.Errorf("%s has %d entries, expected %d", name, n, numNodes)
		}
	}
	if xt.LossChanges != nil && len(xt.LossChanges) != numNodes {
		return nil, fmt.Errorf("loss_changes has %d entries, expected %d", len(xt.LossChanges), numNodes)
	}

	nodes := make([]treeNode, numNodes)
	for i := range nodes {
		left, right := xt.LeftChildren[i], xt.RightChildren[i]
		node := treeNode{
			left:        left,
			right:       right,
			feature:     xt.SplitIndices[i],
			threshold:   xt.SplitConditions[i],
			defaultLeft: xt.DefaultLeft[i] == 1,
			cover:       float64(xt.SumHessian[i]),
		}
		if xt.LossChanges != nil {
			node.gain = float64(xt.LossChanges[i])
		}

		if left == -1 { // No child
			if right != -1 {
				return nil, fmt.Errorf("node %d has a right child only", i)
			}
			// Leaves keep their output in split_conditions.
			node.value = float64(xt.SplitConditions[i])
			nodes[i] = node
			continue
		}

		// Children always follow their parent, which also rules out cycles.
		if left <= i || right <= i || left >= numNodes || right >= numNodes {
			return nil, fmt.Errorf("node %d has invalid children %d, %d", i, left, right)
		}
		if node.feature < 0 || node.feature >= numFeatures {
			return nil, fmt.Errorf("node %d splits on feature %d, model has %d", i, node.feature, numFeatures)
		}
		if node.cover <= 0 {
			return nil, fmt.Errorf("node %d has non-positive cover %v", i, node.cover)
		}
		nodes[i] = node
	}

	tree := &regTree{nodes: nodes}
	tree.maxDepth = tree.depth(0)
	return tree, nil
}

func (t *regTree) depth(nodeIndex int) int {
	node := &t.nodes[nodeIndex]
	if node.isLeaf() {
		return 0
	}
	return max(t.depth(node.left), t.depth(node.right)) + 1
}

// Margin returns the raw log-odds score for a row.
func (m *TreeEnsemble) Margin(values []float64) (float64, error) {
	if err := checkWidth(values, len(m.features)); err != nil {
		return 0, err
	}
	margin := m.baseMargin
	for _, tree := range m.trees {
		margin += tree.leafFor(values)
	}
	return margin, nil
}

// PredictProbability implements Classifier.
func (m *TreeEnsemble) PredictProbability(values []float64) (float64, error) {
	margin, err := m.Margin(values)
	if err != nil {
		return 0, err
	}
	p := sigmoid(margin)
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: probability is NaN", common.ErrModelInference)
	}
	return p, nil
}

// FeatureImportances implements Classifier.
func (m *TreeEnsemble) FeatureImportances() []Importance {
	out := make([]Importance, len(m.importances))
	copy(out, m.importances)
	return out
}

// FeatureNames implements Classifier.
func (m *TreeEnsemble) FeatureNames() []string { return m.features }

// Identity implements Classifier.
func (m *TreeEnsemble) Identity() string { return m.identity }

// NumTrees returns the number of trees used for scoring.
func (m *TreeEnsemble) NumTrees() int { return len(m.trees) }

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
