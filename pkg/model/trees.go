package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mchmarny/credscore/pkg/table"
)

// Tree ensemble objectives.
const (
	// ObjectiveLogistic sums leaf margins onto BaseScore and applies the
	// logistic function (gradient boosting).
	ObjectiveLogistic = "logistic"
	// ObjectiveProbability averages leaf probabilities (random forest).
	ObjectiveProbability = "probability"
)

// TreeNode is one node of a binary decision tree. Rows with
// x[Feature] <= Threshold go left; missing values follow MissingLeft.
type TreeNode struct {
	Feature     int       `json:"feature"`
	Threshold   float64   `json:"threshold"`
	Left        *TreeNode `json:"left,omitempty"`
	Right       *TreeNode `json:"right,omitempty"`
	Value       float64   `json:"value"`
	IsLeaf      bool      `json:"leaf"`
	MissingLeft bool      `json:"missing_left,omitempty"`
}

// TreeEnsemble is a forest or boosted set of trees over Features.
type TreeEnsemble struct {
	Features  []string    `json:"features"`
	Objective string      `json:"objective"`
	BaseScore float64     `json:"base_score"`
	Trees     []*TreeNode `json:"trees"`
	Encodings Encodings   `json:"encodings,omitempty"`
}

func (m *TreeEnsemble) validate() error {
	if len(m.Features) == 0 {
		return errors.New("no features")
	}
	if len(m.Trees) == 0 {
		return errors.New("no trees")
	}
	switch m.Objective {
	case ObjectiveLogistic, ObjectiveProbability:
	default:
		return fmt.Errorf("unknown objective %q", m.Objective)
	}
	for i, t := range m.Trees {
		if err := m.validateNode(t); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (m *TreeEnsemble) validateNode(n *TreeNode) error {
	if n == nil {
		return errors.New("nil node")
	}
	if n.IsLeaf {
		return nil
	}
	if n.Feature < 0 || n.Feature >= len(m.Features) {
		return fmt.Errorf("feature index %d out of range", n.Feature)
	}
	if err := m.validateNode(n.Left); err != nil {
		return err
	}
	return m.validateNode(n.Right)
}

// Score implements Scorer.
func (m *TreeEnsemble) Score(ctx context.Context, t *table.Table) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := matrix(t, m.Features, m.Encodings)
	if err != nil {
		return nil, err
	}

	k := len(m.Features)
	out := make([]float64, t.Len())
	for r := range out {
		x := data[r*k : (r+1)*k]
		var sum float64
		for _, tree := range m.Trees {
			sum += leaf(tree, x).Value
		}
		if m.Objective == ObjectiveLogistic {
			out[r] = sigmoid(m.BaseScore + sum)
		} else {
			out[r] = sum / float64(len(m.Trees))
		}
	}
	return out, nil
}

func leaf(n *TreeNode, x []float64) *TreeNode {
	for !n.IsLeaf {
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.MissingLeft {
				n = n.Left
			} else {
				n = n.Right
			}
		case v <= n.Threshold:
			n = n.Left
		default:
			n = n.Right
		}
	}
	return n
}
