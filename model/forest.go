package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// RandomForest 是导出为 JSON 的随机森林分类器，结构与 sklearn 的 tree_ 数组一致。
//
// 预测原理：
//  1. 每棵树从根节点出发，float32(x[feature]) <= threshold 走左子树，否则走右子树
//  2. 叶子节点的类别权重归一化为概率分布
//  3. 所有树的概率分布取平均（与 sklearn predict_proba 一致）
type RandomForest struct {
	Trees     []*DecisionTree
	NFeatures int
	Classes   []int
}

// DecisionTree 是单棵树的扁平数组表示，ChildrenLeft[i] == -1 表示叶子节点。
type DecisionTree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`

	// proba 是预先归一化的叶子概率分布
	proba [][]float64
}

type forestJSON struct {
	NFeatures int             `json:"n_features"`
	NClasses  int             `json:"n_classes"`
	Classes   []int           `json:"classes"`
	Trees     []*DecisionTree `json:"trees"`
}

// LoadRandomForest 解析并校验随机森林 JSON
func LoadRandomForest(data []byte) (*RandomForest, error) {
	var raw forestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse forest: %w", err)
	}
	if raw.NFeatures <= 0 {
		return nil, fmt.Errorf("n_features must be positive")
	}
	if len(raw.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	nClasses := raw.NClasses
	if nClasses == 0 {
		nClasses = len(raw.Classes)
	}
	if nClasses < 2 {
		return nil, fmt.Errorf("forest must have at least 2 classes, got %d", nClasses)
	}
	if len(raw.Classes) != 0 && len(raw.Classes) != nClasses {
		return nil, fmt.Errorf("classes has %d entries, n_classes is %d", len(raw.Classes), nClasses)
	}
	for i, tree := range raw.Trees {
		if err := tree.init(raw.NFeatures, nClasses); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	classes := raw.Classes
	if len(classes) == 0 {
		classes = make([]int, nClasses)
		for i := range classes {
			classes[i] = i
		}
	}
	return &RandomForest{Trees: raw.Trees, NFeatures: raw.NFeatures, Classes: classes}, nil
}

func (t *DecisionTree) init(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	t.proba = make([][]float64, n)
	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == -1 {
			if len(t.Value[i]) != nClasses {
				return fmt.Errorf("leaf %d has %d class weights, want %d", i, len(t.Value[i]), nClasses)
			}
			var total float64
			for _, w := range t.Value[i] {
				if w < 0 {
					return fmt.Errorf("leaf %d has a negative class weight", i)
				}
				total += w
			}
			if total == 0 {
				return fmt.Errorf("leaf %d has zero total weight", i)
			}
			p := make([]float64, nClasses)
			for c, w := range t.Value[i] {
				p[c] = w / total
			}
			t.proba[i] = p
			continue
		}
		// 子节点下标必须指向后续节点，保证遍历一定终止
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has invalid children (%d, %d)", i, left, right)
		}
		if f := t.Feature[i]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, f, nFeatures)
		}
	}
	return nil
}

func (t *DecisionTree) leaf(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if float64(float32(x[t.Feature[node]])) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.proba[node]
}

func (m *RandomForest) Name() string { return "forest" }

func (m *RandomForest) NumFeatures() int { return m.NFeatures }

// PredictProba 返回每行各类别的平均概率
func (m *RandomForest) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	inv := 1 / float64(len(m.Trees))
	for i, x := range rows {
		if len(x) != m.NFeatures {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(x), m.NFeatures)
		}
		p := make([]float64, len(m.Classes))
		for _, tree := range m.Trees {
			for c, v := range tree.leaf(x) {
				p[c] += v
			}
		}
		for c := range p {
			p[c] *= inv
		}
		out[i] = p
	}
	return out, nil
}
