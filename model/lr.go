package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// LRModel 实现了逻辑回归 (Logistic Regression) 二分类模型。
//
// 预测原理：
// 1. 线性加权求和: z = Bias + sum(Weight_i * Feature_i)
// 2. Sigmoid 变换: P = 1 / (1 + exp(-z))
//
// P 为类别 1（已转化）的概率，输出 [1-P, P]。
// 权重按特征名给出，加载时按 Schema 列顺序展开为稠密向量，未给出的特征权重为 0。
type LRModel struct {
	Bias    float64            // 偏置项 (Bias / Intercept)
	Weights map[string]float64 // 特征权重 (Weights / Coefficients)

	dense []float64
}

// LoadLRModel 解析 LR JSON：{"bias": -2.0, "weights": {"Total Time Spent on Website": 0.02}}
// columns 为模型输入列顺序；权重中出现未知特征名视为制品错误。
func LoadLRModel(data []byte, columns []string) (*LRModel, error) {
	var raw struct {
		Bias    float64            `json:"bias"`
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse lr model: %w", err)
	}
	return NewLRModel(raw.Bias, raw.Weights, columns)
}

// NewLRModel 按 columns 顺序构建 LR 模型
func NewLRModel(bias float64, weights map[string]float64, columns []string) (*LRModel, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	dense := make([]float64, len(columns))
	for name, w := range weights {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("lr weight for unknown feature %q", name)
		}
		dense[i] = w
	}
	return &LRModel{Bias: bias, Weights: weights, dense: dense}, nil
}

func (m *LRModel) Name() string { return "lr" }

func (m *LRModel) NumFeatures() int { return len(m.dense) }

func (m *LRModel) PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, x := range rows {
		if len(x) != len(m.dense) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(x), len(m.dense))
		}
		score := m.Bias
		for j, w := range m.dense {
			score += w * x[j]
		}
		p := 1 / (1 + math.Exp(-score))
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}
