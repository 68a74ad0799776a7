package model

import "context"

// Classifier 是二分类模型的最小抽象：输入按 Schema 顺序编码的特征行，输出每行各类别的概率。
// 具体实现可以是本地模型（随机森林 / LR）或远程 RPC 模型服务。
//
// 实现必须可被并发调用（解释器会批量调用同一个模型）。
type Classifier interface {
	Name() string

	// NumFeatures 返回模型期望的输入宽度，0 表示未知（例如远程模型）
	NumFeatures() int

	// PredictProba 对 rows 批量预测，返回 len(rows) 行，每行为各类别概率（类别 1 为"已转化"）
	PredictProba(ctx context.Context, rows [][]float64) ([][]float64, error)
}
