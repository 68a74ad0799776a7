package pipeline

import (
	"context"

	"github.com/rushteam/leadscore/core"
)

// Kind 用于标记 Node 所属阶段，方便观测与编排校验。
type Kind string

const (
	KindNormalize Kind = "normalize" // 归一化：补全原始输入为 LeadRecord
	KindEncode    Kind = "encode"    // 编码：LeadRecord -> EncodedVector
	KindPredict   Kind = "predict"   // 预测：EncodedVector -> PredictionResult
	KindExplain   Kind = "explain"   // 解释：特征贡献与 Top-N
	KindInsight   Kind = "insight"   // 洞察：规则提示（如低参与度）
	KindReport    Kind = "report"    // 报告：汇总为 Report
)

// Node 是 Pipeline 的最小可扩展单元。
// 每个 Node 读取 LeadContext 中前序阶段的结果，并写入本阶段的结果。
type Node interface {
	Name() string
	Kind() Kind

	Process(ctx context.Context, lctx *core.LeadContext) error
}

// NodeFunc 把普通函数适配为 Node，便于测试与临时扩展。
type NodeFunc struct {
	NodeName string
	NodeKind Kind
	Fn       func(ctx context.Context, lctx *core.LeadContext) error
}

func (n NodeFunc) Name() string { return n.NodeName }
func (n NodeFunc) Kind() Kind   { return n.NodeKind }

func (n NodeFunc) Process(ctx context.Context, lctx *core.LeadContext) error {
	return n.Fn(ctx, lctx)
}
