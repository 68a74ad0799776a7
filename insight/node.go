package insight

import (
	"context"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pipeline"
)

// InsightNode 对归一化后的记录执行规则，结果写入 LeadContext.Insights。
type InsightNode struct {
	Rules *RuleSet
}

func (n *InsightNode) Name() string        { return "lead.insight" }
func (n *InsightNode) Kind() pipeline.Kind { return pipeline.KindInsight }

func (n *InsightNode) Process(ctx context.Context, lctx *core.LeadContext) error {
	if n.Rules == nil || n.Rules.Len() == 0 {
		return nil
	}
	insights, err := n.Rules.Evaluate(lctx.Record, lctx.Prediction)
	if err != nil {
		return err
	}
	lctx.Insights = append(lctx.Insights, insights...)
	return nil
}
