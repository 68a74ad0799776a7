package explain

import (
	"context"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pipeline"
	"github.com/rushteam/leadscore/pkg/utils"
)

// ExplainNode 计算 LeadContext.Vector 的特征贡献，写入 Attribution 与 TopFeatures。
type ExplainNode struct {
	Explainer *Explainer
	TopN      int
}

func (n *ExplainNode) Name() string        { return "lead.explain" }
func (n *ExplainNode) Kind() pipeline.Kind { return pipeline.KindExplain }

func (n *ExplainNode) Process(ctx context.Context, lctx *core.LeadContext) error {
	res, err := n.Explainer.Explain(ctx, lctx.Vector)
	if err != nil {
		return err
	}
	lctx.Attribution = &res
	lctx.TopFeatures = TopN(res, n.TopN)
	lctx.PutLabel("explain", utils.Label{Value: res.Method, Source: string(pipeline.KindExplain)})
	return nil
}
