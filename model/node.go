package model

import (
	"context"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pipeline"
	"github.com/rushteam/leadscore/pkg/utils"
)

// PredictNode 对 LeadContext.Vector 做预测，写入 LeadContext.Prediction。
type PredictNode struct {
	Predictor *Predictor
}

func (n *PredictNode) Name() string        { return "lead.predict" }
func (n *PredictNode) Kind() pipeline.Kind { return pipeline.KindPredict }

func (n *PredictNode) Process(ctx context.Context, lctx *core.LeadContext) error {
	res, err := n.Predictor.Predict(ctx, lctx.Vector)
	if err != nil {
		return err
	}
	lctx.Prediction = &res
	lctx.PutLabel("model", utils.Label{Value: n.Predictor.Model.Name(), Source: string(pipeline.KindPredict)})
	return nil
}
