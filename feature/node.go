package feature

import (
	"context"
	"strings"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pipeline"
	"github.com/rushteam/leadscore/pkg/utils"
)

// NormalizeNode 把 LeadContext.Raw 归一化为 LeadContext.Record。
type NormalizeNode struct {
	Schema *Schema
}

func (n *NormalizeNode) Name() string        { return "lead.normalize" }
func (n *NormalizeNode) Kind() pipeline.Kind { return pipeline.KindNormalize }

func (n *NormalizeNode) Process(ctx context.Context, lctx *core.LeadContext) error {
	rec, err := Normalize(n.Schema, lctx.Raw)
	if err != nil {
		return err
	}
	lctx.Record = rec
	if d := rec.Defaulted(); len(d) > 0 {
		lctx.PutLabel("defaulted", utils.Label{Value: strings.Join(d, ","), Source: string(pipeline.KindNormalize)})
	}
	return nil
}

// EncodeNode 把 LeadContext.Record 编码为 LeadContext.Vector。
type EncodeNode struct {
	Encoder *Encoder
}

func (n *EncodeNode) Name() string        { return "lead.encode" }
func (n *EncodeNode) Kind() pipeline.Kind { return pipeline.KindEncode }

func (n *EncodeNode) Process(ctx context.Context, lctx *core.LeadContext) error {
	vec, err := n.Encoder.Encode(lctx.Record)
	if err != nil {
		return err
	}
	lctx.Vector = vec
	return nil
}
