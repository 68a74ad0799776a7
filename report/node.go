package report

import (
	"context"
	"time"

	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pipeline"
)

// ReportNode 依据 Prediction 与 Record 生成 LeadContext.Report。
type ReportNode struct {
	// Now 默认为 time.Now
	Now func() time.Time
}

func (n *ReportNode) Name() string        { return "lead.report" }
func (n *ReportNode) Kind() pipeline.Kind { return pipeline.KindReport }

func (n *ReportNode) Process(ctx context.Context, lctx *core.LeadContext) error {
	if lctx.Prediction == nil || lctx.Record == nil {
		return core.NewDomainError(core.ModuleReport, core.ErrorCodeInvalidInput, "report: prediction and record are required")
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	rep := Stamp(Build(*lctx.Prediction, lctx.Record), now())
	lctx.Report = &rep
	return nil
}
