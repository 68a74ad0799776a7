package core

import "github.com/rushteam/leadscore/pkg/utils"

// LeadContext 承载单次预测请求的全部中间结果，贯穿整个 Pipeline 透传。
// 每个请求新建一个，请求之间不共享任何可变状态。
type LeadContext struct {
	RequestID string

	// Raw 是用户提交的原始（可能不完整的）字段映射
	Raw map[string]any

	Record      *LeadRecord
	Vector      EncodedVector
	Prediction  *PredictionResult
	Attribution *AttributionResult
	TopFeatures []RankedAttribution
	Insights    []Insight
	Report      *Report

	// Labels 记录各阶段的可追踪信息，例如 model=forest、explain=exact
	Labels map[string]utils.Label
}

// NewLeadContext 基于原始输入创建请求上下文。
func NewLeadContext(requestID string, raw map[string]any) *LeadContext {
	return &LeadContext{
		RequestID: requestID,
		Raw:       raw,
		Labels:    make(map[string]utils.Label),
	}
}

// PutLabel 写入阶段 Label，同名 Label 按 utils.MergeLabel 合并。
func (lctx *LeadContext) PutLabel(key string, lbl utils.Label) {
	if lctx.Labels == nil {
		lctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := lctx.Labels[key]; ok {
		lctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	lctx.Labels[key] = lbl
}

// GetLabel 获取阶段 Label。
func (lctx *LeadContext) GetLabel(key string) (utils.Label, bool) {
	if lctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := lctx.Labels[key]
	return lbl, ok
}
