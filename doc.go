// Package leadscore 是线索转化预测工具包。
//
// 设计要点：
// - Pipeline-first: 一次预测由 Node 串联（Normalize → Encode → Predict → Explain → Insight → Report）
// - Labels-first: 各阶段在 LeadContext.Labels 中留下可追踪信息（回退特征、模型、解释方法）
// - 前端无关: Web 页面与命令行都只是 Engine 的薄调用方
package leadscore

import "github.com/rushteam/leadscore/pipeline"

// 轻量 facade：便于直接 import "leadscore" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindNormalize = pipeline.KindNormalize
	KindEncode    = pipeline.KindEncode
	KindPredict   = pipeline.KindPredict
	KindExplain   = pipeline.KindExplain
	KindInsight   = pipeline.KindInsight
	KindReport    = pipeline.KindReport
)

// Version 由构建时 -ldflags "-X github.com/rushteam/leadscore.Version=..." 注入
var Version = "dev"
