package config

import (
	"fmt"
	"time"

	"github.com/rushteam/leadscore/explain"
	"github.com/rushteam/leadscore/feature"
	"github.com/rushteam/leadscore/insight"
	"github.com/rushteam/leadscore/model"
	"github.com/rushteam/leadscore/pipeline"
)

// Resources 是构建 Node 时共享的只读资源，进程启动时加载一次。
type Resources struct {
	Schema    *feature.Schema
	Encoder   *feature.Encoder
	Predictor *model.Predictor
	Explainer *explain.Explainer
	Rules     *insight.RuleSet

	// TopN 为 lead.explain 未配置 top_n 时的默认值
	TopN int
	// Now 为报告时间来源，nil 时使用 time.Now
	Now func() time.Time
}

// DefaultNodeTypes 是未配置 pipeline 文件时使用的 Node 顺序
var DefaultNodeTypes = []string{
	"lead.normalize",
	"lead.encode",
	"lead.predict",
	"lead.explain",
	"lead.insight",
	"lead.report",
}

// DefaultPipelineConfig 返回默认的 Pipeline 配置
func DefaultPipelineConfig() *pipeline.Config {
	cfg := &pipeline.Config{}
	cfg.Pipeline.Name = "lead-conversion"
	for _, t := range DefaultNodeTypes {
		cfg.Pipeline.Nodes = append(cfg.Pipeline.Nodes, pipeline.NodeConfig{Type: t})
	}
	return cfg
}

// BuildPipeline 校验 cfg 中的 Node 类型并用 res 构建 Pipeline，cfg 为 nil 时使用默认配置。
func BuildPipeline(cfg *pipeline.Config, res *Resources) (*pipeline.Pipeline, error) {
	if cfg == nil {
		cfg = DefaultPipelineConfig()
	}
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	p, err := cfg.BuildPipeline(DefaultFactory(res))
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", cfg.Pipeline.Name, err)
	}
	return p, nil
}
