package builders

import (
	"fmt"

	"github.com/rushteam/leadscore/config"
	"github.com/rushteam/leadscore/explain"
	"github.com/rushteam/leadscore/feature"
	"github.com/rushteam/leadscore/insight"
	"github.com/rushteam/leadscore/model"
	"github.com/rushteam/leadscore/pipeline"
	"github.com/rushteam/leadscore/pkg/conv"
	"github.com/rushteam/leadscore/report"
)

func init() {
	config.Register("lead.normalize", BuildNormalizeNode)
	config.Register("lead.encode", BuildEncodeNode)
	config.Register("lead.predict", BuildPredictNode)
	config.Register("lead.explain", BuildExplainNode)
	config.Register("lead.insight", BuildInsightNode)
	config.Register("lead.report", BuildReportNode)
}

func BuildNormalizeNode(cfg map[string]interface{}, res *config.Resources) (pipeline.Node, error) {
	if res == nil || res.Schema == nil {
		return nil, fmt.Errorf("schema not loaded")
	}
	return &feature.NormalizeNode{Schema: res.Schema}, nil
}

func BuildEncodeNode(cfg map[string]interface{}, res *config.Resources) (pipeline.Node, error) {
	if res == nil || (res.Encoder == nil && res.Schema == nil) {
		return nil, fmt.Errorf("encoder not loaded")
	}
	enc := res.Encoder
	if enc == nil {
		enc = feature.NewEncoder(res.Schema)
	}
	return &feature.EncodeNode{Encoder: enc}, nil
}

func BuildPredictNode(cfg map[string]interface{}, res *config.Resources) (pipeline.Node, error) {
	if res == nil || res.Predictor == nil {
		return nil, fmt.Errorf("predictor not loaded")
	}
	return &model.PredictNode{Predictor: res.Predictor}, nil
}

// BuildExplainNode 支持 top_n 配置，未配置时使用 Resources.TopN
func BuildExplainNode(cfg map[string]interface{}, res *config.Resources) (pipeline.Node, error) {
	if res == nil || res.Explainer == nil {
		return nil, fmt.Errorf("explainer not loaded")
	}
	topN := int(conv.ConfigGetInt64(cfg, "top_n", int64(res.TopN)))
	if topN <= 0 {
		topN = explain.DefaultTopN
	}
	return &explain.ExplainNode{Explainer: res.Explainer, TopN: topN}, nil
}

// BuildInsightNode 支持在 Node 配置中内联 rules，覆盖全局规则
func BuildInsightNode(cfg map[string]interface{}, res *config.Resources) (pipeline.Node, error) {
	raw, ok := cfg["rules"].([]interface{})
	if !ok {
		var rules *insight.RuleSet
		if res != nil {
			rules = res.Rules
		}
		return &insight.InsightNode{Rules: rules}, nil
	}

	rules := make([]insight.Rule, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid rule: %v", r)
		}
		rules = append(rules, insight.Rule{
			Name:    conv.ConfigGet(m, "name", ""),
			Expr:    conv.ConfigGet(m, "expr", ""),
			Level:   conv.ConfigGet(m, "level", ""),
			Message: conv.ConfigGet(m, "message", ""),
		})
	}
	rs, err := insight.Compile(rules)
	if err != nil {
		return nil, err
	}
	return &insight.InsightNode{Rules: rs}, nil
}

func BuildReportNode(cfg map[string]interface{}, res *config.Resources) (pipeline.Node, error) {
	node := &report.ReportNode{}
	if res != nil {
		node.Now = res.Now
	}
	return node, nil
}
