// Package insight 基于 CEL 规则为线索生成提示信息。
package insight

import (
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pkg/dsl"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Rule 是一条可配置的提示规则，Expr 为 CEL 布尔表达式。
type Rule struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Expr    string `json:"expr" yaml:"expr" mapstructure:"expr"`
	Level   string `json:"level" yaml:"level" mapstructure:"level"`
	Message string `json:"message" yaml:"message" mapstructure:"message"`
}

// DefaultRules 在网站停留时间不足 30 时给出低参与度警告
func DefaultRules() []Rule {
	return []Rule{{
		Name:    "low_engagement",
		Expr:    `"Total Time Spent on Website" in lead && lead["Total Time Spent on Website"] < 30.0`,
		Level:   LevelWarning,
		Message: "This lead has very low engagement on the website.",
	}}
}

type compiledRule struct {
	Rule
	expr *dsl.Expr
}

// RuleSet 是编译后的规则集合，按配置顺序执行，可并发使用。
type RuleSet struct {
	rules []compiledRule
}

// Compile 编译全部规则，任一规则非法即返回错误。
func Compile(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if r.Name == "" {
			return nil, core.NewDomainError(core.ModuleInsight, core.ErrorCodeInvalidInput, "insight: rule name is required")
		}
		expr, err := dsl.Compile(r.Expr)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleInsight, core.ErrorCodeInvalidInput, err, "insight: rule %s", r.Name)
		}
		if r.Level == "" {
			r.Level = LevelInfo
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, expr: expr})
	}
	return rs, nil
}

// Len 返回规则数
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Evaluate 返回命中的提示。prediction 为 nil 时规则中的 prediction 为空映射。
func (rs *RuleSet) Evaluate(rec *core.LeadRecord, pred *core.PredictionResult) ([]core.Insight, error) {
	lead := LeadMap(rec)
	var predMap map[string]any
	if pred != nil {
		predMap = map[string]any{
			"converted":   pred.Converted,
			"probability": pred.Probability,
			"label":       pred.Label(),
		}
	}

	var out []core.Insight
	for _, r := range rs.rules {
		hit, err := r.expr.Evaluate(lead, predMap)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleInsight, core.ErrorCodeInternalError, err, "insight: rule %s", r.Name)
		}
		if hit {
			out = append(out, core.Insight{Name: r.Name, Level: r.Level, Message: r.Message})
		}
	}
	return out, nil
}

// LeadMap 把记录转换为 CEL 输入：分类特征为 string，数值特征为 float64。
func LeadMap(rec *core.LeadRecord) map[string]any {
	out := make(map[string]any)
	if rec == nil {
		return out
	}
	for _, f := range rec.Fields() {
		out[f.Name] = f.Value.Any()
	}
	return out
}
