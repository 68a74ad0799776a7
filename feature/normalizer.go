package feature

import (
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/pkg/conv"
)

// DefaultNumeric 是数值特征缺失或无法解析时的取值。
const DefaultNumeric = 0.0

// Normalize 将部分填写的原始输入补全为完整的 LeadRecord。纯函数。
//
// 规则：
//   - 分类特征：提供的 string 与已注册标签精确匹配则采用，否则静默回退为第一个已注册标签
//   - 数值特征：提供的值可解析为实数则采用（见 conv.ParseReal），否则为 0.0
//   - raw 中不属于 Schema 的 key 被忽略
//
// 回退不视为错误，被回退的特征名记录在 LeadRecord.Defaulted() 中。
func Normalize(schema *Schema, raw map[string]any) (*core.LeadRecord, error) {
	features := schema.Features()
	fields := make([]core.Field, 0, len(features))
	var defaulted []string

	for _, name := range features {
		v, present := raw[name]
		if labels, ok := schema.categories[name]; ok {
			label, isString := conv.ToString(v)
			if present && isString {
				if _, registered := schema.codes[name][label]; registered {
					fields = append(fields, core.Field{Name: name, Value: core.Categorical(label)})
					continue
				}
			}
			fields = append(fields, core.Field{Name: name, Value: core.Categorical(labels[0])})
			defaulted = append(defaulted, name)
			continue
		}

		if f, ok := conv.ParseReal(v); present && ok {
			fields = append(fields, core.Field{Name: name, Value: core.Numeric(f)})
			continue
		}
		fields = append(fields, core.Field{Name: name, Value: core.Numeric(DefaultNumeric)})
		defaulted = append(defaulted, name)
	}

	return core.NewLeadRecord(fields, defaulted)
}
