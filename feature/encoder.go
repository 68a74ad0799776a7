package feature

import (
	"github.com/rushteam/leadscore/core"
)

// Encoder 将 LeadRecord 按 Schema 顺序编码为模型输入向量（Label 编码）。
//   - 分类特征：标签 -> Schema.Code
//   - 数值特征：原值透传
//
// 归一化之后仍出现未注册标签、特征顺序或类型与 Schema 不一致，都属于不变量被破坏，
// 返回 ENCODING_ERROR，绝不静默忽略。
type Encoder struct {
	schema *Schema
}

// NewEncoder 创建编码器
func NewEncoder(schema *Schema) *Encoder {
	return &Encoder{schema: schema}
}

// Encode 编码单条线索
func (e *Encoder) Encode(rec *core.LeadRecord) (core.EncodedVector, error) {
	if rec == nil {
		return core.EncodedVector{}, core.ErrEncoding("nil lead record")
	}
	fields := rec.Fields()
	if len(fields) != e.schema.Len() {
		return core.EncodedVector{}, core.ErrEncoding("record has %d features, schema has %d", len(fields), e.schema.Len())
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		if want := e.schema.features[i]; f.Name != want {
			return core.EncodedVector{}, core.ErrEncoding("feature %d is %q, schema expects %q", i, f.Name, want)
		}
		_, categorical := e.schema.categories[f.Name]
		switch {
		case categorical && f.Value.Kind == core.KindCategorical:
			code, ok := e.schema.codes[f.Name][f.Value.Text]
			if !ok {
				return core.EncodedVector{}, core.ErrEncoding("unregistered category %q for feature %q", f.Value.Text, f.Name)
			}
			values[i] = float64(code)
		case !categorical && f.Value.Kind == core.KindNumeric:
			values[i] = f.Value.Number
		default:
			return core.EncodedVector{}, core.ErrEncoding("feature %q holds a %s value", f.Name, f.Value.Kind)
		}
	}
	return core.NewEncodedVector(values), nil
}

// Decode 将编码向量还原为可读值（分类特征还原为标签），用于展示背景集或调试。
func (e *Encoder) Decode(vec core.EncodedVector) ([]core.Field, error) {
	if vec.Len() != e.schema.Len() {
		return nil, core.ErrEncoding("vector has %d values, schema has %d", vec.Len(), e.schema.Len())
	}
	fields := make([]core.Field, vec.Len())
	for i, name := range e.schema.features {
		v := vec.At(i)
		if _, ok := e.schema.categories[name]; ok {
			label, err := e.schema.Label(name, int(v))
			if err != nil || float64(int(v)) != v {
				return nil, core.ErrEncoding("value %v is not a category code of %q", v, name)
			}
			fields[i] = core.Field{Name: name, Value: core.Categorical(label)}
			continue
		}
		fields[i] = core.Field{Name: name, Value: core.Numeric(v)}
	}
	return fields, nil
}
