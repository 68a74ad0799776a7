package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind 区分分类特征与数值特征。
type ValueKind int

const (
	KindNumeric ValueKind = iota
	KindCategorical
)

func (k ValueKind) String() string {
	if k == KindCategorical {
		return "categorical"
	}
	return "numeric"
}

// Value 是 LeadRecord 中单个特征的取值：分类特征为文本标签，数值特征为 float64。
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
}

// Categorical 构造分类取值。
func Categorical(label string) Value { return Value{Kind: KindCategorical, Text: label} }

// Numeric 构造数值取值。
func Numeric(v float64) Value { return Value{Kind: KindNumeric, Number: v} }

// String 返回用于展示与报告的原始值文本。
func (v Value) String() string {
	if v.Kind == KindCategorical {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// Any 返回 string 或 float64，用于 CEL 规则、会话缓存与 JSON 输出。
func (v Value) Any() any {
	if v.Kind == KindCategorical {
		return v.Text
	}
	return v.Number
}

// Field 是 (特征名, 原始值) 对。
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"-"`
}

func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string `json:"name"`
		Kind  string `json:"kind"`
		Value any    `json:"value"`
	}{f.Name, f.Value.Kind.String(), f.Value.Any()})
}

// LeadRecord 是归一化之后的完整线索：Schema 中每个特征恰好一项，顺序与 Schema 一致。
// 构造后不可修改，每次请求重新构造。
type LeadRecord struct {
	fields    []Field
	index     map[string]int
	defaulted []string
}

// NewLeadRecord 基于有序字段构造 LeadRecord。defaulted 记录归一化时回退到默认值的特征名。
func NewLeadRecord(fields []Field, defaulted []string) (*LeadRecord, error) {
	r := &LeadRecord{
		fields:    make([]Field, len(fields)),
		index:     make(map[string]int, len(fields)),
		defaulted: append([]string(nil), defaulted...),
	}
	for i, f := range fields {
		if _, dup := r.index[f.Name]; dup {
			return nil, fmt.Errorf("lead record: duplicate feature %q", f.Name)
		}
		r.fields[i] = f
		r.index[f.Name] = i
	}
	return r, nil
}

// Len 返回字段数量。
func (r *LeadRecord) Len() int { return len(r.fields) }

// Fields 返回字段副本（按 Schema 顺序）。
func (r *LeadRecord) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

// Names 返回字段名（按 Schema 顺序）。
func (r *LeadRecord) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Get 按特征名读取取值。
func (r *LeadRecord) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Value{}, false
	}
	return r.fields[i].Value, true
}

// Defaulted 返回归一化时被回退的特征名（仅用于提示，不代表错误）。
func (r *LeadRecord) Defaulted() []string {
	return append([]string(nil), r.defaulted...)
}

// Values 以 map 形式返回原始值（string 或 float64）。
func (r *LeadRecord) Values() map[string]any {
	out := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		out[f.Name] = f.Value.Any()
	}
	return out
}

func (r *LeadRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// EncodedVector 是模型输入：与 Schema 同序同长的 float64 序列。
// 分类特征位置为整数编码，数值特征位置为原始值。构造后不可修改。
type EncodedVector struct {
	values []float64
}

// NewEncodedVector 复制 values 构造 EncodedVector。
func NewEncodedVector(values []float64) EncodedVector {
	return EncodedVector{values: append([]float64(nil), values...)}
}

func (v EncodedVector) Len() int { return len(v.values) }

func (v EncodedVector) At(i int) float64 { return v.values[i] }

// Values 返回副本。
func (v EncodedVector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// Equal 按位比较两个向量。
func (v EncodedVector) Equal(o EncodedVector) bool {
	if len(v.values) != len(o.values) {
		return false
	}
	for i := range v.values {
		if math.Float64bits(v.values[i]) != math.Float64bits(o.values[i]) {
			return false
		}
	}
	return true
}

func (v EncodedVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.values)
}

const (
	LabelConverted    = "Converted"
	LabelNotConverted = "Not Converted"
)

// PredictionResult 是预测结果。Probability 为正类（已转化）概率，取值 [0,1]。
type PredictionResult struct {
	Converted   bool    `json:"converted"`
	Probability float64 `json:"probability"`
}

// Label 返回 "Converted" 或 "Not Converted"。
func (p PredictionResult) Label() string {
	if p.Converted {
		return LabelConverted
	}
	return LabelNotConverted
}

// ConfidenceString 返回两位小数的百分比，例如 0.42 -> "42.00%"。
func (p PredictionResult) ConfidenceString() string {
	return fmt.Sprintf("%.2f%%", p.Probability*100)
}

// Attribution 是单个特征对目标类别输出的有符号贡献。
type Attribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// AttributionResult 是解释结果：每个特征一项（Schema 顺序），外加基线值。
// 贡献值只相对于所用背景集有意义：更换背景集会改变所有贡献值，但不改变预测。
type AttributionResult struct {
	Attributions []Attribution `json:"attributions"`
	Baseline     float64       `json:"baseline"`
	Output       float64       `json:"output"`
	TargetClass  int           `json:"target_class"`
	Method       string        `json:"method"`
}

// Sum 返回全部贡献值之和。
func (a AttributionResult) Sum() float64 {
	var s float64
	for _, at := range a.Attributions {
		s += at.Value
	}
	return s
}

// Direction 表示贡献方向。
type Direction string

const (
	DirectionPositive Direction = "Positive"
	DirectionNegative Direction = "Negative"
)

// RankedAttribution 是 Top-N 展示项。Magnitude 为 |Value| 保留三位小数。
type RankedAttribution struct {
	Rank      int       `json:"rank"`
	Feature   string    `json:"feature"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
	Magnitude float64   `json:"magnitude"`
}

// Insight 是规则命中后给用户的提示（例如低参与度警告）。
type Insight struct {
	Name    string `json:"name"`
	Level   string `json:"level"`
	Message string `json:"message"`
}
