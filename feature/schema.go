package feature

import (
	"fmt"

	"github.com/rushteam/leadscore/core"
)

// Schema 是特征注册表：有序的特征列表，以及每个分类特征固定顺序的类别标签与整数编码。
//
// 加载后不可修改，可被并发请求安全共享。
//   - 特征顺序即模型输入列顺序，永不重排
//   - 分类特征的第 i 个标签编码为 i（与 sklearn LabelEncoder.classes_ 一致）
//   - 标签区分大小写，只做精确匹配
type Schema struct {
	features   []string
	index      map[string]int
	categories map[string][]string
	codes      map[string]map[string]int
}

// NewSchema 由有序特征列表与类别表构建 Schema。
// 特征重复、类别表引用了未知特征、类别为空或重复都会返回 INVALID_ARTIFACT。
func NewSchema(features []string, categories map[string][]string) (*Schema, error) {
	if len(features) == 0 {
		return nil, core.ErrInvalidArtifact(nil, "feature list is empty")
	}
	s := &Schema{
		features:   append([]string(nil), features...),
		index:      make(map[string]int, len(features)),
		categories: make(map[string][]string, len(categories)),
		codes:      make(map[string]map[string]int, len(categories)),
	}
	for i, name := range features {
		if name == "" {
			return nil, core.ErrInvalidArtifact(nil, "feature %d has an empty name", i)
		}
		if _, dup := s.index[name]; dup {
			return nil, core.ErrInvalidArtifact(nil, "duplicate feature %q", name)
		}
		s.index[name] = i
	}
	for name, labels := range categories {
		if _, ok := s.index[name]; !ok {
			return nil, core.ErrInvalidArtifact(nil, "category table references unknown feature %q", name)
		}
		if len(labels) == 0 {
			return nil, core.ErrInvalidArtifact(nil, "feature %q has no categories", name)
		}
		codes := make(map[string]int, len(labels))
		for code, label := range labels {
			if _, dup := codes[label]; dup {
				return nil, core.ErrInvalidArtifact(nil, "feature %q has duplicate category %q", name, label)
			}
			codes[label] = code
		}
		s.categories[name] = append([]string(nil), labels...)
		s.codes[name] = codes
	}
	return s, nil
}

// Features 返回有序特征列表（副本）。
func (s *Schema) Features() []string {
	return append([]string(nil), s.features...)
}

// Len 返回特征数量。
func (s *Schema) Len() int { return len(s.features) }

// Index 返回特征在模型输入中的列位置。
func (s *Schema) Index(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return 0, core.ErrUnknownFeature(name)
	}
	return i, nil
}

// IsCategorical 判断特征是否为分类特征。
func (s *Schema) IsCategorical(name string) (bool, error) {
	if _, ok := s.index[name]; !ok {
		return false, core.ErrUnknownFeature(name)
	}
	_, ok := s.categories[name]
	return ok, nil
}

// Categories 返回分类特征的有序类别标签（副本）。
func (s *Schema) Categories(name string) ([]string, error) {
	labels, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), labels...), nil
}

// Code 返回类别标签的整数编码。
func (s *Schema) Code(name, label string) (int, error) {
	if _, err := s.lookup(name); err != nil {
		return 0, err
	}
	code, ok := s.codes[name][label]
	if !ok {
		return 0, core.ErrUnknownCategory(name, label)
	}
	return code, nil
}

// Label 是 Code 的逆映射。
func (s *Schema) Label(name string, code int) (string, error) {
	labels, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	if code < 0 || code >= len(labels) {
		return "", core.ErrUnknownCategory(name, fmt.Sprintf("#%d", code))
	}
	return labels[code], nil
}

// CategoryTable 返回完整类别表（副本），用于序列化与前端渲染。
func (s *Schema) CategoryTable() CategoryTable {
	out := make(CategoryTable, len(s.categories))
	for name, labels := range s.categories {
		out[name] = append([]string(nil), labels...)
	}
	return out
}

func (s *Schema) lookup(name string) ([]string, error) {
	if _, ok := s.index[name]; !ok {
		return nil, core.ErrUnknownFeature(name)
	}
	labels, ok := s.categories[name]
	if !ok {
		return nil, core.NewDomainError(core.ModuleSchema, core.ErrorCodeInvalidInput,
			fmt.Sprintf("schema: feature %q is numeric", name))
	}
	return labels, nil
}
