package utils

// Label 记录预测链路中某一阶段留下的可追踪信息。
// Value 为具体内容（如模型名、解释方法、被回退的特征），Source 为产生它的阶段。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // normalize / encode / predict / explain / insight / report
}

// MergeLabel 合并同名 Label，保留历史：
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	case existing.Source == incoming.Source:
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
