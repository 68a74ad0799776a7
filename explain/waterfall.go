package explain

import (
	"fmt"
	"math"
	"sort"

	"github.com/rushteam/leadscore/core"
)

// DefaultMaxDisplay 是瀑布图最多展示的行数
const DefaultMaxDisplay = 10

// WaterfallStep 是瀑布图的一行：从 Start 累加 Value 到 End。
type WaterfallStep struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	// Grouped 为合并进本行的特征数，0 表示单个特征
	Grouped int `json:"grouped,omitempty"`
}

// Waterfall 自下而上从 Baseline 累加到 Output，Steps 按展示顺序（影响最大者在前）排列。
type Waterfall struct {
	Baseline float64         `json:"baseline"`
	Output   float64         `json:"output"`
	Steps    []WaterfallStep `json:"steps"`
}

// BuildWaterfall 生成瀑布图数据。特征数超过 maxDisplay 时，
// 展示前 maxDisplay-1 个，其余合并为 "N other features" 一行（置于最下方）。
func BuildWaterfall(res core.AttributionResult, maxDisplay int) Waterfall {
	if maxDisplay <= 0 {
		maxDisplay = DefaultMaxDisplay
	}
	ordered := append([]core.Attribution(nil), res.Attributions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return math.Abs(ordered[i].Value) > math.Abs(ordered[j].Value)
	})

	var steps []WaterfallStep
	if len(ordered) > maxDisplay {
		keep := maxDisplay - 1
		for _, a := range ordered[:keep] {
			steps = append(steps, WaterfallStep{Feature: a.Feature, Value: a.Value})
		}
		rest := ordered[keep:]
		var sum float64
		for _, a := range rest {
			sum += a.Value
		}
		steps = append(steps, WaterfallStep{
			Feature: fmt.Sprintf("%d other features", len(rest)),
			Value:   sum,
			Grouped: len(rest),
		})
	} else {
		for _, a := range ordered {
			steps = append(steps, WaterfallStep{Feature: a.Feature, Value: a.Value})
		}
	}

	cur := res.Baseline
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i].Start = cur
		steps[i].End = cur + steps[i].Value
		cur = steps[i].End
	}
	return Waterfall{Baseline: res.Baseline, Output: res.Output, Steps: steps}
}

// Range 返回瀑布图覆盖的最小值与最大值（含 Baseline 与 Output），用于绘图缩放。
func (w Waterfall) Range() (lo, hi float64) {
	lo, hi = math.Min(w.Baseline, w.Output), math.Max(w.Baseline, w.Output)
	for _, s := range w.Steps {
		lo = math.Min(lo, math.Min(s.Start, s.End))
		hi = math.Max(hi, math.Max(s.Start, s.End))
	}
	return lo, hi
}
