package explain

import (
	"math"
	"sort"

	"github.com/rushteam/leadscore/core"
)

// DefaultTopN 是展示的最有影响力特征数
const DefaultTopN = 5

// TopN 按 |value| 降序稳定排序，取前 n 项（n <= 0 时使用 DefaultTopN）。
// 绝对值相同的特征保持 Schema 顺序。
func TopN(res core.AttributionResult, n int) []core.RankedAttribution {
	if n <= 0 {
		n = DefaultTopN
	}
	ordered := append([]core.Attribution(nil), res.Attributions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return math.Abs(ordered[i].Value) > math.Abs(ordered[j].Value)
	})
	if len(ordered) > n {
		ordered = ordered[:n]
	}

	out := make([]core.RankedAttribution, len(ordered))
	for i, a := range ordered {
		out[i] = core.RankedAttribution{
			Rank:      i + 1,
			Feature:   a.Feature,
			Value:     a.Value,
			Direction: DirectionOf(a.Value),
			Magnitude: Round3(math.Abs(a.Value)),
		}
	}
	return out
}

// DirectionOf 严格大于 0 为 Positive，其余（含 0）为 Negative
func DirectionOf(v float64) core.Direction {
	if v > 0 {
		return core.DirectionPositive
	}
	return core.DirectionNegative
}

// Round3 四舍五入到三位小数
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
