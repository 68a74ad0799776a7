// Package report 汇总单次预测为 Report，并渲染为 PDF。
package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rushteam/leadscore/core"
)

// FileName 是下载时建议的文件名
const FileName = "lead_report.pdf"

// Build 由预测结果与参与预测的记录组装报告，纯函数，不设置 ID 与时间。
// Inputs 为原始取值（非编码值），顺序与记录一致。
func Build(pred core.PredictionResult, rec *core.LeadRecord) core.Report {
	rep := core.Report{
		Title:      core.ReportTitle,
		Prediction: pred.Label(),
		Confidence: pred.ConfidenceString(),
	}
	if rec != nil {
		rep.Inputs = rec.Fields()
	}
	return rep
}

// Stamp 为报告分配 ID 与创建时间
func Stamp(rep core.Report, now time.Time) core.Report {
	rep.ID = uuid.NewString()
	rep.CreatedAt = now.UTC()
	return rep
}

// FormatValue 格式化输入取值：分类特征原样输出，数值特征至少保留一位小数（90 -> "90.0"）。
func FormatValue(v core.Value) string {
	if v.Kind == core.KindCategorical {
		return v.Text
	}
	s := strconv.FormatFloat(v.Number, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Lines 返回报告正文中 "name: value" 形式的输入行
func Lines(rep core.Report) []string {
	out := make([]string, len(rep.Inputs))
	for i, f := range rep.Inputs {
		out[i] = f.Name + ": " + FormatValue(f.Value)
	}
	return out
}
