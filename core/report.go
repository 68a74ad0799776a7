package core

import "time"

// ReportTitle 是导出文档的固定标题。
const ReportTitle = "Lead Conversion Prediction Report"

// Report 是一次预测的摘要，可渲染为分页文档（见 report.RenderPDF）。
type Report struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Title      string    `json:"title"`
	Prediction string    `json:"prediction"`
	Confidence string    `json:"confidence"`
	Inputs     []Field   `json:"inputs"`
}
