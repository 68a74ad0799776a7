package report

import (
	"bytes"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/rushteam/leadscore/core"
)

const (
	cellWidth  = 200
	cellHeight = 10
)

// RenderPDF 按固定版式把报告写入 w：
// 居中标题、空行、Prediction 与 Confidence、空行、"Input Features:" 及逐行输入。
func RenderPDF(w io.Writer, rep core.Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(rep.Title, false)
	if rep.ID != "" {
		pdf.SetSubject(rep.ID, false)
	}
	if !rep.CreatedAt.IsZero() {
		pdf.SetCreationDate(rep.CreatedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	line := func(text, align string) {
		pdf.CellFormat(cellWidth, cellHeight, tr(text), "", 1, align, false, 0, "")
	}

	line(rep.Title, "C")
	pdf.Ln(cellHeight)
	line("Prediction: "+rep.Prediction, "")
	line("Confidence: "+rep.Confidence, "")
	pdf.Ln(cellHeight)
	line("Input Features:", "")
	for _, l := range Lines(rep) {
		line(l, "")
	}

	if err := pdf.Error(); err != nil {
		return core.WrapDomainError(core.ModuleReport, core.ErrorCodeInternalError, err, "report: render pdf")
	}
	if err := pdf.Output(w); err != nil {
		return core.WrapDomainError(core.ModuleReport, core.ErrorCodeInternalError, err, "report: write pdf")
	}
	return nil
}

// PDFBytes 渲染为内存中的字节，不落盘
func PDFBytes(rep core.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPDF(&buf, rep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
