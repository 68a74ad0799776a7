package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/rushteam/leadscore"
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/feature"
	"github.com/rushteam/leadscore/history"
)

const textBarWidth = 30

func reportOf(engine *leadscore.Engine, lctx *core.LeadContext) core.Report {
	if lctx.Report != nil {
		return *lctx.Report
	}
	return engine.Report(*lctx.Prediction, lctx.Record)
}

// predictOutput 是 --json 的输出结构
type predictOutput struct {
	RequestID   string                   `json:"request_id"`
	Label       string                   `json:"label"`
	Converted   bool                     `json:"converted"`
	Probability float64                  `json:"probability"`
	Confidence  string                   `json:"confidence"`
	Inputs      *core.LeadRecord         `json:"inputs"`
	Defaulted   []string                 `json:"defaulted"`
	Attribution *core.AttributionResult  `json:"attribution,omitempty"`
	TopFeatures []core.RankedAttribution `json:"top_features"`
	Insights    []core.Insight           `json:"insights"`
	ReportID    string                   `json:"report_id"`
	Model       string                   `json:"model"`
}

func newPredictOutput(engine *leadscore.Engine, lctx *core.LeadContext, rep core.Report) predictOutput {
	out := predictOutput{
		RequestID:   lctx.RequestID,
		Label:       lctx.Prediction.Label(),
		Converted:   lctx.Prediction.Converted,
		Probability: lctx.Prediction.Probability,
		Confidence:  lctx.Prediction.ConfidenceString(),
		Inputs:      lctx.Record,
		Defaulted:   lctx.Record.Defaulted(),
		Attribution: lctx.Attribution,
		TopFeatures: lctx.TopFeatures,
		Insights:    lctx.Insights,
		ReportID:    rep.ID,
		Model:       engine.Info().Model,
	}
	if out.Defaulted == nil {
		out.Defaulted = []string{}
	}
	if out.Insights == nil {
		out.Insights = []core.Insight{}
	}
	return out
}

// textBar 以 [#####-----] 形式绘制 0 到 1 的置信度
func textBar(p float64, width int) string {
	p = math.Max(0, math.Min(1, p))
	filled := int(math.Round(p * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func writePrediction(w io.Writer, lctx *core.LeadContext, useColors bool) error {
	var labelColor, warn func(...any) string
	if useColors {
		if lctx.Prediction.Converted {
			labelColor = color.New(color.FgGreen, color.Bold).SprintFunc()
		} else {
			labelColor = color.New(color.FgRed, color.Bold).SprintFunc()
		}
		warn = color.New(color.FgYellow).SprintFunc()
	} else {
		labelColor = fmt.Sprint
		warn = fmt.Sprint
	}

	p := lctx.Prediction
	if _, err := fmt.Fprintf(w, "Prediction: %s\n", labelColor(p.Label())); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Confidence: %s\n", p.ConfidenceString()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s %.2f\n", textBar(p.Probability, textBarWidth), p.Probability); err != nil {
		return err
	}
	for _, in := range lctx.Insights {
		if _, err := fmt.Fprintf(w, "%s %s\n", warn(strings.ToUpper(in.Level)+":"), in.Message); err != nil {
			return err
		}
	}
	if d := lctx.Record.Defaulted(); len(d) > 0 {
		if _, err := fmt.Fprintf(w, "Defaults used for: %s\n", strings.Join(d, ", ")); err != nil {
			return err
		}
	}
	if len(lctx.TopFeatures) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "\nTop %d influential features:\n", len(lctx.TopFeatures)); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Rank", "Feature", "Direction", "Magnitude"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})
	var data [][]string
	for _, f := range lctx.TopFeatures {
		data = append(data, []string{
			strconv.Itoa(f.Rank),
			f.Feature,
			string(f.Direction),
			fmt.Sprintf("%.3f", f.Magnitude),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// writeSchema 列出全部特征、类型、默认值与可选类别数
func writeSchema(w io.Writer, schema *feature.Schema, defaults *core.LeadRecord) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	table.Header([]string{"#", "Feature", "Kind", "Default", "Options"})

	var data [][]string
	for i, f := range defaults.Fields() {
		options := "-"
		if f.Value.Kind == core.KindCategorical {
			labels, err := schema.Categories(f.Name)
			if err != nil {
				return err
			}
			options = strconv.Itoa(len(labels))
		}
		data = append(data, []string{
			strconv.Itoa(i),
			f.Name,
			f.Value.Kind.String(),
			f.Value.String(),
			options,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No predictions recorded yet.")
		return err
	}
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Time", "Report", "Prediction", "Confidence"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for _, e := range entries {
		data = append(data, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.ReportID,
			e.Label,
			e.Confidence,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
