package server

import (
	"fmt"
	"html/template"

	"github.com/rushteam/leadscore/explain"
)

const (
	barWidth  = 400.0
	barHeight = 24.0

	colorConverted    = "#2e7d32"
	colorNotConverted = "#c62828"

	// 与 shap 瀑布图一致：正向红色，负向蓝色
	colorPositive = "#ff0051"
	colorNegative = "#008bfb"

	wfLabelWidth = 260.0
	wfPlotWidth  = 420.0
	wfValueWidth = 70.0
	wfRowHeight  = 28.0
	wfBarHeight  = 18.0
	wfTop        = 10.0
	wfAxisHeight = 40.0
)

var templateFuncs = template.FuncMap{
	"px":     func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"add":    func(a, b float64) float64 { return a + b },
	"sub":    func(a, b float64) float64 { return a - b },
	"fixed3": func(v float64) string { return fmt.Sprintf("%.3f", v) },
}

// barChart 是 0 到 1 的水平置信度条
type barChart struct {
	Width  float64
	Height float64
	Fill   float64
	Color  string
	Ticks  []tick
}

type tick struct {
	X     float64
	Label string
}

// confidenceBar 概率严格大于 0.5 时为绿色，否则为红色
func confidenceBar(p float64) barChart {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	color := colorNotConverted
	if p > 0.5 {
		color = colorConverted
	}
	b := barChart{Width: barWidth, Height: barHeight, Fill: p * barWidth, Color: color}
	for _, v := range []float64{0, 0.25, 0.5, 0.75, 1} {
		b.Ticks = append(b.Ticks, tick{X: v * barWidth, Label: fmt.Sprintf("%.2f", v)})
	}
	return b
}

// waterfallChart 是瀑布图的绘制数据，坐标单位为 px
type waterfallChart struct {
	Width     float64
	Height    float64
	PlotLeft  float64
	PlotRight float64
	AxisY     float64
	BaseX     float64
	OutX      float64
	Baseline  string
	Output    string
	Rows      []waterfallRow
}

type waterfallRow struct {
	Feature string
	Value   string
	Color   string
	Y       float64
	TextY   float64
	X       float64
	W       float64
	ValueX  float64
}

func waterfall(w explain.Waterfall) waterfallChart {
	lo, hi := w.Range()
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 0.05
	}
	lo, hi = lo-pad, hi+pad
	scale := func(v float64) float64 {
		return wfLabelWidth + (v-lo)/(hi-lo)*wfPlotWidth
	}

	c := waterfallChart{
		Width:     wfLabelWidth + wfPlotWidth + wfValueWidth,
		Height:    wfTop + float64(len(w.Steps))*wfRowHeight + wfAxisHeight,
		PlotLeft:  wfLabelWidth,
		PlotRight: wfLabelWidth + wfPlotWidth,
		AxisY:     wfTop + float64(len(w.Steps))*wfRowHeight,
		BaseX:     scale(w.Baseline),
		OutX:      scale(w.Output),
		Baseline:  fmt.Sprintf("E[f(X)] = %.3f", w.Baseline),
		Output:    fmt.Sprintf("f(x) = %.3f", w.Output),
	}
	for i, s := range w.Steps {
		x0, x1 := scale(s.Start), scale(s.End)
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		color := colorNegative
		if s.Value > 0 {
			color = colorPositive
		}
		y := wfTop + float64(i)*wfRowHeight + (wfRowHeight-wfBarHeight)/2
		c.Rows = append(c.Rows, waterfallRow{
			Feature: s.Feature,
			Value:   fmt.Sprintf("%+.3f", s.Value),
			Color:   color,
			Y:       y,
			TextY:   y + wfBarHeight*0.7,
			X:       x0,
			W:       x1 - x0,
			ValueX:  x1 + 4,
		})
	}
	return c
}
