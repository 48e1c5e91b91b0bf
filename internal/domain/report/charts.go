package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
)

// Chart geometry, in SVG user units
const (
	chartWidth   = 640.0
	chartHeight  = 220.0
	chartPadding = 24.0
	barGap       = 4.0
)

// leadingCharts are drawn first, in this order
var leadingCharts = []metrics.Tag{metrics.TagNAV, metrics.TagProfitLoss, metrics.TagCashFlow}

// Chart is the bar chart of one tag's series
type Chart struct {
	Tag    metrics.Tag `json:"tag"`
	Title  string      `json:"title"`
	Values []float64   `json:"values"`
}

// Bar is one rectangle of a rendered chart
type Bar struct {
	X, Y, Width, Height float64
	Value               float64
	Negative            bool
}

// Charts returns one chart per non-empty series: nav, profit_loss and cash_flow first,
// then the remaining tags alphabetically.
func Charts(rec *repository.Analysis) []Chart {
	if rec == nil || len(rec.FinancialMetrics) == 0 {
		return nil
	}

	var rest []metrics.Tag
	for tag, values := range rec.FinancialMetrics {
		if len(values) == 0 || isLeading(tag) {
			continue
		}
		rest = append(rest, tag)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })

	charts := make([]Chart, 0, len(rec.FinancialMetrics))
	for _, tag := range append(append([]metrics.Tag{}, leadingCharts...), rest...) {
		values := rec.FinancialMetrics[tag]
		if len(values) == 0 {
			continue
		}
		charts = append(charts, Chart{
			Tag:    tag,
			Title:  fmt.Sprintf("%s Over Time", metrics.HumanizeTag(tag)),
			Values: values,
		})
	}
	return charts
}

func isLeading(tag metrics.Tag) bool {
	for _, t := range leadingCharts {
		if t == tag {
			return true
		}
	}
	return false
}

// Bars lays the values out left to right with a shared zero baseline.
func (c Chart) Bars() []Bar {
	if len(c.Values) == 0 {
		return nil
	}

	_, span := c.bounds()
	plotH := chartHeight - 2*chartPadding
	plotW := chartWidth - 2*chartPadding
	width := plotW/float64(len(c.Values)) - barGap
	if width < 1 {
		width = 1
	}
	zeroY := c.Baseline()

	bars := make([]Bar, len(c.Values))
	for i, v := range c.Values {
		h := plotH * math.Abs(v) / span
		y := zeroY - h
		if v < 0 {
			y = zeroY
		}
		bars[i] = Bar{
			X:        chartPadding + float64(i)*(width+barGap),
			Y:        y,
			Width:    width,
			Height:   h,
			Value:    v,
			Negative: v < 0,
		}
	}
	return bars
}

// Baseline is the y coordinate of zero.
func (c Chart) Baseline() float64 {
	hi, span := c.bounds()
	return chartPadding + (chartHeight-2*chartPadding)*(hi/span)
}

// bounds returns the top of the value range and its non-zero span; zero is always inside the range.
func (c Chart) bounds() (hi, span float64) {
	lo := 0.0
	for _, v := range c.Values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span = hi - lo
	if span == 0 {
		span = 1
	}
	return hi, span
}

// Width and Height expose the canvas size to templates.
func (c Chart) Width() float64  { return chartWidth }
func (c Chart) Height() float64 { return chartHeight }
