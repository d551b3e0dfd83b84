package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML line chart of the trace with its target line.
func RenderChart(w io.Writer, t Trace) error {
	line := charts.NewLine()
	title := t.Liquid
	if t.SessionID != "" {
		title = fmt.Sprintf("%s (%s)", t.Liquid, t.SessionID)
	}
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Elapsed (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Weight (g)"}),
	)

	var xAxis []string
	weights := make([]opts.LineData, 0, len(t.Samples))
	target := make([]opts.LineData, 0, len(t.Samples))
	for _, p := range t.Samples {
		elapsed := p.Timestamp.Sub(t.Samples[0].Timestamp).Seconds()
		xAxis = append(xAxis, strconv.FormatFloat(elapsed, 'f', 2, 64))
		weights = append(weights, opts.LineData{Value: p.Weight})
		target = append(target, opts.LineData{Value: t.Target})
	}
	line.SetXAxis(xAxis).
		AddSeries("Weight", weights).
		AddSeries("Target", target)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
