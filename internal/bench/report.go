package bench

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table renders r as a text table.
func Table(r Report) string {
	t := table.NewWriter()
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Backend", "Count", "Avg (ms)", "Min (ms)", "Max (ms)", "P50 (ms)", "P95 (ms)"})
	for _, row := range []struct {
		name string
		s    Stats
	}{
		{"compiled", r.Compiled},
		{"interpreted", r.Interpreted},
	} {
		t.AppendRow(table.Row{
			row.name,
			row.s.Count,
			fmt.Sprintf("%.4f", row.s.Avg),
			fmt.Sprintf("%.4f", row.s.Min),
			fmt.Sprintf("%.4f", row.s.Max),
			fmt.Sprintf("%.4f", row.s.P50),
			fmt.Sprintf("%.4f", row.s.P95),
		})
	}
	speedup := "n/a"
	if r.Speedup > 0 {
		speedup = fmt.Sprintf("%.2fx", r.Speedup)
	}
	t.AppendFooter(table.Row{"speedup", speedup})
	return t.Render()
}

// WriteChart renders the per-iteration latency of both backends as an
// HTML line chart.
func WriteChart(w io.Writer, r Report) error {
	n := len(r.InterpretedSamples)
	if len(r.CompiledSamples) > n {
		n = len(r.CompiledSamples)
	}
	xs := make([]string, n)
	for i := range xs {
		xs[i] = strconv.Itoa(i + 1)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Backend latency", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-call latency", Subtitle: fmt.Sprintf("iterations=%d speedup=%.2f", r.Iterations, r.Speedup)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.SetXAxis(xs).
		AddSeries("compiled", lineData(r.CompiledSamples)).
		AddSeries("interpreted", lineData(r.InterpretedSamples))
	return line.Render(w)
}

// TrendPoint is one benchmark run in a history chart.
type TrendPoint struct {
	Label       string
	Compiled    float64
	Interpreted float64
}

// WriteTrendChart renders average latencies across runs as an HTML line chart.
func WriteTrendChart(w io.Writer, points []TrendPoint) error {
	xs := make([]string, len(points))
	compiled := make([]float64, len(points))
	interpreted := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Label
		compiled[i] = p.Compiled
		interpreted[i] = p.Interpreted
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Benchmark history", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Average latency per run", Subtitle: fmt.Sprintf("runs=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.SetXAxis(xs).
		AddSeries("compiled", lineData(compiled)).
		AddSeries("interpreted", lineData(interpreted))
	return line.Render(w)
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	return data
}
