package backtest

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderReport writes an HTML page with one equity curve per result and a
// bar chart of return against max drawdown.
func RenderReport(w io.Writer, results ...Results) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to render")
	}
	page := components.NewPage()
	page.PageTitle = "danoo backtest"
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(equityChart(results), summaryChart(results))
	return page.Render(w)
}

func seriesName(r Results) string {
	if r.RegimeFilter != "" && r.RegimeFilter != AllRegimes {
		return fmt.Sprintf("%s [%s]", r.Strategy, r.RegimeFilter)
	}
	return r.Strategy
}

func equityChart(results []Results) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Subtitle: "balance after each closed trade"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	longest := 0
	curves := make([][]EquityPoint, len(results))
	for i, r := range results {
		curves[i] = r.EquityCurve()
		if len(curves[i]) > longest {
			longest = len(curves[i])
		}
	}
	xAxis := make([]string, longest)
	for i := range xAxis {
		xAxis[i] = strconv.Itoa(i)
	}
	line.SetXAxis(xAxis)
	for i, r := range results {
		data := make([]opts.LineData, len(curves[i]))
		for j, pt := range curves[i] {
			data[j] = opts.LineData{Value: pt.Balance}
		}
		line.AddSeries(seriesName(r), data)
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func summaryChart(results []Results) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Return vs drawdown (%)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	names := make([]string, len(results))
	ret := make([]opts.BarData, len(results))
	dd := make([]opts.BarData, len(results))
	for i, r := range results {
		names[i] = seriesName(r)
		ret[i] = opts.BarData{Value: r.Metrics.ReturnPct}
		dd[i] = opts.BarData{Value: r.Metrics.MaxDrawdown}
	}
	bar.SetXAxis(names).
		AddSeries("return", ret).
		AddSeries("max drawdown", dd)
	return bar
}
