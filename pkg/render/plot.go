package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
)

const (
	chartWidth   = "100%"
	chartHeight  = "640px"
	areaOpacity  = 0.6
	stackName    = "total"
	fullZoomPct  = 100
	pageTitle    = "bugflow"
	chartTitle   = "Defect workflow stages"
	chartXAxis   = "Date"
	chartYAxis   = "Records"
	emptySubline = "No data"
)

// chartOpts provides themed chart options.
type chartOpts struct {
	theme ThemeConfig
}

func (c chartOpts) init() opts.Initialization {
	return opts.Initialization{
		PageTitle:       pageTitle,
		Width:           chartWidth,
		Height:          chartHeight,
		BackgroundColor: c.theme.Background,
	}
}

func (c chartOpts) title(subtitle string) opts.Title {
	return opts.Title{
		Title:         chartTitle,
		Subtitle:      subtitle,
		Left:          "center",
		TitleStyle:    &opts.TextStyle{Color: c.theme.ChartText},
		SubtitleStyle: &opts.TextStyle{Color: c.theme.ChartTextMuted},
	}
}

func (c chartOpts) legend() opts.Legend {
	return opts.Legend{
		Show:      opts.Bool(true),
		Type:      "scroll",
		Top:       "10%",
		Left:      "center",
		TextStyle: &opts.TextStyle{Color: c.theme.ChartTextMuted},
	}
}

func (c chartOpts) xAxis() opts.XAxis {
	return opts.XAxis{
		Name:      chartXAxis,
		AxisLabel: &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
	}
}

func (c chartOpts) yAxis() opts.YAxis {
	return opts.YAxis{
		Name:      chartYAxis,
		AxisLabel: &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
		SplitLine: &opts.SplitLine{
			Show:      opts.Bool(true),
			LineStyle: &opts.LineStyle{Color: c.theme.ChartGrid},
		},
	}
}

// Chart builds the stacked area chart of a series, highest stage on top of
// the legend. The run id is shown as the subtitle.
func Chart(s series.Series, runID string, theme Theme) *charts.Line {
	co := chartOpts{theme: GetThemeConfig(theme)}

	subtitle := runID
	if s.Len() == 0 {
		subtitle = emptySubline
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(co.init()),
		charts.WithTitleOpts(co.title(subtitle)),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(co.legend()),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: fullZoomPct},
			opts.DataZoom{Type: "inside"},
		),
		charts.WithXAxisOpts(co.xAxis()),
		charts.WithYAxisOpts(co.yAxis()),
		charts.WithGridOpts(opts.Grid{Top: "20%", Bottom: "15%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}),
	)
	line.SetXAxis(s.Dates)

	if s.Len() == 0 {
		return line
	}

	for _, stage := range PlottedStages() {
		counts := s.Counts[stage]

		data := make([]opts.LineData, len(counts))
		for i, n := range counts {
			data[i] = opts.LineData{Value: n}
		}

		color := co.theme.Stages[stage]

		line.AddSeries(stage.Label(), data,
			charts.WithLineChartOpts(opts.LineChart{Stack: stackName}),
			charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(areaOpacity), Color: color}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
		)
	}

	return line
}

// WritePlot renders res as a standalone HTML page.
func WritePlot(w io.Writer, res *series.Result, theme Theme) error {
	page := components.NewPage()
	page.AddCharts(Chart(res.Series, res.RunID, theme))

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}
