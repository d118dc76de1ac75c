package export

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
)

// WriteYieldChart renders yield percentage per group as a PNG bar chart.
func WriteYieldChart(w io.Writer, param string, ys []analysis.YieldResult) error {
	if len(ys) == 0 {
		return fmt.Errorf("yield chart %s: no groups", param)
	}
	bars := make([]chart.Value, 0, len(ys))
	for _, y := range ys {
		bars = append(bars, chart.Value{Label: y.Key, Value: y.YieldPct})
	}
	width := 200 + len(ys)*60
	if width < 480 {
		width = 480
	}
	bc := chart.BarChart{
		Title:      param + " yield %",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		Width:      width,
		Height:     400,
		BarWidth:   40,
		BarSpacing: 20,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Bars: bars,
	}
	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render yield chart %s: %w", param, err)
	}
	return nil
}
