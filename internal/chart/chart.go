package chart

import (
	"bytes"
	"errors"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"perpwatch/internal/window"
)

// RenderWindowPNG plots the triggering price window as a PNG suitable for a
// rich alert attachment. Needs at least two samples.
func RenderWindowPNG(symbol string, samples []window.Sample) ([]byte, error) {
	if len(samples) < 2 {
		return nil, errors.New("need at least two samples to render")
	}

	x := make([]time.Time, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.At
		y[i] = s.Value
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.6g")
	}
	graph := chart.Chart{
		Title:  symbol,
		Width:  900,
		Height: 500,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeMinuteValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    symbol,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
