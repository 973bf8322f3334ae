// Package chart draws the per-flow results of a run as bar charts, one
// chart per metric.  Bars of flows that violate the metric's threshold are
// drawn in the violation color, and each threshold is drawn as a dashed
// line across its flow's bar.
package chart

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/iti/qsim"
)

// ViolationColor fills the bars of flows that miss their threshold
const ViolationColor = "#D83B01"

// Metric selects one figure of a flow result for charting
type Metric struct {
	Name  string // file name stem
	Title string
	Unit  string

	Value func(fr *qsim.FlowResult) float64

	// Threshold is nil for metrics without one
	Threshold func(fr *qsim.FlowResult) float64
	OK        func(fr *qsim.FlowResult) bool
}

// Metrics are the charts WriteCharts produces
var Metrics = []Metric{
	{Name: "throughput", Title: "Throughput", Unit: "Mbps",
		Value: func(fr *qsim.FlowResult) float64 { return fr.ThroughputMbps }},
	{Name: "delay", Title: "Average Delay", Unit: "ms",
		Value:     func(fr *qsim.FlowResult) float64 { return fr.AvgDelayMs },
		Threshold: func(fr *qsim.FlowResult) float64 { return fr.Thresholds.DelayMs },
		OK:        (*qsim.FlowResult).DelayOK},
	{Name: "jitter", Title: "Jitter", Unit: "ms",
		Value:     func(fr *qsim.FlowResult) float64 { return fr.JitterMs },
		Threshold: func(fr *qsim.FlowResult) float64 { return fr.Thresholds.JitterMs },
		OK:        (*qsim.FlowResult).JitterOK},
	{Name: "loss", Title: "Packet Loss", Unit: "%",
		Value:     func(fr *qsim.FlowResult) float64 { return fr.LossPct },
		Threshold: func(fr *qsim.FlowResult) float64 { return fr.Thresholds.LossPct },
		OK:        (*qsim.FlowResult).LossOK},
}

const barWidth = 0.6

// ParseHexColor converts a "#RRGGBB" string into an opaque color
func ParseHexColor(hex string) (color.RGBA, error) {
	var c color.RGBA
	c.A = 0xff
	if len(hex) != 7 || hex[0] != '#' {
		return c, fmt.Errorf("color %q is not of the form #RRGGBB", hex)
	}
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("color %q: %w", hex, err)
	}
	return c, nil
}

// BarColor is the fill of a flow's bar: its color hint, or the
// violation color when it misses the metric's threshold
func BarColor(m *Metric, fr *qsim.FlowResult) (color.RGBA, error) {
	if m.OK != nil && !m.OK(fr) {
		return ParseHexColor(ViolationColor)
	}
	return ParseHexColor(fr.ColorHint)
}

// Build draws the chart of one metric over the flows, in flow order
func Build(m *Metric, flows []qsim.FlowResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = m.Title
	p.Y.Label.Text = m.Unit
	p.Y.Min = 0

	barW := vg.Points(20)
	names := make([]string, len(flows))
	for idx := range flows {
		fr := &flows[idx]
		names[idx] = fr.Name

		bar, err := plotter.NewBarChart(plotter.Values{m.Value(fr)}, barW)
		if err != nil {
			return nil, fmt.Errorf("%s bar of flow %d: %w", m.Name, fr.ID, err)
		}
		bar.XMin = float64(idx)
		if bar.Color, err = BarColor(m, fr); err != nil {
			return nil, err
		}
		bar.LineStyle.Width = vg.Length(0)
		p.Add(bar)

		if m.Threshold == nil {
			continue
		}
		thr := m.Threshold(fr)
		line, err := plotter.NewLine(plotter.XYs{
			{X: float64(idx) - barWidth/2, Y: thr},
			{X: float64(idx) + barWidth/2, Y: thr},
		})
		if err != nil {
			return nil, fmt.Errorf("%s threshold of flow %d: %w", m.Name, fr.ID, err)
		}
		line.LineStyle.Color = color.Black
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
	}
	p.NominalX(names...)
	return p, nil
}

// WriteCharts saves one PNG chart per metric into dir and returns the file names
func WriteCharts(dir string, flows []qsim.FlowResult) ([]string, error) {
	files := make([]string, 0, len(Metrics))
	for idx := range Metrics {
		m := &Metrics[idx]
		p, err := Build(m, flows)
		if err != nil {
			return files, err
		}
		filename := filepath.Join(dir, m.Name+".png")
		if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
			return files, fmt.Errorf("save %s: %w", filename, err)
		}
		files = append(files, filename)
	}
	return files, nil
}
