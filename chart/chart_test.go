package chart_test

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/qsim"
	"github.com/iti/qsim/chart"
)

func sampleFlows() []qsim.FlowResult {
	return []qsim.FlowResult{
		{ID: 0, Name: "VoIP", ColorHint: qsim.ColorHint(0), AvgDelayMs: 2, JitterMs: 0.5, ThroughputMbps: 0.064,
			Thresholds: qsim.Thresholds{DelayMs: 150, JitterMs: 30, LossPct: 1}, Passed: true},
		{ID: 1, Name: "Bulk", ColorHint: qsim.ColorHint(1), AvgDelayMs: 400, JitterMs: 12, LossPct: 25,
			ThroughputMbps: 0.9, Thresholds: qsim.Thresholds{DelayMs: 200, JitterMs: 50, LossPct: 5}},
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := chart.ParseHexColor("#D83B01")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xd8, G: 0x3b, B: 0x01, A: 0xff}, c)

	for _, bad := range []string{"D83B01", "#D83B0", "#GGGGGG"} {
		_, err := chart.ParseHexColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestBarColorMarksViolations(t *testing.T) {
	flows := sampleFlows()
	violation, err := chart.ParseHexColor(chart.ViolationColor)
	require.NoError(t, err)
	hint, err := chart.ParseHexColor(qsim.ColorHint(1))
	require.NoError(t, err)

	byName := make(map[string]*chart.Metric)
	for idx := range chart.Metrics {
		byName[chart.Metrics[idx].Name] = &chart.Metrics[idx]
	}

	// throughput has no threshold, so the flow keeps its own color
	c, err := chart.BarColor(byName["throughput"], &flows[1])
	require.NoError(t, err)
	assert.Equal(t, hint, c)

	c, err = chart.BarColor(byName["delay"], &flows[1])
	require.NoError(t, err)
	assert.Equal(t, violation, c)

	c, err = chart.BarColor(byName["jitter"], &flows[1])
	require.NoError(t, err)
	assert.Equal(t, hint, c)

	c, err = chart.BarColor(byName["loss"], &flows[1])
	require.NoError(t, err)
	assert.Equal(t, violation, c)
}

func TestBuildAndWriteCharts(t *testing.T) {
	flows := sampleFlows()
	p, err := chart.Build(&chart.Metrics[1], flows)
	require.NoError(t, err)
	assert.Equal(t, "Average Delay", p.Title.Text)
	assert.Equal(t, "ms", p.Y.Label.Text)

	dir := t.TempDir()
	files, err := chart.WriteCharts(dir, flows)
	require.NoError(t, err)
	require.Len(t, files, len(chart.Metrics))
	for _, name := range []string{"throughput.png", "delay.png", "jitter.png", "loss.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0))
	}
}
