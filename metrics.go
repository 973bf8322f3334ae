package qsim

// metrics.go converts the delivery record of a run into per-flow delay,
// jitter, throughput and loss figures, and judges them against the
// flow's thresholds

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Totals are the packet and bit counts behind a flow's figures
type Totals struct {
	DeliveredBits    int64 `json:"deliveredbits" yaml:"deliveredbits"`
	Delivered        int   `json:"delivered" yaml:"delivered"`
	Dropped          int   `json:"dropped" yaml:"dropped"`
	Generated        int   `json:"generated" yaml:"generated"`
	ExpectedArrivals int   `json:"expectedarrivals" yaml:"expectedarrivals"`
}

// FlowResult is the outcome of a run for one flow
type FlowResult struct {
	ID             int        `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Type           string     `json:"type" yaml:"type"`
	ColorHint      string     `json:"colorhint" yaml:"colorhint"`
	AvgDelayMs     float64    `json:"avgdelayms" yaml:"avgdelayms"`
	JitterMs       float64    `json:"jitterms" yaml:"jitterms"`
	ThroughputMbps float64    `json:"throughputmbps" yaml:"throughputmbps"`
	LossPct        float64    `json:"losspct" yaml:"losspct"`
	P95DelayMs     float64    `json:"p95delayms" yaml:"p95delayms"`
	MaxDelayMs     float64    `json:"maxdelayms" yaml:"maxdelayms"`
	Thresholds     Thresholds `json:"thresholds" yaml:"thresholds"`
	Passed         bool       `json:"passed" yaml:"passed"`
	Totals         Totals     `json:"totals" yaml:"totals"`
}

// DelayOK reports whether the average delay meets its threshold
func (fr *FlowResult) DelayOK() bool {
	return fr.AvgDelayMs <= fr.Thresholds.DelayMs
}

// JitterOK reports whether the jitter meets its threshold
func (fr *FlowResult) JitterOK() bool {
	return fr.JitterMs <= fr.Thresholds.JitterMs
}

// LossOK reports whether the loss percentage meets its threshold
func (fr *FlowResult) LossOK() bool {
	return fr.LossPct <= fr.Thresholds.LossPct
}

// MeanDelay is the arithmetic mean of the delays, 0 when there are none
func MeanDelay(delays []float64) float64 {
	if len(delays) == 0 {
		return 0
	}
	return stat.Mean(delays, nil)
}

// Jitter is the mean absolute difference between consecutive delays,
// 0 with fewer than two delays
func Jitter(delays []float64) float64 {
	if len(delays) < 2 {
		return 0
	}
	diffs := make([]float64, len(delays)-1)
	for idx := 1; idx < len(delays); idx++ {
		diffs[idx-1] = math.Abs(delays[idx] - delays[idx-1])
	}
	return stat.Mean(diffs, nil)
}

// ThroughputMbps is the delivered bit count spread over the run's duration
func ThroughputMbps(deliveredBits int64, durationMs float64) float64 {
	if !(durationMs > 0) {
		return 0
	}
	return float64(deliveredBits) / (durationMs / 1000.0) / 1e6
}

// LossPct is the dropped count as a percentage of the expected arrivals,
// 0 when no arrivals are expected
func LossPct(dropped, expected int) float64 {
	if expected == 0 {
		return 0
	}
	return 100.0 * float64(dropped) / float64(expected)
}

// delayQuantile is the empirical p-quantile of the delays, 0 when there are none
func delayQuantile(p float64, delays []float64) float64 {
	if len(delays) == 0 {
		return 0
	}
	sorted := slices.Clone(delays)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// computeFlowResult derives the figures of one flow from its delivery record
func computeFlowResult(f *Flow, delays []float64, deliveredBits int64, dropped, generated int,
	durationMs float64) FlowResult {

	res := FlowResult{ID: f.ID, Name: f.Name, Type: f.Type, ColorHint: f.Color, Thresholds: f.Thresholds}
	res.AvgDelayMs = MeanDelay(delays)
	res.JitterMs = Jitter(delays)
	res.ThroughputMbps = ThroughputMbps(deliveredBits, durationMs)
	res.P95DelayMs = delayQuantile(0.95, delays)
	if len(delays) > 0 {
		res.MaxDelayMs = floats.Max(delays)
	}

	res.Totals = Totals{DeliveredBits: deliveredBits, Delivered: len(delays), Dropped: dropped,
		Generated: generated, ExpectedArrivals: ExpectedArrivals(durationMs, f.InterArrivalMs)}
	res.LossPct = LossPct(dropped, res.Totals.ExpectedArrivals)

	res.Passed = res.DelayOK() && res.JitterOK() && res.LossOK()
	return res
}

// flowResults computes the figures of every flow of a finished simulation, in id order
func (sim *Simulation) flowResults() []FlowResult {
	results := make([]FlowResult, sim.flows.Len())
	for id := 0; id < sim.flows.Len(); id++ {
		results[id] = computeFlowResult(sim.flows.Flow(id), sim.delays[id], sim.delivered[id],
			sim.buffer.Dropped(id), sim.arrivals.Generated(id), sim.cfg.DurationMs)
	}
	return results
}
