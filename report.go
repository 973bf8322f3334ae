package qsim

// report.go renders the inputs and outcome of a run as plain text

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// num formats a float with the fewest digits that represent it
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Procedure describes the run's input parameters, one line per setting
// and one per flow, so that the run can be reproduced from the text
func Procedure(cfg *SimulationConfig) string {
	step := make([]string, 0, 6+len(cfg.Flows))
	step = append(step, "# Procedure")
	step = append(step, "- Scheduling: "+cfg.Scheduler.ShortName())
	step = append(step, "- Link capacity: "+num(cfg.LinkRateMbps)+" Mbps")
	step = append(step, "- Buffer size: "+strconv.Itoa(cfg.BufferCapacity)+" packets")
	step = append(step, "- Duration: "+num(cfg.DurationMs)+" ms")
	step = append(step, "- Flows: "+strconv.Itoa(len(cfg.Flows)))
	for idx := range cfg.Flows {
		f := createFlow(idx, &cfg.Flows[idx])
		step = append(step, fmt.Sprintf("  - %s: size=%dB, ia=%sms, prio=%d, weight=%d, thresholds(D/J/L)=%s/%s/%s",
			f.Name, f.PacketSize, num(f.InterArrivalMs), f.Priority, f.Weight,
			num(f.Thresholds.DelayMs), num(f.Thresholds.JitterMs), num(f.Thresholds.LossPct)))
	}
	return strings.Join(step, "\n")
}

// status is the verdict word of a flow
func status(passed bool) string {
	if passed {
		return "OK"
	}
	return "Violated"
}

// WriteReport writes the plain-text report of a run: its inputs, then
// the figures and verdict of every flow
func WriteReport(w io.Writer, rr *RunResult) error {
	cfg := rr.Config
	var b strings.Builder

	b.WriteString("QoS Parameter Analyzer Report\n\n")
	b.WriteString("Simulation Inputs\n")
	fmt.Fprintf(&b, "Link Capacity: %s Mbps\n", num(cfg.LinkRateMbps))
	fmt.Fprintf(&b, "Buffer Size: %d packets\n", cfg.BufferCapacity)
	fmt.Fprintf(&b, "Duration: %s ms\n", num(cfg.DurationMs))
	fmt.Fprintf(&b, "Scheduling: %s\n", cfg.Scheduler.ShortName())
	fmt.Fprintf(&b, "Flows: %d\n", len(cfg.Flows))
	for idx := range cfg.Flows {
		f := createFlow(idx, &cfg.Flows[idx])
		fmt.Fprintf(&b, "  * %s [%s] size=%dB, ia=%sms, prio=%d, w=%d\n",
			f.Name, f.Type, f.PacketSize, num(f.InterArrivalMs), f.Priority, f.Weight)
	}

	b.WriteString("\nSimulation Results\n")
	for idx := range rr.Flows {
		res := &rr.Flows[idx]
		fmt.Fprintf(&b, "%s\tThroughput: %.3f Mbps\n", res.Name, res.ThroughputMbps)
		fmt.Fprintf(&b, "\tDelay: %.2f ms\tJitter: %.2f ms\tLoss: %.2f %%\tStatus: %s\n",
			res.AvgDelayMs, res.JitterMs, res.LossPct, status(res.Passed))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
