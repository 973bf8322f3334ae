// Package qsim evaluates how competing traffic flows share a single
// bottleneck link.  A run generates each flow's periodic packet arrivals,
// admits them into a shared tail-drop buffer, serves them one at a time
// under a FIFO, static priority or deficit round robin discipline, and
// reports per-flow delay, jitter, throughput and loss against the flow's
// QoS thresholds.
//
// A run is a pure function of its SimulationConfig: it executes on a
// logical time axis, to completion, in one call.  Independent runs may
// execute concurrently.
package qsim

// qsim.go holds the entry points that execute runs and gather their results

import (
	"context"
	"sync"
	"time"

	"github.com/iti/qsim/logging"
)

// RunResult is everything a finished run produces.  It is read-only
// and owned by the caller
type RunResult struct {
	Config *SimulationConfig `json:"config" yaml:"config"`

	// per-flow outcomes, in flow id order
	Flows []FlowResult `json:"flows" yaml:"flows"`

	// text description of the run's inputs
	Procedure string `json:"procedure" yaml:"procedure"`

	// delivered packets in departure order
	Departures []Packet `json:"departures,omitempty" yaml:"departures,omitempty"`

	// largest number of packets buffered at once
	MaxBuffered int `json:"maxbuffered" yaml:"maxbuffered"`

	// instant the last packet left the link, seconds
	EndTime float64 `json:"endtime" yaml:"endtime"`
}

// Passed reports whether every flow met all its thresholds
func (rr *RunResult) Passed() bool {
	for idx := range rr.Flows {
		if !rr.Flows[idx].Passed {
			return false
		}
	}
	return true
}

// Flow returns the result of the flow with the given id
func (rr *RunResult) Flow(id int) *FlowResult {
	return &rr.Flows[id]
}

// Simulate validates the configuration, executes one run to completion and
// returns its result.  A *ValidationError is returned, and nothing is
// simulated, when the configuration violates a bound.  tm may be nil
func Simulate(cfg *SimulationConfig, tm *TraceManager) (*RunResult, error) {
	sim, err := CreateSimulation(cfg, tm)
	if err != nil {
		return nil, err
	}
	sim.Run()
	logging.Debug("simulation finished", logging.F("name", cfg.Name), logging.F("scheduler", cfg.Scheduler),
		logging.F("steps", sim.steps), logging.F("departures", len(sim.departures)))
	return sim.result(), nil
}

// result gathers the outcome of a finished simulation
func (sim *Simulation) result() *RunResult {
	rr := new(RunResult)
	rr.Config = sim.cfg.Clone()
	rr.Flows = sim.flowResults()
	rr.Procedure = Procedure(sim.cfg)
	rr.Departures = make([]Packet, len(sim.departures))
	for idx, pkt := range sim.departures {
		rr.Departures[idx] = *pkt
	}
	rr.MaxBuffered = sim.buffer.Peak()
	rr.EndTime = sim.lastDeparture()
	return rr
}

// CompareSchedulers runs the configuration once under each of the given
// disciplines, concurrently, each run on its own copy of the configuration.
// Results are returned in the order of kinds.  The configuration is validated
// once up front; a context cancelled before the runs start yields its error
func CompareSchedulers(ctx context.Context, cfg *SimulationConfig, kinds []SchedulerKind) ([]*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = AllSchedulerKinds
	}
	for _, kind := range kinds {
		if !kind.valid() {
			v := new(validator)
			v.add(-1, "scheduler", int(kind), "not a recognized discipline")
			return nil, v.err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]*RunResult, len(kinds))
	errs := make([]error, len(kinds))

	var wg sync.WaitGroup
	for idx, kind := range kinds {
		runCfg := cfg.Clone()
		runCfg.Scheduler = kind

		wg.Add(1)
		go func(idx int, runCfg *SimulationConfig) {
			defer wg.Done()
			start := time.Now()
			results[idx], errs[idx] = Simulate(runCfg, nil)
			if errs[idx] == nil {
				logging.Debug("comparison run complete", logging.F("scheduler", runCfg.Scheduler),
					logging.F("elapsed", time.Since(start)), logging.F("passed", results[idx].Passed()))
			}
		}(idx, runCfg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
