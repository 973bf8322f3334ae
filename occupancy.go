package qsim

// occupancy.go replays the departure timeline of a finished run through
// an event manager, sampling the buffer occupancy and the state of the link
// at regular intervals of simulated time

import (
	"fmt"
	"sort"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// OccupancySample is the state of the bottleneck at one instant
type OccupancySample struct {
	Time     float64 `json:"time" yaml:"time"` // seconds
	Buffered int     `json:"buffered" yaml:"buffered"`
	Busy     bool    `json:"busy" yaml:"busy"`
}

// occupancySampler holds the replay state shared by the sampling events
type occupancySampler struct {
	enqueues []float64 // enqueue instants, ascending
	starts   []float64 // service start instants, ascending
	finishes []float64 // service finish instants, in start order
	interval float64
	end      float64
	samples  []OccupancySample
}

// upTo is the number of entries of the ascending slice that are <= t
func upTo(sorted []float64, t float64) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i] > t })
}

// sample is the state at instant t.  A delivered packet is buffered from
// its enqueue instant until its service starts.  Dropped packets never
// enter the buffer
func (smp *occupancySampler) sample(t float64) OccupancySample {
	started := upTo(smp.starts, t)
	s := OccupancySample{Time: t, Buffered: upTo(smp.enqueues, t) - started}
	if started > 0 && smp.finishes[started-1] > t {
		s.Busy = true
	}
	return s
}

// takeSample is the event handler that records one sample and schedules the next
func takeSample(evtMgr *evtm.EventManager, context any, data any) any {
	smp := context.(*occupancySampler)
	now := evtMgr.CurrentSeconds()
	smp.samples = append(smp.samples, smp.sample(now))

	if now+smp.interval <= smp.end {
		evtMgr.Schedule(smp, nil, takeSample, vrtime.SecondsToTime(smp.interval))
	}
	return nil
}

// OccupancyProfile samples the buffered packet count and the link state of a
// finished run every interval seconds, from t=0 through the last departure
func OccupancyProfile(rr *RunResult, interval float64) ([]OccupancySample, error) {
	if !(interval > 0) {
		return nil, fmt.Errorf("sampling interval %v must be positive", interval)
	}

	smp := new(occupancySampler)
	smp.interval = interval
	smp.end = rr.EndTime
	n := len(rr.Departures)
	smp.enqueues = make([]float64, n)
	smp.starts = make([]float64, n)
	smp.finishes = make([]float64, n)
	for idx := range rr.Departures {
		smp.enqueues[idx] = rr.Departures[idx].Enqueue
		smp.starts[idx] = rr.Departures[idx].ServiceStart
		smp.finishes[idx] = rr.Departures[idx].ServiceFinish
	}
	sort.Float64s(smp.enqueues)

	evtMgr := evtm.New()
	evtMgr.Schedule(smp, nil, takeSample, vrtime.SecondsToTime(0.0))
	evtMgr.Run(smp.end + interval)

	return smp.samples, nil
}
