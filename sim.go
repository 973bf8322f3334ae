package qsim

// sim.go holds the event loop that drives one simulation run.
//
// The loop moves a single logical clock forward by interleaving packet
// arrivals with packet departures from a single transmission server.  It is
// a state machine with three working states:
//   - AwaitingEvent: the server is idle and arrivals within the horizon remain.
//   - Serving: a packet is on the link and departs at busyUntil.
//   - Draining: the horizon has passed, the server is idle, and accepted
//     packets are still buffered.  They are served until none remain.
// The run is Done when no arrival remains, the server is idle and every queue is empty.
//
// An arrival is processed before a departure scheduled for the same instant,
// so a packet arriving exactly as the link frees up competes for the link.

import "fmt"

// LoopState is the state of the event loop between steps
type LoopState int

const (
	AwaitingEvent LoopState = iota
	Serving
	Draining
	Done
)

var loopStateToStr = map[LoopState]string{AwaitingEvent: "AwaitingEvent", Serving: "Serving",
	Draining: "Draining", Done: "Done"}

func (ls LoopState) String() string {
	return loopStateToStr[ls]
}

// Simulation holds all the mutable state of one run.  It is owned by the
// goroutine that executes it and is never shared
type Simulation struct {
	cfg      *SimulationConfig
	flows    *FlowRegistry
	arrivals *ArrivalTimeline
	queues   *queueSet
	buffer   *BufferManager
	sched    Scheduler
	trace    *TraceManager

	linkBps float64 // link rate in bits per second

	time      float64
	busyUntil float64
	inService *Packet

	// delivered packets in departure order
	departures []*Packet

	// per-flow delivery accounting, indexed by flow id
	delays    [][]float64 // ms, in delivery order
	delivered []int64     // bits

	steps int
}

// CreateSimulation validates the configuration and builds the state of a
// run, ready to step.  The configuration is copied, later changes to it
// have no effect on the run.  tm may be nil
func CreateSimulation(cfg *SimulationConfig, tm *TraceManager) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fr, err := CreateFlowRegistry(cfg.Flows)
	if err != nil {
		return nil, err
	}

	sim := new(Simulation)
	sim.cfg = cfg.Clone()
	sim.flows = fr
	sim.arrivals = CreateArrivalTimeline(fr, cfg.DurationMs)
	sim.queues = createQueueSet(fr.Len(), cfg.Scheduler.usesSharedQueue())
	sim.buffer = createBufferManager(cfg.BufferCapacity, fr.Len(), sim.queues)
	sim.sched = createScheduler(cfg.Scheduler, fr, sim.queues)
	sim.trace = tm
	sim.linkBps = cfg.LinkRateMbps * 1e6
	sim.departures = make([]*Packet, 0, sim.arrivals.Total())
	sim.delays = make([][]float64, fr.Len())
	sim.delivered = make([]int64, fr.Len())

	for _, f := range fr.flows {
		tm.AddName(f.ID, f.Name, f.Type)
	}
	return sim, nil
}

// State reports which branch the next call to Step will take
func (sim *Simulation) State() LoopState {
	if sim.inService != nil {
		if arr, ok := sim.arrivals.Peek(); ok && arr.Time <= sim.busyUntil {
			return AwaitingEvent
		}
		return Serving
	}
	if sim.arrivals.Remaining() > 0 {
		return AwaitingEvent
	}
	if sim.buffer.Buffered() > 0 {
		return Draining
	}
	return Done
}

// Step executes one transition of the event loop, and reports
// whether the run has more work to do
func (sim *Simulation) Step() bool {
	state := sim.State()
	switch state {
	case AwaitingEvent:
		sim.arrive()
	case Serving:
		sim.depart()
	case Draining:
		sim.drain()
	case Done:
		return false
	}
	sim.steps += 1
	return true
}

// Run steps the event loop until it is Done
func (sim *Simulation) Run() {
	for sim.Step() {
	}
}

// Time is the current value of the logical clock, in seconds
func (sim *Simulation) Time() float64 {
	return sim.time
}

// InService returns the packet on the link, or nil when the server is idle
func (sim *Simulation) InService() *Packet {
	return sim.inService
}

// Buffered is the number of packets waiting for service
func (sim *Simulation) Buffered() int {
	return sim.buffer.Buffered()
}

// advance moves the clock forward to t.  The clock never moves backwards
func (sim *Simulation) advance(t float64) {
	if t < sim.time {
		panic(fmt.Errorf("clock moves backwards from %v to %v", sim.time, t))
	}
	sim.time = t
}

// arrive consumes the earliest pending arrival, offers its packet to the
// buffer, and starts service if the link is idle.  The arrival timeline only
// holds instants within the horizon
func (sim *Simulation) arrive() {
	arr, _ := sim.arrivals.Pop()
	sim.advance(max(sim.time, arr.Time))

	f := sim.flows.Flow(arr.FlowID)
	pkt := &Packet{FlowID: f.ID, Size: f.PacketSize, Seq: arr.Seq, Arrival: arr.Time}
	if sim.buffer.TryEnqueue(pkt, sim.time) {
		sim.trace.AddPacketTrace(sim.time, pkt, TraceArrive, sim.buffer.Buffered())
	} else {
		sim.trace.AddPacketTrace(sim.time, pkt, TraceDrop, sim.buffer.Buffered())
	}

	if sim.inService == nil {
		if nxt := sim.sched.SelectNext(); nxt != nil {
			sim.serve(nxt, sim.time)
		}
	}
}

// depart completes the service of the packet on the link, records its
// delay, and starts the next packet if the scheduler offers one
func (sim *Simulation) depart() {
	sim.advance(sim.busyUntil)
	pkt := sim.inService
	sim.inService = nil

	sim.delays[pkt.FlowID] = append(sim.delays[pkt.FlowID], pkt.DelayMs())
	sim.delivered[pkt.FlowID] += sim.flows.Flow(pkt.FlowID).bits()
	sim.departures = append(sim.departures, pkt)
	sim.trace.AddPacketTrace(sim.time, pkt, TraceDepart, sim.buffer.Buffered())

	if nxt := sim.sched.SelectNext(); nxt != nil {
		sim.serve(nxt, sim.time)
	}
}

// drain serves a buffered packet after the horizon has passed.  A
// scheduler may decline to offer a packet on one call (deficit round robin
// with credit below every head packet); its credit then grows and a
// later step serves one
func (sim *Simulation) drain() {
	pkt := sim.sched.SelectNext()
	if pkt == nil {
		return
	}
	start := max(sim.time, sim.busyUntil, pkt.Enqueue)
	sim.advance(start)
	sim.serve(pkt, start)
}

// serve puts the packet on the link at the given instant
func (sim *Simulation) serve(pkt *Packet, start float64) {
	if sim.inService != nil {
		panic(fmt.Errorf("packet %d of flow %d started while the link is busy", pkt.Seq, pkt.FlowID))
	}
	pkt.ServiceStart = start
	pkt.ServiceFinish = start + float64(pkt.Size*8)/sim.linkBps
	sim.busyUntil = pkt.ServiceFinish
	sim.inService = pkt
	sim.trace.AddPacketTrace(start, pkt, TraceStart, sim.buffer.Buffered())
}

// Departures returns the delivered packets in departure order
func (sim *Simulation) Departures() []*Packet {
	return sim.departures
}

// Delays returns the delays (ms) of the flow's delivered packets in delivery order
func (sim *Simulation) Delays(flowID int) []float64 {
	return sim.delays[flowID]
}

// lastDeparture is the instant the final packet left the link, or 0
func (sim *Simulation) lastDeparture() float64 {
	if len(sim.departures) == 0 {
		return 0
	}
	return sim.departures[len(sim.departures)-1].ServiceFinish
}
