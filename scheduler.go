package qsim

// scheduler.go holds the queueing disciplines that choose which buffered
// packet the link serves next.
//
// Three disciplines are provided, all behind the Scheduler interface:
//   - FIFO serves the single shared queue in arrival order, regardless of flow.
//   - PriorityQueue scans the per-flow queues from the most urgent priority
//     to the least, serving the head of the first non-empty one.  Service is
//     not preempted, and a flow can be starved by sustained load of more
//     urgent flows.
//   - DeficitRoundRobin visits the flows in id order, crediting each visit
//     with a weighted quantum of bytes, and serves a flow's head packet when
//     its accumulated credit covers the packet size.

import (
	"fmt"
	"strings"
)

// SchedulerKind selects the queueing discipline of a run
type SchedulerKind int

const (
	FIFO SchedulerKind = iota
	PriorityQueue
	DeficitRoundRobin
)

// DefaultQuantum is the base number of bytes credited to a flow per
// deficit round robin visit, before weighting
const DefaultQuantum = 1500

var kindToStr = map[SchedulerKind]string{FIFO: "FIFO", PriorityQueue: "PriorityQueue", DeficitRoundRobin: "DeficitRoundRobin"}
var kindToShort = map[SchedulerKind]string{FIFO: "FIFO", PriorityQueue: "PQ", DeficitRoundRobin: "WFQ"}

// AllSchedulerKinds lists the disciplines in their canonical order
var AllSchedulerKinds = []SchedulerKind{FIFO, PriorityQueue, DeficitRoundRobin}

func (sk SchedulerKind) String() string {
	str, present := kindToStr[sk]
	if !present {
		return fmt.Sprintf("SchedulerKind(%d)", int(sk))
	}
	return str
}

// ShortName is the abbreviation used in procedure and report text
func (sk SchedulerKind) ShortName() string {
	return kindToShort[sk]
}

// ParseSchedulerKind accepts the canonical names and the common
// abbreviations (FIFO, PQ, WFQ, DRR), ignoring case
func ParseSchedulerKind(name string) (SchedulerKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fifo", "fcfs":
		return FIFO, nil
	case "pq", "priority", "priorityqueue", "priority-queue":
		return PriorityQueue, nil
	case "wfq", "drr", "deficitroundrobin", "deficit-round-robin":
		return DeficitRoundRobin, nil
	}
	return FIFO, fmt.Errorf("scheduler %q is not recognized", name)
}

// MarshalText lets the kind appear by name in json and yaml descriptions
func (sk SchedulerKind) MarshalText() ([]byte, error) {
	str, present := kindToStr[sk]
	if !present {
		return nil, fmt.Errorf("scheduler kind %d is not recognized", int(sk))
	}
	return []byte(str), nil
}

// UnmarshalText is the inverse of MarshalText, and also accepts abbreviations
func (sk *SchedulerKind) UnmarshalText(text []byte) error {
	kind, err := ParseSchedulerKind(string(text))
	if err != nil {
		return err
	}
	*sk = kind
	return nil
}

// valid reports whether the kind is one of the defined disciplines
func (sk SchedulerKind) valid() bool {
	_, present := kindToStr[sk]
	return present
}

// Scheduler selects the next packet to serve.  SelectNext is called only when
// the link is free; it removes the packet it returns from the queues, and
// returns nil when the queues are empty, changing nothing in that case
type Scheduler interface {
	Kind() SchedulerKind
	SelectNext() *Packet
}

// usesSharedQueue reports whether the discipline keeps one global queue
func (sk SchedulerKind) usesSharedQueue() bool {
	return sk == FIFO
}

// createScheduler is a constructor for the discipline of the given kind,
// draining the given queue set
func createScheduler(kind SchedulerKind, fr *FlowRegistry, qs *queueSet) Scheduler {
	switch kind {
	case FIFO:
		return &fifoScheduler{queues: qs}
	case PriorityQueue:
		return &priorityScheduler{queues: qs, order: fr.ByPriority()}
	case DeficitRoundRobin:
		return createDRRScheduler(fr, qs, DefaultQuantum)
	}
	panic(fmt.Errorf("no scheduler for kind %d", int(kind)))
}

// fifoScheduler serves the shared queue in arrival order
type fifoScheduler struct {
	queues *queueSet
}

func (fs *fifoScheduler) Kind() SchedulerKind { return FIFO }

func (fs *fifoScheduler) SelectNext() *Packet {
	return fs.queues.popGlobal()
}

// priorityScheduler serves the head of the most urgent non-empty flow queue
type priorityScheduler struct {
	queues *queueSet
	order  []int // flow ids, most urgent first
}

func (ps *priorityScheduler) Kind() SchedulerKind { return PriorityQueue }

func (ps *priorityScheduler) SelectNext() *Packet {
	for _, flowID := range ps.order {
		if ps.queues.flowQ(flowID).qlen() > 0 {
			return ps.queues.popFlow(flowID)
		}
	}
	return nil
}

// drrScheduler holds the deficit round robin state: the credit of every
// flow in bytes and the cursor of the next flow to visit
type drrScheduler struct {
	queues  *queueSet
	quantum []int64 // per-flow credit added on each visit
	deficit []int64
	cursor  int
}

// createDRRScheduler is a constructor.  Each flow's quantum is the base
// quantum scaled by the flow's weight
func createDRRScheduler(fr *FlowRegistry, qs *queueSet, baseQuantum int) *drrScheduler {
	ds := new(drrScheduler)
	ds.queues = qs
	ds.quantum = make([]int64, fr.Len())
	ds.deficit = make([]int64, fr.Len())
	for id := 0; id < fr.Len(); id++ {
		ds.quantum[id] = int64(baseQuantum) * int64(max(1, fr.Flow(id).Weight))
	}
	return ds
}

func (ds *drrScheduler) Kind() SchedulerKind { return DeficitRoundRobin }

// SelectNext visits at most one full cycle of flows.  Every visit credits the
// visited flow and moves the cursor on, whether or not a packet is served,
// including calls made while every queue is empty.  When no head packet fits
// its flow's credit within the cycle nil is returned, and the credit gained
// carries over to the next call
func (ds *drrScheduler) SelectNext() *Packet {
	n := len(ds.deficit)
	for visits := 0; visits < n; visits++ {
		flowID := ds.cursor
		ds.deficit[flowID] += ds.quantum[flowID]
		ds.cursor = (ds.cursor + 1) % n

		head := ds.queues.flowQ(flowID).head()
		if head != nil && int64(head.Size) <= ds.deficit[flowID] {
			pkt := ds.queues.popFlow(flowID)
			ds.deficit[flowID] -= int64(pkt.Size)
			return pkt
		}
	}
	return nil
}
