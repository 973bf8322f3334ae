package qsim

// arrivals.go generates the periodic packet arrivals of every flow and
// merges them into the single timeline the event loop consumes

import (
	"container/heap"
	"math"
)

// Arrival is one packet arrival instant on the logical time axis.  Time is in seconds
type Arrival struct {
	Time   float64
	FlowID int
	Seq    int
}

// MaxArrivals bounds the number of arrivals, summed over all flows, that a
// valid configuration may generate
const MaxArrivals = 1 << 24

// ExpectedArrivals is the number of arrivals a flow makes in a run of the given
// duration: one at t=0 and one every inter-arrival time up to and including the
// horizon.  The generator and the loss computation both use this count.
// The count saturates at math.MaxInt32
func ExpectedArrivals(durationMs, interArrivalMs float64) int {
	if !(interArrivalMs > 0) || durationMs < 0 {
		return 0
	}
	q := math.Floor(durationMs / interArrivalMs)
	if !(q < math.MaxInt32) {
		return math.MaxInt32
	}
	return int(q) + 1
}

// ArrivalStream is the lazy, finite, restartable arrival sequence of one flow
type ArrivalStream struct {
	flowID         int
	interArrivalMs float64
	count          int
	next           int
}

// createArrivalStream is a constructor
func createArrivalStream(f *Flow, durationMs float64) *ArrivalStream {
	as := new(ArrivalStream)
	as.flowID = f.ID
	as.interArrivalMs = f.InterArrivalMs
	as.count = ExpectedArrivals(durationMs, f.InterArrivalMs)
	return as
}

// Len is the total number of arrivals the stream produces
func (as *ArrivalStream) Len() int {
	return as.count
}

// Next returns the next arrival of the stream, and false once it is exhausted.
// Instants are computed from the sequence number rather than accumulated, and
// converted to seconds last, so that the final instant of a stream whose
// inter-arrival time divides the duration lands exactly on the horizon
func (as *ArrivalStream) Next() (Arrival, bool) {
	if as.next >= as.count {
		return Arrival{}, false
	}
	arr := Arrival{Time: float64(as.next) * as.interArrivalMs / 1000.0, FlowID: as.flowID, Seq: as.next}
	as.next += 1
	return arr, true
}

// Reset rewinds the stream to its first arrival
func (as *ArrivalStream) Reset() {
	as.next = 0
}

// arrivalHeap and its methods implement a min-priority heap over
// the pending head arrival of every stream
type arrivalHeap []Arrival

func (h arrivalHeap) Len() int { return len(h) }

func (h arrivalHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	if h[i].FlowID != h[j].FlowID {
		return h[i].FlowID < h[j].FlowID
	}
	return h[i].Seq < h[j].Seq
}

func (h arrivalHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *arrivalHeap) Push(x any) {
	*h = append(*h, x.(Arrival))
}

func (h *arrivalHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// ArrivalTimeline merges the streams of all flows in ascending time,
// breaking ties by flow id and then by sequence number
type ArrivalTimeline struct {
	streams []*ArrivalStream
	pending arrivalHeap
	total   int
	taken   int
}

// CreateArrivalTimeline builds the merged timeline for every flow in the registry
func CreateArrivalTimeline(fr *FlowRegistry, durationMs float64) *ArrivalTimeline {
	at := new(ArrivalTimeline)
	at.streams = make([]*ArrivalStream, fr.Len())
	for id := 0; id < fr.Len(); id++ {
		at.streams[id] = createArrivalStream(fr.Flow(id), durationMs)
		at.total += at.streams[id].Len()
	}
	at.Reset()
	return at
}

// Reset rewinds every stream and rebuilds the merge heap
func (at *ArrivalTimeline) Reset() {
	at.pending = make(arrivalHeap, 0, len(at.streams))
	at.taken = 0
	for _, as := range at.streams {
		as.Reset()
		if arr, ok := as.Next(); ok {
			at.pending = append(at.pending, arr)
		}
	}
	heap.Init(&at.pending)
}

// Peek returns the earliest pending arrival without consuming it
func (at *ArrivalTimeline) Peek() (Arrival, bool) {
	if len(at.pending) == 0 {
		return Arrival{}, false
	}
	return at.pending[0], true
}

// Pop consumes the earliest pending arrival and pulls the
// next arrival of the same flow into the merge
func (at *ArrivalTimeline) Pop() (Arrival, bool) {
	if len(at.pending) == 0 {
		return Arrival{}, false
	}
	arr := heap.Pop(&at.pending).(Arrival)
	if nxt, ok := at.streams[arr.FlowID].Next(); ok {
		heap.Push(&at.pending, nxt)
	}
	at.taken += 1
	return arr, true
}

// Generated is the number of arrivals the given flow produces over the run
func (at *ArrivalTimeline) Generated(flowID int) int {
	return at.streams[flowID].Len()
}

// Total is the number of arrivals across all flows
func (at *ArrivalTimeline) Total() int {
	return at.total
}

// Remaining is the number of arrivals not yet consumed
func (at *ArrivalTimeline) Remaining() int {
	return at.total - at.taken
}
