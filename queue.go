package qsim

// queue.go holds the packet representation and the first-in first-out
// queues that hold packets between their arrival and their service

// Packet is one transmission unit.  All times are in seconds on the
// logical time axis.  The event loop stamps ServiceStart and ServiceFinish
type Packet struct {
	FlowID        int     `json:"flowid" yaml:"flowid"`
	Size          int     `json:"size" yaml:"size"` // bytes
	Seq           int     `json:"seq" yaml:"seq"`
	Arrival       float64 `json:"arrival" yaml:"arrival"`
	Enqueue       float64 `json:"enqueue" yaml:"enqueue"` // Arrival, clamped to not precede the clock when buffered
	ServiceStart  float64 `json:"start" yaml:"start"`
	ServiceFinish float64 `json:"finish" yaml:"finish"`
}

// DelayMs is the time from the packet's arrival until its last bit leaves
// the link, in milliseconds
func (pkt *Packet) DelayMs() float64 {
	return (pkt.ServiceFinish - pkt.Arrival) * 1000.0
}

// packetQueue is an ordered sequence of packets waiting for service
type packetQueue struct {
	inQ []*Packet
}

// qlen returns the number of packets in the queue
func (pq *packetQueue) qlen() int {
	return len(pq.inQ)
}

// appendQ adds a packet to the end of the queue
func (pq *packetQueue) appendQ(pkt *Packet) {
	pq.inQ = append(pq.inQ, pkt)
}

// head gives the earliest packet in the queue, if present
func (pq *packetQueue) head() *Packet {
	if len(pq.inQ) == 0 {
		return nil
	}
	return pq.inQ[0]
}

// popQ removes (and returns) the earliest packet in the queue
func (pq *packetQueue) popQ() *Packet {
	if len(pq.inQ) == 0 {
		return nil
	}
	pkt := pq.inQ[0]
	pq.inQ[0] = nil
	pq.inQ = pq.inQ[1:]
	return pkt
}

// queueSet is the queue structure the buffer manager fills and the
// scheduler drains.  A shared set has one global queue, otherwise there is
// one queue per flow, indexed by flow id
type queueSet struct {
	shared  bool
	global  packetQueue
	perFlow []packetQueue
	count   int
}

// createQueueSet is a constructor
func createQueueSet(flows int, shared bool) *queueSet {
	qs := new(queueSet)
	qs.shared = shared
	if !shared {
		qs.perFlow = make([]packetQueue, flows)
	}
	return qs
}

// buffered is the number of packets held across all queues of the set
func (qs *queueSet) buffered() int {
	return qs.count
}

// push appends the packet to the queue it belongs to
func (qs *queueSet) push(pkt *Packet) {
	if qs.shared {
		qs.global.appendQ(pkt)
	} else {
		qs.perFlow[pkt.FlowID].appendQ(pkt)
	}
	qs.count += 1
}

// flowQ gives the queue of one flow.  Only meaningful for per-flow sets
func (qs *queueSet) flowQ(flowID int) *packetQueue {
	return &qs.perFlow[flowID]
}

// popGlobal removes the head of the shared queue
func (qs *queueSet) popGlobal() *Packet {
	pkt := qs.global.popQ()
	if pkt != nil {
		qs.count -= 1
	}
	return pkt
}

// popFlow removes the head of a flow's queue
func (qs *queueSet) popFlow(flowID int) *Packet {
	pkt := qs.perFlow[flowID].popQ()
	if pkt != nil {
		qs.count -= 1
	}
	return pkt
}
