package qsim

// buffer.go enforces the single capacity bound shared by all queues
// and applies tail-drop when the buffer is full

import "fmt"

// BufferManager admits packets into the queue set of a run
type BufferManager struct {
	capacity int
	queues   *queueSet
	dropped  []int
	accepted []int
	peak     int
}

// createBufferManager is a constructor.  The manager fills the given queue set
func createBufferManager(capacity, flows int, qs *queueSet) *BufferManager {
	bm := new(BufferManager)
	bm.capacity = capacity
	bm.queues = qs
	bm.dropped = make([]int, flows)
	bm.accepted = make([]int, flows)
	return bm
}

// TryEnqueue admits the packet if fewer than capacity packets are buffered.
// An admitted packet has its Enqueue time set to max(Arrival, now).
// A rejected packet is counted against its flow and discarded
func (bm *BufferManager) TryEnqueue(pkt *Packet, now float64) bool {
	if bm.queues.buffered() >= bm.capacity {
		bm.dropped[pkt.FlowID] += 1
		return false
	}
	pkt.Enqueue = max(pkt.Arrival, now)
	bm.queues.push(pkt)
	bm.accepted[pkt.FlowID] += 1

	n := bm.queues.buffered()
	if n > bm.capacity {
		panic(fmt.Errorf("buffer holds %d packets, capacity is %d", n, bm.capacity))
	}
	if n > bm.peak {
		bm.peak = n
	}
	return true
}

// Buffered is the number of packets currently held
func (bm *BufferManager) Buffered() int {
	return bm.queues.buffered()
}

// Capacity is the bound on the number of buffered packets
func (bm *BufferManager) Capacity() int {
	return bm.capacity
}

// Dropped is the number of packets of the flow rejected so far
func (bm *BufferManager) Dropped(flowID int) int {
	return bm.dropped[flowID]
}

// Accepted is the number of packets of the flow admitted so far
func (bm *BufferManager) Accepted(flowID int) int {
	return bm.accepted[flowID]
}

// Peak is the largest number of packets buffered at once
func (bm *BufferManager) Peak() int {
	return bm.peak
}
