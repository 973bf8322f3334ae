package qsim

// trace.go holds the optional per-packet trace of a run.  Every arrival,
// drop, service start and departure may be recorded, stamped with the
// virtual time at which it happened

import (
	"fmt"

	"github.com/iti/evt/vrtime"
)

// TraceOp names the packet event a trace record describes
type TraceOp string

const (
	TraceArrive TraceOp = "arrive"
	TraceDrop   TraceOp = "drop"
	TraceStart  TraceOp = "start"
	TraceDepart TraceOp = "depart"
)

// NameType is an entry in the dictionary created for a trace
// that maps flow id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// PacketTrace saves information about one event in the life of a packet,
// for post-run analysis
type PacketTrace struct {
	Time     float64 `json:"time" yaml:"time"`         // time in float64
	Ticks    int64   `json:"ticks" yaml:"ticks"`       // ticks variable of time
	Priority int64   `json:"priority" yaml:"priority"` // order of the record among all records of the run
	FlowID   int     `json:"flowid" yaml:"flowid"`
	Seq      int     `json:"seq" yaml:"seq"`
	Op       TraceOp `json:"op" yaml:"op"`
	Buffered int     `json:"buffered" yaml:"buffered"` // packets held after the event
}

// TraceManager gathers the packet traces of a run.  A manager that is not
// in use accepts every call and records nothing, so calls to it can be
// embedded everywhere they are needed
type TraceManager struct {
	// run uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the run
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each flow id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records of the run, indexed by flow id
	Traces map[int][]PacketTrace `json:"traces" yaml:"traces"`

	records int64
}

// CreateTraceManager is a constructor.  It saves the name of the run
// and a flag indicating whether the trace manager is active
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]PacketTrace)
	return tm
}

// Active tells the caller whether the trace manager is actively being used.
// A nil manager is inactive
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	_, present := tm.NameByID[id]
	if present {
		panic(fmt.Errorf("duplicated id %d in AddName", id))
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// AddPacketTrace creates a record of a packet event at the given time (in seconds)
// and stores it with the traces of the packet's flow
func (tm *TraceManager) AddPacketTrace(seconds float64, pkt *Packet, op TraceOp, buffered int) {
	if !tm.Active() {
		return
	}
	vrt := vrtime.SecondsToTimePri(seconds, tm.records)
	tm.records += 1

	ptr := PacketTrace{Time: vrt.Seconds(), Ticks: vrt.Ticks(), Priority: vrt.Pri(),
		FlowID: pkt.FlowID, Seq: pkt.Seq, Op: op, Buffered: buffered}
	tm.Traces[pkt.FlowID] = append(tm.Traces[pkt.FlowID], ptr)
}

// Len is the number of records gathered
func (tm *TraceManager) Len() int {
	if !tm.Active() {
		return 0
	}
	return int(tm.records)
}

// WriteToFile stores the trace to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written by an inactive manager, which reports false
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}
	if err := writeByExt(filename, *tm); err != nil {
		return false, err
	}
	return true, nil
}
