package qsim

// flow.go holds the runtime representation of the traffic flows that
// compete for the bottleneck link, and the registry that validates them
// and gives each its stable identity

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// MinPacketSize is the smallest packet a flow may emit, in bytes
const MinPacketSize = 40

// palette gives the color hint handed to renderers, indexed by flow id
var palette = []string{"#0078D4", "#7FBA00", "#FFB900", "#E81123", "#5C2D91",
	"#008272", "#00B294", "#D83B01", "#038387", "#107C10", "#004E8C"}

// ColorHint returns the palette entry associated with a flow id
func ColorHint(id int) string {
	return palette[id%len(palette)]
}

// Thresholds are the QoS targets a flow has to meet to pass
type Thresholds struct {
	DelayMs  float64 `json:"delayms" yaml:"delayms"`
	JitterMs float64 `json:"jitterms" yaml:"jitterms"`
	LossPct  float64 `json:"losspct" yaml:"losspct"`
}

// Flow is the validated, immutable description of one traffic source.
// ID is the zero-based position of the flow in the input list, and is the
// only key used to refer to the flow anywhere else
type Flow struct {
	ID             int
	Name           string
	Type           string
	Color          string
	PacketSize     int     // bytes
	InterArrivalMs float64 // time between consecutive packets
	Priority       int     // 1 is the most urgent
	Weight         int     // share of service under deficit round robin
	Thresholds     Thresholds
}

// bits is the number of bits a single packet of the flow puts on the wire
func (f *Flow) bits() int64 {
	return int64(f.PacketSize) * 8
}

// FlowRegistry holds the flows of one run, in input order
type FlowRegistry struct {
	flows []*Flow

	// flow ids in ascending priority number, ties kept in registry order
	byPriority []int
}

// CreateFlowRegistry validates the flow descriptions and builds the registry.
// A *ValidationError is returned if the list is empty or any flow violates
// a bound; in that case no registry is built
func CreateFlowRegistry(descs []FlowDesc) (*FlowRegistry, error) {
	v := new(validator)
	validateFlows(v, descs)
	if err := v.err(); err != nil {
		return nil, err
	}

	fr := new(FlowRegistry)
	fr.flows = make([]*Flow, len(descs))
	for idx, desc := range descs {
		fr.flows[idx] = createFlow(idx, &desc)
	}

	fr.byPriority = make([]int, len(fr.flows))
	for idx := range fr.flows {
		fr.byPriority[idx] = idx
	}
	slices.SortStableFunc(fr.byPriority, func(a, b int) int {
		return fr.flows[a].Priority - fr.flows[b].Priority
	})

	return fr, nil
}

// createFlow is a constructor, filling in defaults for the informational fields
func createFlow(id int, desc *FlowDesc) *Flow {
	f := new(Flow)
	f.ID = id
	f.Name = desc.Name
	if len(f.Name) == 0 {
		f.Name = fmt.Sprintf("Flow %d", id+1)
	}
	f.Type = desc.Type
	if len(f.Type) == 0 {
		f.Type = "Data"
	}
	f.Color = ColorHint(id)
	f.PacketSize = desc.PacketSize
	f.InterArrivalMs = desc.InterArrivalMs
	f.Priority = desc.Priority
	f.Weight = desc.Weight
	f.Thresholds = desc.Thresholds
	return f
}

// validateFlows records a violation for every flow field outside its bound.
// The comparisons are written so that NaN fails them
func validateFlows(v *validator, descs []FlowDesc) {
	if len(descs) == 0 {
		v.add(-1, "flows", 0, "at least one flow is required")
		return
	}
	for idx, desc := range descs {
		if desc.PacketSize < MinPacketSize {
			v.add(idx, "packetsize", desc.PacketSize, fmt.Sprintf("must be at least %d bytes", MinPacketSize))
		}
		if !(desc.InterArrivalMs >= 1) {
			v.add(idx, "interarrivalms", desc.InterArrivalMs, "must be at least 1 ms")
		}
		if desc.Priority < 1 {
			v.add(idx, "priority", desc.Priority, "must be at least 1")
		}
		if desc.Weight < 1 {
			v.add(idx, "weight", desc.Weight, "must be at least 1")
		}
		if !(desc.Thresholds.DelayMs > 0) {
			v.add(idx, "delayms", desc.Thresholds.DelayMs, "must be positive")
		}
		if !(desc.Thresholds.JitterMs >= 0) {
			v.add(idx, "jitterms", desc.Thresholds.JitterMs, "must not be negative")
		}
		if !(desc.Thresholds.LossPct >= 0 && desc.Thresholds.LossPct <= 100) {
			v.add(idx, "losspct", desc.Thresholds.LossPct, "must be within [0,100]")
		}
	}
}

// Len is the number of flows in the registry
func (fr *FlowRegistry) Len() int {
	return len(fr.flows)
}

// Flow returns the flow with the given id
func (fr *FlowRegistry) Flow(id int) *Flow {
	return fr.flows[id]
}

// Flows returns the flows in id order.  The slice is a copy, the flows are shared
// and must not be modified
func (fr *FlowRegistry) Flows() []*Flow {
	return slices.Clone(fr.flows)
}

// ByPriority returns flow ids from most to least urgent
func (fr *FlowRegistry) ByPriority() []int {
	return slices.Clone(fr.byPriority)
}
