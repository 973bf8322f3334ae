package qsim

// desc-cfg.go holds the serializable descriptions of a simulation
// experiment, and the methods that read and write them as json or yaml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// A FlowDesc struct holds the serializable description of one traffic flow.
// Its position in the SimulationConfig's Flows list becomes the flow's id
type FlowDesc struct {
	Name           string     `json:"name" yaml:"name"`
	Type           string     `json:"type" yaml:"type"`
	PacketSize     int        `json:"packetsize" yaml:"packetsize"`
	InterArrivalMs float64    `json:"interarrivalms" yaml:"interarrivalms"`
	Priority       int        `json:"priority" yaml:"priority"`
	Weight         int        `json:"weight" yaml:"weight"`
	Thresholds     Thresholds `json:"thresholds" yaml:"thresholds"`
}

// A SimulationConfig holds everything needed to run one simulation:
// the bottleneck link, the shared buffer, the horizon, the discipline
// and the competing flows
type SimulationConfig struct {
	// Name is an identifier for the configuration, used as a key in a SimCfgDict
	Name string `json:"name" yaml:"name"`

	// LinkRateMbps is the transmission rate of the bottleneck link
	LinkRateMbps float64 `json:"linkratembps" yaml:"linkratembps"`

	// BufferCapacity bounds the number of packets buffered across all queues
	BufferCapacity int `json:"bufferpkts" yaml:"bufferpkts"`

	// DurationMs is the horizon after which no further arrivals are admitted
	DurationMs float64 `json:"durationms" yaml:"durationms"`

	Scheduler SchedulerKind `json:"scheduler" yaml:"scheduler"`

	Flows []FlowDesc `json:"flows" yaml:"flows"`
}

// DefaultSimulationConfig returns the three-flow VoIP, video and bulk data
// scenario sharing a 10 Mbps link
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		Name:           "default",
		LinkRateMbps:   10,
		BufferCapacity: 50,
		DurationMs:     1000,
		Scheduler:      DeficitRoundRobin,
		Flows: []FlowDesc{
			{Name: "VoIP", Type: "VoIP", PacketSize: 160, InterArrivalMs: 20, Priority: 1, Weight: 5,
				Thresholds: Thresholds{DelayMs: 150, JitterMs: 30, LossPct: 1}},
			{Name: "Video", Type: "Video", PacketSize: 1200, InterArrivalMs: 10, Priority: 2, Weight: 3,
				Thresholds: Thresholds{DelayMs: 200, JitterMs: 50, LossPct: 1}},
			{Name: "Data", Type: "Data", PacketSize: 1500, InterArrivalMs: 40, Priority: 3, Weight: 1,
				Thresholds: Thresholds{DelayMs: 1000, JitterMs: 100, LossPct: 5}},
		},
	}
}

// Validate checks every numeric field against its bound and returns a
// *ValidationError describing all violations, or nil
func (cfg *SimulationConfig) Validate() error {
	v := new(validator)
	if !(cfg.LinkRateMbps > 0) || math.IsInf(cfg.LinkRateMbps, 0) {
		v.add(-1, "linkratembps", cfg.LinkRateMbps, "must be positive and finite")
	}
	if cfg.BufferCapacity < 1 {
		v.add(-1, "bufferpkts", cfg.BufferCapacity, "must be at least 1")
	}
	if !(cfg.DurationMs > 0) || math.IsInf(cfg.DurationMs, 0) {
		v.add(-1, "durationms", cfg.DurationMs, "must be positive and finite")
	}
	if !cfg.Scheduler.valid() {
		v.add(-1, "scheduler", int(cfg.Scheduler), "not a recognized discipline")
	}
	validateFlows(v, cfg.Flows)

	if cfg.DurationMs > 0 && !math.IsInf(cfg.DurationMs, 0) {
		total := 0.0
		for idx := range cfg.Flows {
			if ia := cfg.Flows[idx].InterArrivalMs; ia >= 1 {
				total += math.Floor(cfg.DurationMs/ia) + 1
			}
		}
		if total > MaxArrivals {
			v.add(-1, "durationms", cfg.DurationMs,
				fmt.Sprintf("generates %.0f arrivals, more than %d", total, MaxArrivals))
		}
	}
	return v.err()
}

// Clone returns a deep copy, so that concurrent runs never share a description
func (cfg *SimulationConfig) Clone() *SimulationConfig {
	cp := *cfg
	cp.Flows = make([]FlowDesc, len(cfg.Flows))
	copy(cp.Flows, cfg.Flows)
	return &cp
}

// AddFlow appends a flow description, returning the id it will be given
func (cfg *SimulationConfig) AddFlow(fd FlowDesc) int {
	cfg.Flows = append(cfg.Flows, fd)
	return len(cfg.Flows) - 1
}

// isYAMLExt reports whether a file name's extension selects yaml serialization
func isYAMLExt(filename string) bool {
	pathExt := path.Ext(filename)
	return pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml"
}

// isJSONExt reports whether a file name's extension selects json serialization
func isJSONExt(filename string) bool {
	pathExt := path.Ext(filename)
	return pathExt == ".json" || pathExt == ".JSON"
}

// marshalByExt serializes v as yaml or json, as selected by the file name's extension
func marshalByExt(filename string, v any) ([]byte, error) {
	if isYAMLExt(filename) {
		return yaml.Marshal(v)
	} else if isJSONExt(filename) {
		return json.MarshalIndent(v, "", "\t")
	}
	return nil, fmt.Errorf("%s: extension selects neither json nor yaml", filename)
}

// writeByExt stores v in the named file, serialized according to the extension
func writeByExt(filename string, v any) error {
	bytes, err := marshalByExt(filename, v)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// readDict returns dict if it is non-empty, otherwise the contents of the named file
func readDict(filename string, dict []byte) ([]byte, error) {
	if len(dict) > 0 {
		return dict, nil
	}
	return os.ReadFile(filename)
}

// WriteToFile stores the SimulationConfig to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *SimulationConfig) WriteToFile(filename string) error {
	return writeByExt(filename, *cfg)
}

// ReadSimulationConfig deserializes a byte slice holding a representation of a SimulationConfig.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  The result is not validated
func ReadSimulationConfig(filename string, useYAML bool, dict []byte) (*SimulationConfig, error) {
	dict, err := readDict(filename, dict)
	if err != nil {
		return nil, err
	}

	example := SimulationConfig{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	return &example, nil
}

// ReadSimulationConfigFile reads the named file, choosing the decoder from its
// extension.  The result is not validated, so that a caller may adjust it first
func ReadSimulationConfigFile(filename string) (*SimulationConfig, error) {
	return ReadSimulationConfig(filename, isYAMLExt(filename), nil)
}

// LoadSimulationConfig reads the named file, choosing the decoder from its extension,
// and validates the result
func LoadSimulationConfig(filename string) (*SimulationConfig, error) {
	cfg, err := ReadSimulationConfigFile(filename)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// A SimCfgDict is a dictionary that holds SimulationConfig objects in a map indexed by their Name
type SimCfgDict struct {
	DictName string                      `json:"dictname" yaml:"dictname"`
	Cfgs     map[string]SimulationConfig `json:"cfgs" yaml:"cfgs"`
}

// CreateSimCfgDict is a constructor
func CreateSimCfgDict(name string) *SimCfgDict {
	scd := new(SimCfgDict)
	scd.DictName = name
	scd.Cfgs = make(map[string]SimulationConfig)
	return scd
}

// AddSimCfg adds the offered configuration to the dictionary, returning
// an error if one with the same Name is already saved and overwrite is false
func (scd *SimCfgDict) AddSimCfg(cfg *SimulationConfig, overwrite bool) error {
	if !overwrite {
		_, present := scd.Cfgs[cfg.Name]
		if present {
			return fmt.Errorf("attempt to overwrite SimulationConfig %s", cfg.Name)
		}
	}
	scd.Cfgs[cfg.Name] = *cfg.Clone()
	return nil
}

// RecoverSimCfg returns a copy of the named configuration, and whether it is present
func (scd *SimCfgDict) RecoverSimCfg(name string) (*SimulationConfig, bool) {
	cfg, present := scd.Cfgs[name]
	if present {
		return cfg.Clone(), true
	}
	return nil, false
}

// WriteToFile stores the SimCfgDict to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (scd *SimCfgDict) WriteToFile(filename string) error {
	return writeByExt(filename, *scd)
}

// ReadSimCfgDict deserializes a SimCfgDict from dict, or from the named file when dict is empty
func ReadSimCfgDict(filename string, useYAML bool, dict []byte) (*SimCfgDict, error) {
	dict, err := readDict(filename, dict)
	if err != nil {
		return nil, err
	}

	example := SimCfgDict{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	if example.Cfgs == nil {
		example.Cfgs = make(map[string]SimulationConfig)
	}

	return &example, nil
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that the directory of
// every argument filename exists, so that the file can be written
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for the directory of every non-empty
// argument filename, optionally checking also for the existence of the file
// itself.  All failures are aggregated into the returned error
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	var errs *multierror.Error

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		directory, _ := filepath.Split(name)
		if len(directory) > 0 {
			if _, err := os.Stat(directory); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
		}

		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return false, err
	}
	return true, nil
}
