package qsim

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
name: lab
linkratembps: 2.5
bufferpkts: 8
durationms: 400
scheduler: PQ
flows:
  - name: voice
    type: VoIP
    packetsize: 160
    interarrivalms: 20
    priority: 1
    weight: 2
    thresholds: {delayms: 50, jitterms: 10, losspct: 1}
  - packetsize: 1500
    interarrivalms: 5
    priority: 2
    weight: 1
    thresholds: {delayms: 500, jitterms: 100, losspct: 20}
`

func TestReadSimulationConfigYAML(t *testing.T) {
	cfg, err := ReadSimulationConfig("", true, []byte(yamlConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "lab", cfg.Name)
	assert.Equal(t, 2.5, cfg.LinkRateMbps)
	assert.Equal(t, 8, cfg.BufferCapacity)
	assert.Equal(t, PriorityQueue, cfg.Scheduler)
	require.Len(t, cfg.Flows, 2)
	assert.Equal(t, Thresholds{DelayMs: 50, JitterMs: 10, LossPct: 1}, cfg.Flows[0].Thresholds)
	assert.Equal(t, "", cfg.Flows[1].Name)
}

func TestConfigFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultSimulationConfig()

	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		filename := filepath.Join(dir, name)
		require.NoError(t, cfg.WriteToFile(filename))

		loaded, err := LoadSimulationConfig(filename)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, loaded, name)
	}

	err := cfg.WriteToFile(filepath.Join(dir, "cfg.txt"))
	require.Error(t, err)
}

func TestLoadSimulationConfigValidates(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"linkratembps": 10, "bufferpkts": 0, "durationms": 100,
		"scheduler": "FIFO", "flows": [{"packetsize": 100, "interarrivalms": 10, "priority": 1, "weight": 1,
		"thresholds": {"delayms": 1, "jitterms": 1, "losspct": 1}}]}`), 0o644))

	_, err := LoadSimulationConfig(filename)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Violations(), 1)
	assert.Equal(t, "bufferpkts", ve.Violations()[0].Field)

	_, err = LoadSimulationConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ReadSimulationConfig("", false, []byte(`{"scheduler": "round-robin"}`))
	require.Error(t, err)
}

func TestValidateRejectsNonFiniteLink(t *testing.T) {
	for _, rate := range []float64{math.NaN(), math.Inf(1), -1} {
		cfg := DefaultSimulationConfig()
		cfg.LinkRateMbps = rate
		var ve *ValidationError
		require.ErrorAs(t, cfg.Validate(), &ve)
		assert.Equal(t, "linkratembps", ve.Violations()[0].Field)
	}

	cfg := DefaultSimulationConfig()
	cfg.Scheduler = SchedulerKind(5)
	assert.Error(t, cfg.Validate())
}

func TestValidateBoundsArrivalCount(t *testing.T) {
	cfg := testConfig(10, 10, MaxArrivals-1, FIFO, flowDesc("a", 100, 1, 1, 1))
	assert.NoError(t, cfg.Validate())

	cfg.AddFlow(flowDesc("b", 100, 1e6, 1, 1))
	var ve *ValidationError
	require.ErrorAs(t, cfg.Validate(), &ve)
	require.Len(t, ve.Violations(), 1)
	assert.Equal(t, "durationms", ve.Violations()[0].Field)

	// a horizon whose count would not fit an int is rejected, not simulated
	huge := testConfig(10, 10, 1e300, DeficitRoundRobin, flowDesc("a", 100, 1, 1, 1))
	_, err := Simulate(huge, nil)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "durationms", ve.Violations()[0].Field)
}

func TestSimCfgDict(t *testing.T) {
	scd := CreateSimCfgDict("lab")
	cfg := DefaultSimulationConfig()
	require.NoError(t, scd.AddSimCfg(cfg, false))
	require.Error(t, scd.AddSimCfg(cfg, false))
	require.NoError(t, scd.AddSimCfg(cfg, true))

	cfg.Flows[0].Name = "changed"
	recovered, present := scd.RecoverSimCfg("default")
	require.True(t, present)
	assert.Equal(t, "VoIP", recovered.Flows[0].Name)

	_, present = scd.RecoverSimCfg("nothing")
	assert.False(t, present)

	filename := filepath.Join(t.TempDir(), "dict.yaml")
	require.NoError(t, scd.WriteToFile(filename))
	loaded, err := ReadSimCfgDict(filename, true, nil)
	require.NoError(t, err)
	assert.Equal(t, scd, loaded)
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.yaml")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	ok, err := CheckReadableFiles([]string{present, ""})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckReadableFiles([]string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yaml")})
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "2 errors occurred")

	ok, err = CheckOutputFiles([]string{filepath.Join(dir, "new.json")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckOutputFiles([]string{filepath.Join(dir, "nodir", "new.json")})
	require.Error(t, err)
	assert.False(t, ok)
}
