package qsim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordsPacketLifecycle(t *testing.T) {
	tm := CreateTraceManager("overload", true)
	_, err := Simulate(testConfig(1, 1, 28, FIFO, flowDesc("burst", 1250, 3, 1, 1)), tm)
	require.NoError(t, err)

	assert.Equal(t, NameType{Name: "burst", Type: "Data"}, tm.NameByID[0])

	counts := make(map[TraceOp]int)
	for _, tr := range tm.Traces[0] {
		counts[tr.Op] += 1
	}
	assert.Equal(t, map[TraceOp]int{TraceArrive: 4, TraceDrop: 6, TraceStart: 4, TraceDepart: 4}, counts)
	assert.Equal(t, 18, tm.Len())

	// records are numbered in the order they happen
	for idx, tr := range tm.Traces[0] {
		assert.Equal(t, int64(idx), tr.Priority)
		if idx > 0 {
			assert.GreaterOrEqual(t, tr.Time, tm.Traces[0][idx-1].Time)
		}
	}

	filename := filepath.Join(t.TempDir(), "trace.json")
	written, err := tm.WriteToFile(filename)
	require.NoError(t, err)
	require.True(t, written)

	bytes, err := os.ReadFile(filename)
	require.NoError(t, err)
	var back TraceManager
	require.NoError(t, json.Unmarshal(bytes, &back))
	assert.Equal(t, tm.Traces, back.Traces)
}

func TestInactiveTraceManager(t *testing.T) {
	tm := CreateTraceManager("off", false)
	_, err := Simulate(DefaultSimulationConfig(), tm)
	require.NoError(t, err)
	assert.Empty(t, tm.Traces)
	assert.Empty(t, tm.NameByID)
	assert.Equal(t, 0, tm.Len())

	written, err := tm.WriteToFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.False(t, written)

	var nilTM *TraceManager
	assert.False(t, nilTM.Active())
	assert.NotPanics(t, func() { nilTM.AddPacketTrace(0, &Packet{}, TraceArrive, 0) })
}
