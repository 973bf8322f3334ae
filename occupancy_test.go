package qsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancyProfile(t *testing.T) {
	// deliveries: enqueued at 0, 3, 12, 21 ms, served back to back for 10 ms each
	rr := runConfig(t, testConfig(1, 1, 28, FIFO, flowDesc("burst", 1250, 3, 1, 1)))

	samples, err := OccupancyProfile(rr, 0.005)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(samples), 8)
	require.LessOrEqual(t, len(samples), 9)

	want := []OccupancySample{
		{Time: 0, Buffered: 0, Busy: true},
		{Time: 0.005, Buffered: 1, Busy: true},
		{Time: 0.015, Buffered: 1, Busy: true},
		{Time: 0.025, Buffered: 1, Busy: true},
		{Time: 0.035, Buffered: 0, Busy: true},
	}
	for _, w := range want {
		idx := int(w.Time/0.005 + 0.5)
		got := samples[idx]
		assert.InDelta(t, w.Time, got.Time, 1e-9)
		assert.Equal(t, w.Buffered, got.Buffered, "t=%v", w.Time)
		assert.Equal(t, w.Busy, got.Busy, "t=%v", w.Time)
	}
	for _, s := range samples {
		assert.LessOrEqual(t, s.Buffered, rr.Config.BufferCapacity)
		assert.LessOrEqual(t, s.Time, rr.EndTime+1e-9)
	}

	_, err = OccupancyProfile(rr, 0)
	require.Error(t, err)
}

func TestOccupancySampleBetweenEvents(t *testing.T) {
	smp := &occupancySampler{
		enqueues: []float64{0, 0.001, 0.002},
		starts:   []float64{0, 0.010, 0.020},
		finishes: []float64{0.010, 0.020, 0.030},
	}
	assert.Equal(t, OccupancySample{Time: 0.0015, Buffered: 1, Busy: true}, smp.sample(0.0015))
	assert.Equal(t, OccupancySample{Time: 0.012, Buffered: 1, Busy: true}, smp.sample(0.012))
	assert.Equal(t, OccupancySample{Time: 0.031, Buffered: 0, Busy: false}, smp.sample(0.031))
}
