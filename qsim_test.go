package qsim

import (
	"context"
	"testing"

	"github.com/iti/rngstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigurationRuns(t *testing.T) {
	cfg := DefaultSimulationConfig()
	require.NoError(t, cfg.Validate())

	rr := runConfig(t, cfg)
	require.Len(t, rr.Flows, 3)
	assert.Equal(t, []string{"VoIP", "Video", "Data"},
		[]string{rr.Flows[0].Name, rr.Flows[1].Name, rr.Flows[2].Name})

	// the offered load is about 1.3 Mbps, well under the 10 Mbps link
	for _, res := range rr.Flows {
		assert.Equal(t, 0, res.Totals.Dropped, res.Name)
		assert.True(t, res.Passed, res.Name)
	}
	assert.Equal(t, 51, rr.Flows[0].Totals.ExpectedArrivals)
	assert.Equal(t, 101, rr.Flows[1].Totals.ExpectedArrivals)
	assert.Equal(t, 26, rr.Flows[2].Totals.ExpectedArrivals)
	assert.True(t, rr.Passed())
	assert.Same(t, &rr.Flows[1], rr.Flow(1))
}

func TestRunDoesNotAliasConfiguration(t *testing.T) {
	cfg := DefaultSimulationConfig()
	rr := runConfig(t, cfg)

	cfg.Flows[0].Name = "changed"
	cfg.LinkRateMbps = 1
	assert.Equal(t, "VoIP", rr.Config.Flows[0].Name)
	assert.Equal(t, 10.0, rr.Config.LinkRateMbps)
}

func TestCompareSchedulers(t *testing.T) {
	cfg := testConfig(1, 20, 200, FIFO,
		flowDesc("voice", 200, 10, 1, 4),
		flowDesc("bulk", 1500, 8, 2, 1))

	results, err := CompareSchedulers(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, results, len(AllSchedulerKinds))

	for idx, kind := range AllSchedulerKinds {
		assert.Equal(t, kind, results[idx].Config.Scheduler)

		single := cfg.Clone()
		single.Scheduler = kind
		assert.Equal(t, runConfig(t, single), results[idx])
	}
	assert.Equal(t, FIFO, cfg.Scheduler)

	// the urgent voice flow fares better under priority than under FIFO
	assert.Less(t, results[1].Flows[0].AvgDelayMs, results[0].Flows[0].AvgDelayMs)

	ordered, err := CompareSchedulers(context.Background(), cfg, []SchedulerKind{DeficitRoundRobin, FIFO})
	require.NoError(t, err)
	assert.Equal(t, results[2], ordered[0])
	assert.Equal(t, results[0], ordered[1])
}

func TestCompareSchedulersErrors(t *testing.T) {
	cfg := DefaultSimulationConfig()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CompareSchedulers(ctx, cfg, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = CompareSchedulers(context.Background(), cfg, []SchedulerKind{FIFO, SchedulerKind(9)})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	cfg.Flows = nil
	_, err = CompareSchedulers(context.Background(), cfg, nil)
	require.ErrorAs(t, err, &ve)
}

// uniformInt draws from [lo, hi]
func uniformInt(rng *rngstream.RngStream, lo, hi int) int {
	return min(hi, lo+int(rng.RandU01()*float64(hi-lo+1)))
}

// randomConfig draws a small configuration, often overloaded
func randomConfig(rng *rngstream.RngStream) *SimulationConfig {
	cfg := &SimulationConfig{Name: "random",
		LinkRateMbps:   0.5 + 19.5*rng.RandU01(),
		BufferCapacity: uniformInt(rng, 1, 20),
		DurationMs:     float64(uniformInt(rng, 20, 300)),
		Scheduler:      AllSchedulerKinds[uniformInt(rng, 0, len(AllSchedulerKinds)-1)],
	}
	nFlows := uniformInt(rng, 1, 4)
	for idx := 0; idx < nFlows; idx++ {
		cfg.AddFlow(flowDesc("", uniformInt(rng, MinPacketSize, 6000), 1+19*rng.RandU01(),
			uniformInt(rng, 1, 3), uniformInt(rng, 1, 4)))
	}
	return cfg
}

func TestRandomConfigurationProperties(t *testing.T) {
	rng := rngstream.New("qsim-properties")

	for trial := 0; trial < 40; trial++ {
		cfg := randomConfig(rng)
		require.NoError(t, cfg.Validate(), "trial %d", trial)

		tm := CreateTraceManager("property", true)
		rr, err := Simulate(cfg, tm)
		require.NoError(t, err, "trial %d", trial)

		// buffer bound at every recorded instant
		assert.LessOrEqual(t, rr.MaxBuffered, cfg.BufferCapacity, "trial %d", trial)
		for _, traces := range tm.Traces {
			for _, tr := range traces {
				require.LessOrEqual(t, tr.Buffered, cfg.BufferCapacity, "trial %d", trial)
			}
		}

		// loss accounting
		for _, res := range rr.Flows {
			assert.Equal(t, res.Totals.Generated, res.Totals.Delivered+res.Totals.Dropped, "trial %d", trial)
			assert.LessOrEqual(t, res.Totals.Dropped, res.Totals.ExpectedArrivals, "trial %d", trial)
			assert.Equal(t, res.Totals.ExpectedArrivals, res.Totals.Generated, "trial %d", trial)
		}

		// one packet on the link at a time, never before it was buffered
		prevFinish := 0.0
		for _, pkt := range rr.Departures {
			require.GreaterOrEqual(t, pkt.ServiceStart, prevFinish, "trial %d", trial)
			require.GreaterOrEqual(t, pkt.ServiceStart, pkt.Enqueue, "trial %d", trial)
			require.GreaterOrEqual(t, pkt.Enqueue, pkt.Arrival, "trial %d", trial)
			prevFinish = pkt.ServiceFinish
		}

		if cfg.Scheduler == FIFO {
			for idx := 1; idx < len(rr.Departures); idx++ {
				require.LessOrEqual(t, rr.Departures[idx-1].Arrival, rr.Departures[idx].Arrival, "trial %d", trial)
			}
		}

		// determinism
		again, err := Simulate(cfg, nil)
		require.NoError(t, err)
		require.Equal(t, rr, again, "trial %d", trial)
	}
}
