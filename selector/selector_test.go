package selector_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func newFixture(t *testing.T, cfg config.Config, active map[types.Address]uint64) *finalstate.FinalState {
	t.Helper()
	fs := finalstate.New(cfg)
	require.NoError(t, fs.Finalize(types.NewSlot(0, cfg.ThreadCount-1), types.NewStateChanges()))

	changes := types.NewStateChanges()
	changes.Roll.CycleSnapshot = &types.CycleSnapshot{Cycle: 0, RollCounts: active}
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), changes))
	return fs
}

// lookbackCycleStart returns the first period of the cycle whose
// roll_counts snapshot is the one stored at cycle 0 (cycle 0 + lookback).
func lookbackCycleStart(cfg config.Config) uint64 {
	return cfg.SelectorLookbackCycles * cfg.PeriodsPerCycle
}

func TestProducerIsDeterministicAcrossCalls(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 4
	cfg.PeriodsPerCycle = 128
	cfg.SelectorLookbackCycles = 3
	cfg.CycleHistoryLength = 6

	active := map[types.Address]uint64{testAddr(1): 10, testAddr(2): 90}
	fs := newFixture(t, cfg, active)
	sel := selector.New(fs.Roll, cfg)

	slot := types.NewSlot(lookbackCycleStart(cfg), 2)
	first := sel.Producer(slot)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, sel.Producer(slot))
	}
}

func TestProducerReturnsZeroAddressWhenNoActiveRolls(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 1
	cfg.PeriodsPerCycle = 128
	cfg.SelectorLookbackCycles = 3
	cfg.CycleHistoryLength = 6

	fs := finalstate.New(cfg)
	require.NoError(t, fs.Finalize(types.NewSlot(0, 0), types.NewStateChanges()))
	sel := selector.New(fs.Roll, cfg)

	producer := sel.Producer(types.NewSlot(0, 0))
	require.Equal(t, types.Address{}, producer)
}

func TestProducerFavorsHigherWeightedAddress(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 8
	cfg.PeriodsPerCycle = 128
	cfg.SelectorLookbackCycles = 3
	cfg.CycleHistoryLength = 6

	low := testAddr(1)
	high := testAddr(2)
	active := map[types.Address]uint64{low: 1, high: 999}
	fs := newFixture(t, cfg, active)
	sel := selector.New(fs.Roll, cfg)

	start := lookbackCycleStart(cfg)
	var lowCount, highCount int
	for period := start; period < start+cfg.PeriodsPerCycle; period++ {
		for thread := uint8(0); thread < cfg.ThreadCount; thread++ {
			switch sel.Producer(types.NewSlot(period, thread)) {
			case low:
				lowCount++
			case high:
				highCount++
			}
		}
	}
	require.Greater(t, highCount, lowCount)
	require.Greater(t, highCount, 0)
}

func TestProducerOnlyChoosesActiveCandidates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 4
	cfg.PeriodsPerCycle = 128
	cfg.SelectorLookbackCycles = 3
	cfg.CycleHistoryLength = 6

	only := testAddr(5)
	active := map[types.Address]uint64{only: 1}
	fs := newFixture(t, cfg, active)
	sel := selector.New(fs.Roll, cfg)

	start := lookbackCycleStart(cfg)
	for period := start; period < start+10; period++ {
		require.Equal(t, only, sel.Producer(types.NewSlot(period, 0)))
	}
}
