// Package selector defines the Slot Sequencer's external collaborator
// contract -- the block/endorsement producer selection spec.md treats as
// "external" -- plus a roll-weighted reference implementation usable by
// tests and a single-node deployment.
package selector

import (
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/xoshiro"
	"github.com/qdrn/massa/types"
)

// Selector produces the expected block producer for a slot. The Slot
// Executor treats its output as ground truth to enforce against a
// candidate block (spec.md §4.4 step 3: "block_producer_addr =
// selector.producer(slot) (external check)").
type Selector interface {
	Producer(slot types.Slot) types.Address
}

// RollWeighted selects a producer for each slot by drawing from the
// roll-weighted distribution of the cycle active three cycles prior
// (spec.md §4.6's lookback rule), seeded deterministically from the cycle
// number and the slot so the same (cycle, slot) always draws the same
// producer. The RngSeed recorded in the cycle snapshot is not used.
type RollWeighted struct {
	roll *finalstate.RollStore
	cfg  config.Config
}

// New constructs a RollWeighted selector reading roll history from roll.
func New(roll *finalstate.RollStore, cfg config.Config) *RollWeighted {
	return &RollWeighted{roll: roll, cfg: cfg}
}

// Producer implements Selector.
func (s *RollWeighted) Producer(slot types.Slot) types.Address {
	cycle := slot.Period / s.cfg.PeriodsPerCycle
	active := s.roll.CycleActiveRolls(cycle)
	if len(active) == 0 {
		return types.Address{}
	}

	addrs, total := sortedCandidates(active)
	if total == 0 {
		return addrs[0]
	}

	seed := drawSeed(cycle, slot)
	rng := xoshiro.New(seed)
	draw := rng.Uint64n(total)

	var cumulative uint64
	for _, a := range addrs {
		cumulative += active[a]
		if draw < cumulative {
			return a
		}
	}
	return addrs[len(addrs)-1]
}

// sortedCandidates returns every candidate address in deterministic
// (byte-lexicographic) order together with the sum of their roll counts,
// so the weighted draw never depends on Go's randomized map iteration.
func sortedCandidates(active map[types.Address]uint64) ([]types.Address, uint64) {
	addrs := make([]types.Address, 0, len(active))
	var total uint64
	for a, c := range active {
		addrs = append(addrs, a)
		total += c
	}
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && string(addrs[j].Bytes()) < string(addrs[j-1].Bytes()); j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
	return addrs, total
}

// drawSeed derives a selection seed from the cycle and slot, standing in
// for the spec's "cycle rng_seed" combined with a per-slot draw index.
func drawSeed(cycle uint64, slot types.Slot) [32]byte {
	var seed [32]byte
	for i := 0; i < 8; i++ {
		seed[i] = byte(cycle >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		seed[8+i] = byte(slot.Period >> (8 * i))
	}
	seed[16] = slot.Thread
	return seed
}
