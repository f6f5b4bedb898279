package finalstate

import (
	"sort"
	"strconv"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/statehash"
	"github.com/qdrn/massa/types"
)

// rollKey/deferredKey build the hash-contribution keys for roll counts and
// deferred credits, kept distinct from the ledger's addr||tag||subkey
// namespace via a leading tag byte reserved to this sub-store.
const (
	rollTagCount     byte = 0
	rollTagDeferred  byte = 1
	rollTagProdStats byte = 2
)

func rollCountKey(addr types.Address) []byte {
	k := make([]byte, 0, 1+types.AddressLength)
	k = append(k, rollTagCount)
	return append(k, addr.Bytes()...)
}

func deferredCreditKey(slot types.Slot, addr types.Address) []byte {
	k := []byte{rollTagDeferred}
	k = append(k, []byte(slot.String())...)
	return append(k, addr.Bytes()...)
}

func prodStatsKey(addr types.Address) []byte {
	k := []byte{rollTagProdStats}
	return append(k, addr.Bytes()...)
}

// ProductionStats holds per-address block production success/miss counters
// for the current cycle.
type ProductionStats struct {
	Ok  uint64
	Nok uint64
}

// RollStore is FinalState's staking sub-store: roll counts, deferred
// credits, per-cycle production stats and the bounded cycle history the
// selector reads with a 3-cycle lookback (spec.md §4.6).
type RollStore struct {
	cfg config.Config

	rollCounts map[types.Address]uint64
	deferred   map[types.Slot]map[types.Address]amount.Amount
	prodStats  map[types.Address]*ProductionStats

	// cycleHistory is a fixed-length ring of past roll_counts snapshots,
	// indexed by cycle number modulo len(cycleHistory).
	cycleHistory []types.CycleSnapshot

	accum *statehash.Accumulator
}

func newRollStore(cfg config.Config, accum *statehash.Accumulator) *RollStore {
	return &RollStore{
		cfg:          cfg,
		rollCounts:   make(map[types.Address]uint64),
		deferred:     make(map[types.Slot]map[types.Address]amount.Amount),
		prodStats:    make(map[types.Address]*ProductionStats),
		cycleHistory: make([]types.CycleSnapshot, cfg.CycleHistoryLength),
		accum:        accum,
	}
}

// RollCount returns the current final roll count of addr.
func (s *RollStore) RollCount(addr types.Address) uint64 {
	return s.rollCounts[addr]
}

// DeferredCreditsAt returns the deferred credits payable at slot.
func (s *RollStore) DeferredCreditsAt(slot types.Slot) map[types.Address]amount.Amount {
	return s.deferred[slot]
}

// ProductionStatsOf returns the current-cycle production stats of addr.
func (s *RollStore) ProductionStatsOf(addr types.Address) ProductionStats {
	p, ok := s.prodStats[addr]
	if !ok {
		return ProductionStats{}
	}
	return *p
}

// CycleActiveRolls returns the roll_counts snapshot for cycle, applying the
// spec's 3-cycle lookback: get_cycle_active_rolls(cycle) reads roll_counts
// from cycle-3 (or the initial state if that underflows).
func (s *RollStore) CycleActiveRolls(cycle uint64) map[types.Address]uint64 {
	lookback := s.cfg.SelectorLookbackCycles
	var target uint64
	if cycle < lookback {
		target = 0
	} else {
		target = cycle - lookback
	}
	idx := int(target % uint64(len(s.cycleHistory)))
	snap := s.cycleHistory[idx]
	if snap.RollCounts == nil || snap.Cycle != target {
		return map[types.Address]uint64{}
	}
	out := make(map[types.Address]uint64, len(snap.RollCounts))
	for a, v := range snap.RollCounts {
		out[a] = v
	}
	return out
}

func (s *RollStore) setRollCountContribution(addr types.Address, old, next uint64, hadOld bool) {
	key := rollCountKey(addr)
	var oldVal []byte
	if hadOld {
		oldVal = []byte(strconv.FormatUint(old, 10))
	}
	newVal := []byte(strconv.FormatUint(next, 10))
	s.accum.Put(key, oldValOrNil(hadOld, oldVal), newVal)
}

// addRolls applies a signed delta to addr's roll count, clamping at zero
// (callers are expected to have validated sufficient rolls before selling).
func (s *RollStore) addRolls(addr types.Address, delta int64) {
	old, had := s.rollCounts[addr]
	next := int64(old) + delta
	if next < 0 {
		next = 0
	}
	s.setRollCountContribution(addr, old, uint64(next), had)
	if next == 0 {
		delete(s.rollCounts, addr)
	} else {
		s.rollCounts[addr] = uint64(next)
	}
}

func (s *RollStore) addDeferredCredit(slot types.Slot, addr types.Address, amt amount.Amount) {
	m, ok := s.deferred[slot]
	if !ok {
		m = make(map[types.Address]amount.Amount)
		s.deferred[slot] = m
	}
	old, had := m[addr]
	next := old.SaturatingAdd(amt)
	key := deferredCreditKey(slot, addr)
	var oldVal []byte
	if had {
		oldVal = []byte(old.String())
	}
	s.accum.Put(key, oldValOrNil(had, oldVal), []byte(next.String()))
	m[addr] = next
}

// consumeDeferredCredits removes and returns the deferred credits payable at
// slot, XORing their contributions out of the hash.
func (s *RollStore) consumeDeferredCredits(slot types.Slot) map[types.Address]amount.Amount {
	m, ok := s.deferred[slot]
	if !ok {
		return nil
	}
	for addr, amt := range m {
		key := deferredCreditKey(slot, addr)
		s.accum.Delete(key, []byte(amt.String()))
	}
	delete(s.deferred, slot)
	return m
}

func (s *RollStore) markProduced(addr types.Address, delta types.ProductionStatDelta) {
	p, ok := s.prodStats[addr]
	var old ProductionStats
	if ok {
		old = *p
	} else {
		p = &ProductionStats{}
		s.prodStats[addr] = p
	}
	p.Ok += delta.Ok
	p.Nok += delta.Nok

	key := prodStatsKey(addr)
	oldVal := []byte(strconv.FormatUint(old.Ok, 10) + "," + strconv.FormatUint(old.Nok, 10))
	newVal := []byte(strconv.FormatUint(p.Ok, 10) + "," + strconv.FormatUint(p.Nok, 10))
	s.accum.Put(key, oldValOrNil(ok, oldVal), newVal)
}

// resetProductionStats clears every address's production counters, called
// at the start of a new cycle after settlement has run.
func (s *RollStore) resetProductionStats() {
	for addr, p := range s.prodStats {
		key := prodStatsKey(addr)
		oldVal := []byte(strconv.FormatUint(p.Ok, 10) + "," + strconv.FormatUint(p.Nok, 10))
		s.accum.Delete(key, oldVal)
	}
	s.prodStats = make(map[types.Address]*ProductionStats)
}

// snapshotCycle stores the current roll_counts into the ring at cycle's
// slot, overwriting whatever was there CycleHistoryLength cycles ago.
func (s *RollStore) snapshotCycle(cycle uint64, rngSeed []byte, finalHash [32]byte) types.CycleSnapshot {
	snap := types.CycleSnapshot{
		Cycle:       cycle,
		RollCounts:  make(map[types.Address]uint64, len(s.rollCounts)),
		RngSeed:     append([]byte(nil), rngSeed...),
		FinalHashAt: finalHash,
	}
	for a, v := range s.rollCounts {
		snap.RollCounts[a] = v
	}
	idx := int(cycle % uint64(len(s.cycleHistory)))
	s.cycleHistory[idx] = snap
	return snap
}

// AllRollCounts returns a copy of every final roll count currently held,
// used by the execution context to enumerate candidates for end-of-cycle
// settlement.
func (s *RollStore) AllRollCounts() map[types.Address]uint64 {
	out := make(map[types.Address]uint64, len(s.rollCounts))
	for a, v := range s.rollCounts {
		out[a] = v
	}
	return out
}

// AllProductionStats returns a copy of every address's current-cycle
// production stats.
func (s *RollStore) AllProductionStats() map[types.Address]ProductionStats {
	out := make(map[types.Address]ProductionStats, len(s.prodStats))
	for a, p := range s.prodStats {
		out[a] = *p
	}
	return out
}

// ApplyChanges applies a RollChanges delta in the order roll counts then
// deferred credits then production stats, recording any cycle snapshot
// carried in the delta.
func (s *RollStore) ApplyChanges(changes types.RollChanges) {
	addrs := sortedAddrs(changes.RollCountDeltas)
	for _, addr := range addrs {
		s.addRolls(addr, changes.RollCountDeltas[addr])
	}

	slots := make([]types.Slot, 0, len(changes.DeferredCreditAdds))
	for sl := range changes.DeferredCreditAdds {
		slots = append(slots, sl)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Less(slots[j]) })
	for _, sl := range slots {
		for _, addr := range sortedAddrs(nil, changes.DeferredCreditAdds[sl]) {
			s.addDeferredCredit(sl, addr, changes.DeferredCreditAdds[sl][addr])
		}
	}

	for _, sl := range changes.DeferredCreditConsumed {
		s.consumeDeferredCredits(sl)
	}

	for _, addr := range sortedProdAddrs(changes.ProductionStats) {
		s.markProduced(addr, changes.ProductionStats[addr])
	}

	if changes.CycleSnapshot != nil {
		idx := int(changes.CycleSnapshot.Cycle % uint64(len(s.cycleHistory)))
		s.cycleHistory[idx] = *changes.CycleSnapshot
	}
}

func sortedAddrs(deltas map[types.Address]int64, amounts ...map[types.Address]amount.Amount) []types.Address {
	var src map[types.Address]struct{} = make(map[types.Address]struct{})
	for a := range deltas {
		src[a] = struct{}{}
	}
	for _, m := range amounts {
		for a := range m {
			src[a] = struct{}{}
		}
	}
	out := make([]types.Address, 0, len(src))
	for a := range src {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Bytes()) < string(out[j].Bytes()) })
	return out
}

func sortedProdAddrs(m map[types.Address]types.ProductionStatDelta) []types.Address {
	out := make([]types.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Bytes()) < string(out[j].Bytes()) })
	return out
}
