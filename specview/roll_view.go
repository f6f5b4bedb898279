package specview

import (
	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/types"
)

// RollView layers staged roll/deferred-credit/production-stat writes over
// active history and FinalState.
type RollView struct {
	fs    *finalstate.FinalState
	ah    *activehistory.ActiveHistory
	local types.RollChanges
}

func newRollView(fs *finalstate.FinalState, ah *activehistory.ActiveHistory) *RollView {
	return &RollView{fs: fs, ah: ah, local: types.NewRollChanges()}
}

// RollCount returns addr's current roll count as seen through this view:
// the final count plus every delta staged locally or in active history.
func (v *RollView) RollCount(addr types.Address) uint64 {
	count := int64(v.fs.Roll.RollCount(addr))
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		count += out.StateChanges.Roll.RollCountDeltas[addr]
		return true
	})
	count += v.local.RollCountDeltas[addr]
	if count < 0 {
		return 0
	}
	return uint64(count)
}

// DeferredCreditsAt returns the deferred credits payable at slot, merging
// FS's final record with every addition staged in active history and
// locally (subtracting out any already consumed by a newer layer).
func (v *RollView) DeferredCreditsAt(slot types.Slot) map[types.Address]amount.Amount {
	out := make(map[types.Address]amount.Amount)
	for a, amt := range v.fs.Roll.DeferredCreditsAt(slot) {
		out[a] = amt
	}
	consumed := false
	v.ah.ForEachNewestFirst(func(o types.ExecutionOutput) bool {
		for _, s := range o.StateChanges.Roll.DeferredCreditConsumed {
			if s.Equal(slot) {
				consumed = true
			}
		}
		return true
	})
	if consumed {
		out = make(map[types.Address]amount.Amount)
	}
	for _, o := range v.ah.Snapshot() {
		for a, amt := range o.StateChanges.Roll.DeferredCreditAdds[slot] {
			out[a] = out[a].SaturatingAdd(amt)
		}
	}
	for a, amt := range v.local.DeferredCreditAdds[slot] {
		out[a] = out[a].SaturatingAdd(amt)
	}
	return out
}

// ProductionStatsOf returns addr's current-cycle production stats, merging
// FS's final counters with every increment staged in active history and
// locally.
func (v *RollView) ProductionStatsOf(addr types.Address) finalstate.ProductionStats {
	stats := v.fs.Roll.ProductionStatsOf(addr)
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		d := out.StateChanges.Roll.ProductionStats[addr]
		stats.Ok += d.Ok
		stats.Nok += d.Nok
		return true
	})
	d := v.local.ProductionStats[addr]
	stats.Ok += d.Ok
	stats.Nok += d.Nok
	return stats
}

// AllRollCounts returns every address with a nonzero roll count as seen
// through this view, merging FS's final counts with active history and the
// local buffer. Used for end-of-cycle cycle_history snapshots.
func (v *RollView) AllRollCounts() map[types.Address]uint64 {
	candidates := make(map[types.Address]struct{})
	for a := range v.fs.Roll.AllRollCounts() {
		candidates[a] = struct{}{}
	}
	for _, o := range v.ah.Snapshot() {
		for a := range o.StateChanges.Roll.RollCountDeltas {
			candidates[a] = struct{}{}
		}
	}
	for a := range v.local.RollCountDeltas {
		candidates[a] = struct{}{}
	}
	out := make(map[types.Address]uint64, len(candidates))
	for a := range candidates {
		if c := v.RollCount(a); c > 0 {
			out[a] = c
		}
	}
	return out
}

// AllProductionStats returns every address with current-cycle production
// stats as seen through this view, merging FS, active history and local.
func (v *RollView) AllProductionStats() map[types.Address]finalstate.ProductionStats {
	candidates := make(map[types.Address]struct{})
	for a := range v.fs.Roll.AllProductionStats() {
		candidates[a] = struct{}{}
	}
	for _, o := range v.ah.Snapshot() {
		for a := range o.StateChanges.Roll.ProductionStats {
			candidates[a] = struct{}{}
		}
	}
	for a := range v.local.ProductionStats {
		candidates[a] = struct{}{}
	}
	out := make(map[types.Address]finalstate.ProductionStats, len(candidates))
	for a := range candidates {
		out[a] = v.ProductionStatsOf(a)
	}
	return out
}

// AddRolls stages a signed roll-count delta for addr.
func (v *RollView) AddRolls(addr types.Address, delta int64) {
	v.local.AddRolls(addr, delta)
}

// AddDeferredCredit stages a deferred credit of amt to addr payable at slot.
func (v *RollView) AddDeferredCredit(slot types.Slot, addr types.Address, amt amount.Amount) {
	v.local.AddDeferredCredit(slot, addr, amt)
}

// ConsumeDeferredCredits marks slot's deferred credits as paid out (or
// burned), so FinalState.Finalize removes them from the roll sub-store.
func (v *RollView) ConsumeDeferredCredits(slot types.Slot) {
	v.local.DeferredCreditConsumed = append(v.local.DeferredCreditConsumed, slot)
}

// MarkProduced stages a production success/miss increment for addr.
func (v *RollView) MarkProduced(addr types.Address, ok bool) {
	v.local.MarkProduced(addr, ok)
}

// SetCycleSnapshot stages the end-of-cycle roll_counts snapshot. Only valid
// once per cycle, on the cycle's last slot.
func (v *RollView) SetCycleSnapshot(snap types.CycleSnapshot) {
	v.local.CycleSnapshot = &snap
}

// Slash stages the given addresses' roll counts for end-of-cycle zeroing.
func (v *RollView) Slash(addrs ...types.Address) {
	v.local.Slashed = append(v.local.Slashed, addrs...)
	for _, a := range addrs {
		v.local.AddRolls(a, -int64(v.RollCount(a)))
	}
}

// Take consumes and returns the staged RollChanges, resetting the buffer.
func (v *RollView) Take() types.RollChanges {
	out := v.local
	v.local = types.NewRollChanges()
	return out
}

// Snapshot returns a deep copy of the currently staged buffer.
func (v *RollView) Snapshot() types.RollChanges {
	return v.local.Clone()
}

// ResetTo restores the staged buffer to a previously captured snapshot.
func (v *RollView) ResetTo(snap types.RollChanges) {
	v.local = snap.Clone()
}
