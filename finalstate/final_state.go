// Package finalstate implements the Final State (spec.md §4.1): the
// canonical, hash-attested state attached to a single slot, composed of a
// ledger, an async message pool, staking/roll state and an executed-ops
// ledger, plus a bounded change journal used for bootstrap streaming.
package finalstate

import (
	"fmt"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/journal"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/internal/statehash"
	"github.com/qdrn/massa/types"
)

// FinalState is the canonical, hash-attested snapshot at FS.slot. It owns
// all persistent data; no other component holds a back-reference to it.
type FinalState struct {
	cfg  config.Config
	slot types.Slot
	// hasSlot distinguishes "genesis, before any finalize" from a real slot
	// at (0,0).
	hasSlot bool

	accum statehash.Accumulator

	Ledger      *LedgerStore
	AsyncPool   *AsyncPoolStore
	Roll        *RollStore
	ExecutedOps *ExecutedOpsStore

	journal *journal.Ring
}

// New constructs an empty FinalState not yet attached to any slot.
func New(cfg config.Config) *FinalState {
	fs := &FinalState{cfg: cfg, journal: journal.NewRing(cfg.JournalDepth)}
	fs.Ledger = newLedgerStore(&fs.accum)
	fs.AsyncPool = newAsyncPoolStore(cfg.AsyncPoolCapacity, &fs.accum)
	fs.Roll = newRollStore(cfg, &fs.accum)
	fs.ExecutedOps = newExecutedOpsStore(&fs.accum)
	return fs
}

// Slot returns the slot FS is currently attached to. ok is false before the
// first finalize call.
func (fs *FinalState) Slot() (s types.Slot, ok bool) {
	return fs.slot, fs.hasSlot
}

// GetHash returns the current XOR-accumulator value of H(FS).
func (fs *FinalState) GetHash() statehash.Hash {
	return fs.accum.Value()
}

// Finalize applies changes to each sub-store in the fixed order
// ledger -> async_pool -> roll_state -> executed_ops, advances FS.slot, and
// appends (slot, changes) to the bounded change journal (spec.md §4.1).
// Returns StateError::NonMonotonic-equivalent ErrNonMonotonic if
// slot <= FS.slot.
func (fs *FinalState) Finalize(slot types.Slot, changes types.StateChanges) error {
	return fs.FinalizeWithEvents(slot, changes, nil)
}

// FinalizeWithEvents behaves like Finalize but additionally retains events
// emitted while producing changes, so get_filtered_events can serve
// is_final: Some(true) queries against recently finalized slots.
func (fs *FinalState) FinalizeWithEvents(slot types.Slot, changes types.StateChanges, events []types.Event) error {
	if fs.hasSlot && !fs.slot.Less(slot) {
		return fmt.Errorf("%w: finalize(%s) <= current slot %s", massaerrors.ErrNonMonotonic, slot, fs.slot)
	}

	var prevSlot *types.Slot
	if fs.hasSlot {
		s := fs.slot
		prevSlot = &s
	}
	setSlotContribution(&fs.accum, prevSlot, slot)

	fs.Ledger.ApplyChanges(changes.Ledger)
	fs.AsyncPool.ApplyChanges(changes.AsyncPool)
	fs.Roll.ApplyChanges(changes.Roll)
	fs.ExecutedOps.ApplyChanges(slot, fs.cfg.ThreadCount, changes.ExecutedOps)

	fs.slot = slot
	fs.hasSlot = true

	fs.journal.Append(journal.Entry{Slot: slot, Changes: changes, Events: events})
	return nil
}

// GetBalance returns addr's final balance.
func (fs *FinalState) GetBalance(addr types.Address) (amount.Amount, bool) {
	return fs.Ledger.GetBalance(addr)
}

// JournalSince returns every (slot, StateChanges) retained in the journal
// whose slot is strictly after since, oldest first. Used to serve bootstrap
// streaming clients that are only slightly behind.
func (fs *FinalState) JournalSince(since types.Slot) []types.StateChanges {
	entries := fs.journal.Since(since)
	out := make([]types.StateChanges, len(entries))
	for i, e := range entries {
		out[i] = e.Changes
	}
	return out
}

// JournalDepth reports how many entries the journal currently retains.
func (fs *FinalState) JournalDepth() int {
	return fs.journal.Len()
}

// RecentEvents returns every event retained in the journal, oldest first.
// Only events from slots still within JournalDepth of the current slot are
// available; older finalized events are not retrievable.
func (fs *FinalState) RecentEvents() []types.Event {
	var out []types.Event
	for _, e := range fs.journal.All() {
		out = append(out, e.Events...)
	}
	return out
}
