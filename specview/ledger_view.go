// Package specview implements the Speculative Views (spec.md §4.2): four
// read-through, write-buffered layers over FinalState and ActiveHistory, one
// per sub-store. Each exposes the same reads as its FinalState counterpart
// plus a staged local mutation buffer; writes land only in that buffer.
// Reads resolve local -> AH (newest first) -> FS, stopping at the first
// Present or Absent result and falling through on NoInfo.
package specview

import (
	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/types"
)

// LedgerView layers staged ledger writes over active history and FinalState.
type LedgerView struct {
	fs    *finalstate.FinalState
	ah    *activehistory.ActiveHistory
	local types.LedgerChanges
}

func newLedgerView(fs *finalstate.FinalState, ah *activehistory.ActiveHistory) *LedgerView {
	return &LedgerView{fs: fs, ah: ah, local: types.NewLedgerChanges()}
}

// GetBalance returns addr's balance as seen through this view.
func (v *LedgerView) GetBalance(addr types.Address) (amount.Amount, bool) {
	if d, ok := v.local.Entries[addr]; ok && d.SetBalance != nil {
		return *d.SetBalance, true
	}
	var (
		found amount.Amount
		ok    bool
		hit   bool
	)
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		d, present := out.StateChanges.Ledger.Entries[addr]
		if !present || d.SetBalance == nil {
			return true
		}
		found, ok, hit = *d.SetBalance, true, true
		return false
	})
	if hit {
		return found, ok
	}
	return v.fs.Ledger.GetBalance(addr)
}

// GetBytecode returns addr's bytecode as seen through this view.
func (v *LedgerView) GetBytecode(addr types.Address) ([]byte, bool) {
	if d, ok := v.local.Entries[addr]; ok && d.SetBytecode != nil {
		return *d.SetBytecode, len(*d.SetBytecode) > 0
	}
	var (
		found []byte
		hit   bool
	)
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		d, present := out.StateChanges.Ledger.Entries[addr]
		if !present || d.SetBytecode == nil {
			return true
		}
		found, hit = *d.SetBytecode, true
		return false
	})
	if hit {
		return found, len(found) > 0
	}
	return v.fs.Ledger.GetBytecode(addr)
}

// GetDatastoreEntry returns addr's datastore value at key, honoring
// tombstones staged locally or in active history.
func (v *LedgerView) GetDatastoreEntry(addr types.Address, key string) ([]byte, bool) {
	switch lk := lookupDatastore(v.local.Entries[addr], key); lk {
	case activehistory.Present:
		return v.local.Entries[addr].DatastoreSets[key], true
	case activehistory.Absent:
		return nil, false
	}

	var (
		result   activehistory.Lookup
		val      []byte
	)
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		d := out.StateChanges.Ledger.Entries[addr]
		lk := lookupDatastore(d, key)
		if lk == activehistory.NoInfo {
			return true
		}
		result = lk
		if lk == activehistory.Present {
			val = d.DatastoreSets[key]
		}
		return false
	})
	switch result {
	case activehistory.Present:
		return val, true
	case activehistory.Absent:
		return nil, false
	}
	return v.fs.Ledger.GetDatastoreEntry(addr, key)
}

// lookupDatastore inspects a single LedgerEntryDelta (possibly nil) for a
// datastore key, returning the three-case Lookup result.
func lookupDatastore(d *types.LedgerEntryDelta, key string) activehistory.Lookup {
	if d == nil {
		return activehistory.NoInfo
	}
	if d.DatastoreDeletes[key] {
		return activehistory.Absent
	}
	if _, ok := d.DatastoreSets[key]; ok {
		return activehistory.Present
	}
	return activehistory.NoInfo
}

// HasEntry reports whether addr has any ledger entry (local, AH or FS).
func (v *LedgerView) HasEntry(addr types.Address) bool {
	if _, ok := v.local.Entries[addr]; ok {
		return true
	}
	hit := false
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		if _, ok := out.StateChanges.Ledger.Entries[addr]; ok {
			hit = true
			return false
		}
		return true
	})
	if hit {
		return true
	}
	return v.fs.Ledger.HasEntry(addr)
}

// SetBalance stages a balance overwrite.
func (v *LedgerView) SetBalance(addr types.Address, bal amount.Amount) {
	v.local.SetBalance(addr, bal)
}

// SetBytecode stages a bytecode overwrite.
func (v *LedgerView) SetBytecode(addr types.Address, code []byte) {
	v.local.SetBytecode(addr, code)
}

// SetDatastoreEntry stages a datastore write.
func (v *LedgerView) SetDatastoreEntry(addr types.Address, key string, value []byte) {
	v.local.SetDatastoreEntry(addr, key, value)
}

// DeleteDatastoreEntry stages a datastore tombstone.
func (v *LedgerView) DeleteDatastoreEntry(addr types.Address, key string) {
	v.local.DeleteDatastoreEntry(addr, key)
}

// Take consumes and returns the staged LedgerChanges, resetting the buffer.
func (v *LedgerView) Take() types.LedgerChanges {
	out := v.local
	v.local = types.NewLedgerChanges()
	return out
}

// Snapshot returns a deep copy of the currently staged buffer.
func (v *LedgerView) Snapshot() types.LedgerChanges {
	return v.local.Clone()
}

// ResetTo restores the staged buffer to a previously captured snapshot.
func (v *LedgerView) ResetTo(snap types.LedgerChanges) {
	v.local = snap.Clone()
}
