// Package rpcapi implements the sequencer-visible RPC surface (spec.md
// §6.1): read-only queries against the final and candidate state, filtered
// event retrieval, and read-only execution, fronted by a JSON-RPC 2.0
// transport over net/http.
package rpcapi

import (
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/types"
)

// Backend is every sequencer-visible read exposed to RPC clients. It is
// satisfied by *sequencer.Sequencer without either package importing the
// other: Backend is declared here in terms of domain types only, and
// Sequencer's query methods (sequencer/query.go) happen to match it
// structurally.
type Backend interface {
	FinalBalance(addr types.Address) (amount.Amount, bool)
	CandidateBalance(addr types.Address) (amount.Amount, bool)
	FinalRolls(addr types.Address) uint64
	CandidateRolls(addr types.Address) uint64
	FinalDatastoreEntry(addr types.Address, key string) ([]byte, bool)
	CandidateDatastoreEntry(addr types.Address, key string) ([]byte, bool)
	FinalEvents() []types.Event
	CandidateEvents() []types.Event
	CycleActiveRolls(cycle uint64) map[types.Address]uint64
	ExecuteReadonly(sender types.Address, targetAddr *types.Address, bytecode []byte, maxGas uint64) (types.ExecutionOutput, error)
}

// EventFilter mirrors spec.md §6.1's get_filtered_events filter fields.
// A nil field matches every event.
type EventFilter struct {
	SlotStart   *types.Slot
	SlotEnd     *types.Slot
	EmitterAddr *types.Address
	CallerAddr  *types.Address
	OpID        *types.OperationId
	IsFinal     *bool
}

func (f EventFilter) matches(e types.Event, isFinal bool) bool {
	if f.IsFinal != nil && *f.IsFinal != isFinal {
		return false
	}
	if f.SlotStart != nil && e.Slot.Less(*f.SlotStart) {
		return false
	}
	if f.SlotEnd != nil && f.SlotEnd.Less(e.Slot) {
		return false
	}
	if f.EmitterAddr != nil && e.Emitter != *f.EmitterAddr {
		return false
	}
	if f.CallerAddr != nil && (e.Caller == nil || *e.Caller != *f.CallerAddr) {
		return false
	}
	if f.OpID != nil && (e.OriginOp == nil || *e.OriginOp != *f.OpID) {
		return false
	}
	return true
}

// FilteredEvents implements get_filtered_events: final events are scanned
// unless the filter pins is_final to false, candidate events unless it pins
// is_final to true.
func FilteredEvents(b Backend, f EventFilter) []types.Event {
	var out []types.Event
	if f.IsFinal == nil || *f.IsFinal {
		for _, e := range b.FinalEvents() {
			if f.matches(e, true) {
				out = append(out, e)
			}
		}
	}
	if f.IsFinal == nil || !*f.IsFinal {
		for _, e := range b.CandidateEvents() {
			if f.matches(e, false) {
				out = append(out, e)
			}
		}
	}
	return out
}
