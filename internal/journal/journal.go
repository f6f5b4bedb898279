// Package journal implements the bounded (slot, StateChanges) change
// journal finalstate retains for bootstrap streaming (spec.md §4.1). Ring
// is an in-memory, fixed-depth backing store; SPEC_FULL.md's Domain Stack
// table names github.com/cockroachdb/pebble as the mainnet-scale option for
// this same interface (an actual LSM KV rather than a bare slice, matching
// how the teacher's core/rawdb expects a real engine underneath), but the
// bounded depth K used here (10 entries by default) never needs
// durable-across-restart storage -- FinalState is rebuilt from bootstrap
// streaming on restart, so pebble stays an unwired, deliberately dropped
// dependency (see DESIGN.md). Ring exposes the same Append/Since shape a
// pebble-backed implementation would, so swapping the backing store later
// does not change any caller.
package journal

import "github.com/qdrn/massa/types"

// Entry is one retained (slot, StateChanges, events) tuple.
type Entry struct {
	Slot    types.Slot
	Changes types.StateChanges
	Events  []types.Event
}

// Ring is a depth-bounded, append-only journal of Entry values, oldest
// first, evicting the oldest entries once depth is exceeded.
type Ring struct {
	depth   int
	entries []Entry
}

// NewRing constructs a Ring retaining at most depth entries.
func NewRing(depth int) *Ring {
	return &Ring{depth: depth}
}

// Append adds e to the journal, evicting the oldest entries above depth.
// Eviction is not an error condition (spec.md §4.1 failure semantics).
func (r *Ring) Append(e Entry) {
	r.entries = append(r.entries, e)
	if len(r.entries) > r.depth {
		excess := len(r.entries) - r.depth
		r.entries = r.entries[excess:]
	}
}

// Since returns every entry whose slot is strictly after since, oldest
// first.
func (r *Ring) Since(since types.Slot) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if since.Less(e.Slot) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports how many entries the journal currently retains.
func (r *Ring) Len() int {
	return len(r.entries)
}

// All returns every retained entry, oldest first.
func (r *Ring) All() []Entry {
	return r.entries
}
