// Package activehistory implements the Active History (spec.md §4.2): an
// ordered sequence of speculative ExecutionOutput layered above FinalState,
// supporting lookup, truncate and finalize. Grounded on the teacher's
// tracker-over-ordered-slice idiom in core/state/conflict_detector.go and
// core/state/tracker.go (sequential index + scan-based lookup).
package activehistory

import (
	"fmt"
	"sync"

	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/types"
)

// Lookup is the three-case read result of a speculative view lookup:
// Present means a value was found, Absent means a tombstone (explicit
// deletion) was found, NoInfo means no mutation was observed and the
// caller must fall through to the next layer (older AH entries, then FS).
type Lookup int

const (
	NoInfo Lookup = iota
	Present
	Absent
)

// ActiveHistory is the ordered deque of speculative ExecutionOutput, oldest
// at front (index 0), newest at back. It is safe for concurrent use: the
// sequencer is the sole writer (push/pop_front/truncate_from/clear), while
// speculative views, RPC and bootstrap read concurrently.
type ActiveHistory struct {
	mu      sync.RWMutex
	outputs []types.ExecutionOutput
}

// New returns an empty ActiveHistory.
func New() *ActiveHistory {
	return &ActiveHistory{}
}

// Len returns the number of outputs currently held.
func (ah *ActiveHistory) Len() int {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	return len(ah.outputs)
}

// Front returns the oldest output, and ok=false if AH is empty.
func (ah *ActiveHistory) Front() (types.ExecutionOutput, bool) {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	if len(ah.outputs) == 0 {
		return types.ExecutionOutput{}, false
	}
	return ah.outputs[0], true
}

// Back returns the newest output, and ok=false if AH is empty.
func (ah *ActiveHistory) Back() (types.ExecutionOutput, bool) {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	if len(ah.outputs) == 0 {
		return types.ExecutionOutput{}, false
	}
	return ah.outputs[len(ah.outputs)-1], true
}

// Push appends output. It requires output.Slot to be exactly one slot past
// the current back (or past finalSlot if AH is empty), matching spec.md's
// "push(output): appends; requires output.slot = AH.back.slot.next() (or
// FS.slot.next() if empty)".
func (ah *ActiveHistory) Push(output types.ExecutionOutput, finalSlot types.Slot, threadCount uint8) error {
	ah.mu.Lock()
	defer ah.mu.Unlock()

	var expected types.Slot
	if len(ah.outputs) == 0 {
		expected = finalSlot.Next(threadCount)
	} else {
		expected = ah.outputs[len(ah.outputs)-1].Slot.Next(threadCount)
	}
	if !output.Slot.Equal(expected) {
		return fmt.Errorf("activehistory: push slot %s does not follow expected %s", output.Slot, expected)
	}
	ah.outputs = append(ah.outputs, output)
	return nil
}

// PopFront releases the oldest output, used on finalization.
func (ah *ActiveHistory) PopFront() (types.ExecutionOutput, error) {
	ah.mu.Lock()
	defer ah.mu.Unlock()
	if len(ah.outputs) == 0 {
		return types.ExecutionOutput{}, massaerrors.ErrMissingEntry
	}
	out := ah.outputs[0]
	ah.outputs = ah.outputs[1:]
	return out, nil
}

// TruncateFrom drops outputs[i..] where outputs[i].Slot == slot, used on a
// block-clique switch. It is a no-op if slot is not present.
func (ah *ActiveHistory) TruncateFrom(slot types.Slot) {
	ah.mu.Lock()
	defer ah.mu.Unlock()
	for i, out := range ah.outputs {
		if out.Slot.Equal(slot) {
			ah.outputs = ah.outputs[:i]
			return
		}
	}
}

// Clear drops every output, used when finalization must replay a slot that
// diverges from the current active history.
func (ah *ActiveHistory) Clear() {
	ah.mu.Lock()
	defer ah.mu.Unlock()
	ah.outputs = nil
}

// Snapshot returns every output currently held, oldest first. The returned
// slice is a copy safe to range over without holding the lock.
func (ah *ActiveHistory) Snapshot() []types.ExecutionOutput {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	out := make([]types.ExecutionOutput, len(ah.outputs))
	copy(out, ah.outputs)
	return out
}

// ForEachNewestFirst calls fn with each output from back to front, stopping
// early if fn returns false. This is the scan order every speculative view
// read uses: "scan from back to front, return the first match."
func (ah *ActiveHistory) ForEachNewestFirst(fn func(out types.ExecutionOutput) bool) {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	for i := len(ah.outputs) - 1; i >= 0; i-- {
		if !fn(ah.outputs[i]) {
			return
		}
	}
}
