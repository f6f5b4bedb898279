package specview

import (
	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/asyncpool"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/types"
)

// AsyncPoolView stages pushes/removals against a working copy of the async
// pool, composed once at construction from FS's final pool plus every
// AsyncPoolChanges recorded in active history, oldest first -- the pool
// state as of immediately before the slot this view serves.
type AsyncPoolView struct {
	working *asyncpool.Pool

	diffPushed  []*types.AsyncMessage
	diffDeleted []types.AsyncMessageId
}

func newAsyncPoolView(fs *finalstate.FinalState, ah *activehistory.ActiveHistory, capacity int) *AsyncPoolView {
	working := asyncpool.New(capacity)
	for _, m := range fs.AsyncPool.Pool().All() {
		working.Push(m)
	}
	for _, out := range ah.Snapshot() {
		for _, m := range out.StateChanges.AsyncPool.Pushed {
			working.Push(m)
		}
		for _, id := range out.StateChanges.AsyncPool.Deleted {
			working.Remove(id)
		}
	}
	return &AsyncPoolView{working: working}
}

// Push stages a new message. If the pool is at capacity this evicts the
// lowest-priority entry, returned here for the caller to reimburse.
func (v *AsyncPoolView) Push(msg *types.AsyncMessage) *asyncpool.Cancelled {
	v.diffPushed = append(v.diffPushed, msg)
	cancelled := v.working.Push(msg)
	if cancelled != nil {
		v.diffDeleted = append(v.diffDeleted, types.IdOf(cancelled.Msg))
	}
	return cancelled
}

// TakeBatch removes and returns every message eligible for dispatch at slot
// up to maxGas, in priority order.
func (v *AsyncPoolView) TakeBatch(slot types.Slot, maxGas uint64, threadCount uint8) []*types.AsyncMessage {
	batch := v.working.TakeBatch(slot, maxGas, threadCount)
	for _, m := range batch {
		v.diffDeleted = append(v.diffDeleted, types.IdOf(m))
	}
	return batch
}

// Settle removes and returns every message expired as of slot, for
// cancel-reimbursement.
func (v *AsyncPoolView) Settle(slot types.Slot) []*asyncpool.Cancelled {
	cancelled := v.working.SettleSlot(slot)
	for _, c := range cancelled {
		v.diffDeleted = append(v.diffDeleted, types.IdOf(c.Msg))
	}
	return cancelled
}

// All returns every message currently staged in the working pool, in
// priority order.
func (v *AsyncPoolView) All() []*types.AsyncMessage {
	return v.working.All()
}

// Contains reports whether id is present in the working pool.
func (v *AsyncPoolView) Contains(id types.AsyncMessageId) bool {
	return v.working.Contains(id)
}

// Take consumes and returns the staged AsyncPoolChanges, resetting the diff.
func (v *AsyncPoolView) Take() types.AsyncPoolChanges {
	out := types.AsyncPoolChanges{Pushed: v.diffPushed, Deleted: v.diffDeleted}
	v.diffPushed, v.diffDeleted = nil, nil
	return out
}

// asyncPoolSnapshot captures enough of the view's mutable state to restore
// it exactly: the full message set of the working pool (by value, since
// asyncpool.Pool offers no clone) plus the diff lengths so rollback can
// truncate them.
type asyncPoolSnapshot struct {
	messages     []*types.AsyncMessage
	capacity     int
	pushedLen    int
	deletedLen   int
}

// Snapshot returns an opaque capture of the view's current state.
func (v *AsyncPoolView) Snapshot() asyncPoolSnapshot {
	return asyncPoolSnapshot{
		messages:   v.working.All(),
		capacity:   v.working.Capacity(),
		pushedLen:  len(v.diffPushed),
		deletedLen: len(v.diffDeleted),
	}
}

// ResetTo restores the view to a previously captured snapshot, rebuilding
// the working pool from the captured message set and truncating the diff
// buffers back to their captured lengths.
func (v *AsyncPoolView) ResetTo(snap asyncPoolSnapshot) {
	rebuilt := asyncpool.New(snap.capacity)
	for _, m := range snap.messages {
		rebuilt.Push(m)
	}
	v.working = rebuilt
	if snap.pushedLen <= len(v.diffPushed) {
		v.diffPushed = v.diffPushed[:snap.pushedLen]
	}
	if snap.deletedLen <= len(v.diffDeleted) {
		v.diffDeleted = v.diffDeleted[:snap.deletedLen]
	}
}
