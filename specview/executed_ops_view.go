package specview

import (
	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/types"
)

// ExecutedOpsView layers staged operation insertions over active history and
// FinalState's at-most-once guard.
type ExecutedOpsView struct {
	fs    *finalstate.FinalState
	ah    *activehistory.ActiveHistory
	local types.ExecutedOpsChanges
}

func newExecutedOpsView(fs *finalstate.FinalState, ah *activehistory.ActiveHistory) *ExecutedOpsView {
	return &ExecutedOpsView{fs: fs, ah: ah, local: types.NewExecutedOpsChanges()}
}

// IsExecuted reports whether op has already been recorded, checked local,
// then active history, then FinalState -- matching the at-most-once
// guard's "insert if and only if is_op_executed(op) is false" contract.
func (v *ExecutedOpsView) IsExecuted(op types.OperationId) bool {
	if _, ok := v.local.Inserted[op]; ok {
		return true
	}
	hit := false
	v.ah.ForEachNewestFirst(func(out types.ExecutionOutput) bool {
		if _, ok := out.StateChanges.ExecutedOps.Inserted[op]; ok {
			hit = true
			return false
		}
		return true
	})
	if hit {
		return true
	}
	return v.fs.ExecutedOps.IsExecuted(op)
}

// Insert stages op as executed, expiring at validUntil.
func (v *ExecutedOpsView) Insert(op types.OperationId, validUntil types.Slot) {
	v.local.Insert(op, validUntil)
}

// Take consumes and returns the staged ExecutedOpsChanges, resetting the
// buffer.
func (v *ExecutedOpsView) Take() types.ExecutedOpsChanges {
	out := v.local
	v.local = types.NewExecutedOpsChanges()
	return out
}

// Snapshot returns a deep copy of the currently staged buffer.
func (v *ExecutedOpsView) Snapshot() types.ExecutedOpsChanges {
	return v.local.Clone()
}

// ResetTo restores the staged buffer to a previously captured snapshot.
func (v *ExecutedOpsView) ResetTo(snap types.ExecutedOpsChanges) {
	v.local = snap.Clone()
}
