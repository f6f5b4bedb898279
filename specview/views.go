package specview

import (
	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/types"
)

// Views bundles the four Speculative Views an ExecutionContext reads and
// writes through while executing a single slot.
type Views struct {
	Ledger      *LedgerView
	AsyncPool   *AsyncPoolView
	Roll        *RollView
	ExecutedOps *ExecutedOpsView
}

// New composes a fresh set of views over fs and ah, as of immediately
// before the next slot to execute.
func New(fs *finalstate.FinalState, ah *activehistory.ActiveHistory, cfg config.Config) *Views {
	return &Views{
		Ledger:      newLedgerView(fs, ah),
		AsyncPool:   newAsyncPoolView(fs, ah, cfg.AsyncPoolCapacity),
		Roll:        newRollView(fs, ah),
		ExecutedOps: newExecutedOpsView(fs, ah),
	}
}

// Take consumes every view's staged buffer into a single StateChanges,
// suitable for pushing as one slot's ExecutionOutput onto active history.
func (v *Views) Take() types.StateChanges {
	return types.StateChanges{
		Ledger:      v.Ledger.Take(),
		AsyncPool:   v.AsyncPool.Take(),
		Roll:        v.Roll.Take(),
		ExecutedOps: v.ExecutedOps.Take(),
	}
}

// Snapshot is an opaque capture of every view's current buffer state,
// restorable with ResetTo. Used by the execution context to roll back a
// failed call without discarding the rest of the slot's work.
type Snapshot struct {
	ledger      types.LedgerChanges
	asyncPool   asyncPoolSnapshot
	roll        types.RollChanges
	executedOps types.ExecutedOpsChanges
}

// Snapshot captures every view's staged buffer.
func (v *Views) Snapshot() Snapshot {
	return Snapshot{
		ledger:      v.Ledger.Snapshot(),
		asyncPool:   v.AsyncPool.Snapshot(),
		roll:        v.Roll.Snapshot(),
		executedOps: v.ExecutedOps.Snapshot(),
	}
}

// ResetTo restores every view to a previously captured Snapshot.
func (v *Views) ResetTo(snap Snapshot) {
	v.Ledger.ResetTo(snap.ledger)
	v.AsyncPool.ResetTo(snap.asyncPool)
	v.Roll.ResetTo(snap.roll)
	v.ExecutedOps.ResetTo(snap.executedOps)
}
