package execution

import (
	"github.com/qdrn/massa/specview"
	"github.com/qdrn/massa/types"
)

// Snapshot captures everything an ExecutionContext needs to roll back a
// failed sub-call without discarding the rest of the slot's work: the
// staged view buffers, the created_* counters, the call stack, the event
// store and the RNG state (spec.md §4.3 get_snapshot/reset_to_snapshot).
type Snapshot struct {
	views               specview.Snapshot
	createdAddrIndex    uint64
	createdEventIndex   uint64
	createdMessageIndex uint64
	stack               []*CallFrame
	events              []types.Event
	rngState            [4]uint64
}

// GetSnapshot captures the context's current state.
func (ec *ExecutionContext) GetSnapshot() Snapshot {
	stackCopy := make([]*CallFrame, len(ec.stack))
	for i, f := range ec.stack {
		cp := &CallFrame{
			Address:            f.Address,
			Coins:              f.Coins,
			OwnedAddresses:     append([]types.Address(nil), f.OwnedAddresses...),
			OperationDatastore: make(map[string][]byte, len(f.OperationDatastore)),
		}
		for k, v := range f.OperationDatastore {
			cp.OperationDatastore[k] = append([]byte(nil), v...)
		}
		stackCopy[i] = cp
	}
	return Snapshot{
		views:               ec.Views.Snapshot(),
		createdAddrIndex:    ec.createdAddrIndex,
		createdEventIndex:   ec.createdEventIndex,
		createdMessageIndex: ec.createdMessageIndex,
		stack:               stackCopy,
		events:              append([]types.Event(nil), ec.events...),
		rngState:            ec.rng.State(),
	}
}

// ResetToSnapshot restores the context to a previously captured snapshot.
// If errMsg is non-empty, an error event is emitted after the reset,
// matching the ABI's "err?" parameter.
func (ec *ExecutionContext) ResetToSnapshot(s Snapshot, errMsg string) {
	ec.Views.ResetTo(s.views)
	ec.createdAddrIndex = s.createdAddrIndex
	ec.createdEventIndex = s.createdEventIndex
	ec.createdMessageIndex = s.createdMessageIndex
	ec.stack = s.stack
	ec.events = s.events
	ec.rng.SetState(s.rngState)

	if errMsg != "" {
		var emitter types.Address
		if top := ec.top(); top != nil {
			emitter = top.Address
		}
		ec.EventEmit(emitter, errMsg, true)
	}
}
