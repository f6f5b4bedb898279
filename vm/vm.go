// Package vm defines the host-call contract the execution pipeline exposes
// to contract code (HostAPI) and a minimal deterministic interpreter
// sufficient to drive the spec's testable scenarios without depending on a
// real WASM/bytecode runtime (spec.md explicitly scopes "VM bytecode
// semantics beyond host-call contract" out -- see Non-goals).
package vm

import (
	"fmt"

	"github.com/qdrn/massa/execution"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/types"
)

// HostAPI is the ABI surface an execution context exposes to contract code
// (spec.md §4.3's public-operations table). *execution.ExecutionContext
// satisfies this interface.
type HostAPI interface {
	GetBalance(types.Address) (amount.Amount, bool)
	Transfer(from, to *types.Address, amt amount.Amount, checkRights bool) error
	SetDataEntry(types.Address, string, []byte) error
	AppendDataEntry(types.Address, string, []byte) error
	DeleteDataEntry(types.Address, string) error
	SetBytecode(types.Address, []byte) error
	CreateNewSCAddress([]byte) types.Address
	PushNewMessage(*types.AsyncMessage)
	AddRolls(types.Address, int64)
	TrySellRolls(types.Address, uint64) error
	IsOpExecuted(types.OperationId) bool
	InsertExecutedOp(types.OperationId, types.Slot)
	EventEmit(types.Address, string, bool)
	PushFrame(types.Address, amount.Amount, []types.Address)
	PopFrame()
	GetSnapshot() execution.Snapshot
	ResetToSnapshot(execution.Snapshot, string)
}

// Op identifies one instruction of the minimal deterministic bytecode this
// interpreter runs. It stands in for real WASM opcodes: each Op maps
// directly onto one HostAPI call, enough to exercise every ABI operation
// spec.md §8's scenarios require.
type Op int

const (
	OpNop Op = iota
	OpTransfer
	OpSetData
	OpEmitEvent
	OpAddRolls
	OpSellRolls
	OpFail // unconditionally returns a runtime error, used to test rollback
)

// Instruction is one step of a contract's bytecode.
type Instruction struct {
	Op       Op
	To       *types.Address
	Amount   amount.Amount
	Key      string
	Value    []byte
	RollAddr types.Address
	RollN    uint64
	Message  string
}

// Bytecode is an ordered sequence of instructions, the unit
// ExecuteSC/CallSC invoke against a HostAPI.
type Bytecode []Instruction

// Run executes every instruction in order against host on behalf of
// caller, consuming gas 1-for-1 per instruction (a deliberately simple,
// deterministic gas model standing in for real metering). It stops and
// returns an error on the first failing instruction, including an explicit
// OpFail, without rolling back any state itself -- the caller
// (executor.SlotExecutor) owns snapshot/rollback around the whole call.
func Run(host HostAPI, caller types.Address, gasLimit uint64, code Bytecode) error {
	if uint64(len(code)) > gasLimit {
		return massaerrors.ErrOpGasExhausted
	}
	for i, ins := range code {
		if err := step(host, caller, ins); err != nil {
			return fmt.Errorf("vm: instruction %d: %w", i, err)
		}
	}
	return nil
}

func step(host HostAPI, caller types.Address, ins Instruction) error {
	switch ins.Op {
	case OpNop:
		return nil
	case OpTransfer:
		return host.Transfer(&caller, ins.To, ins.Amount, true)
	case OpSetData:
		return host.SetDataEntry(caller, ins.Key, ins.Value)
	case OpEmitEvent:
		host.EventEmit(caller, ins.Message, false)
		return nil
	case OpAddRolls:
		host.AddRolls(ins.RollAddr, int64(ins.RollN))
		return nil
	case OpSellRolls:
		return host.TrySellRolls(ins.RollAddr, ins.RollN)
	case OpFail:
		return massaerrors.ErrRuntime
	default:
		return fmt.Errorf("%w: unknown opcode %d", massaerrors.ErrRuntime, ins.Op)
	}
}
