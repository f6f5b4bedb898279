// Package execution implements the Execution Context (spec.md §4.3): the
// per-slot transactional scope exposing the ABI a contract VM uses to read
// and mutate speculative state, plus snapshot/rollback and settle_slot.
package execution

import (
	"bytes"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/internal/wire"
	"github.com/qdrn/massa/internal/xlog"
	"github.com/qdrn/massa/internal/xoshiro"
	"github.com/qdrn/massa/specview"
	"github.com/qdrn/massa/types"
)

// CallFrame is one entry of the execution context's call stack. The top
// frame's OwnedAddresses defines the current write-access scope.
type CallFrame struct {
	Address           types.Address
	Coins             amount.Amount
	OwnedAddresses    []types.Address
	OperationDatastore map[string][]byte
}

func (f *CallFrame) owns(a types.Address) bool {
	for _, o := range f.OwnedAddresses {
		if o == a {
			return true
		}
	}
	return false
}

// ExecutionContext is the per-slot transactional scope. It is owned
// exclusively by the component driving one slot's execution (the Slot
// Executor) for the duration of that slot and never shared.
type ExecutionContext struct {
	cfg  config.Config
	log  *xlog.Logger

	Slot        types.Slot
	OptBlockID  *types.BlockId
	MaxGas      uint64
	GasPrice    amount.Amount
	ReadOnly    bool

	OriginOperationID *types.OperationId
	CreatorAddress    *types.Address

	stack []*CallFrame
	rng   *xoshiro.Rng
	events []types.Event

	createdAddrIndex    uint64
	createdEventIndex   uint64
	createdMessageIndex uint64

	Views *specview.Views
}

// seed computes BLAKE3(slot.bytes || mode_byte || opt_block_id.bytes?),
// mode_byte = 0 for read-only, 1 for active (spec.md §4.3).
func seed(slot types.Slot, readOnly bool, blockID *types.BlockId) [32]byte {
	var buf bytes.Buffer
	wire.EncodeSlot(&buf, slot)
	if readOnly {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
	}
	if blockID != nil {
		buf.Write(blockID.Bytes())
	}
	h := blake3.Sum256(buf.Bytes())
	return h
}

// newContext builds an ExecutionContext shared by NewActiveSlot and
// NewReadOnlySlot.
func newContext(slot types.Slot, blockID *types.BlockId, readOnly bool, views *specview.Views, cfg config.Config) *ExecutionContext {
	return &ExecutionContext{
		cfg:        cfg,
		log:        xlog.Default().Module("execution"),
		Slot:       slot,
		OptBlockID: blockID,
		ReadOnly:   readOnly,
		rng:        xoshiro.New(seed(slot, readOnly, blockID)),
		Views:      views,
	}
}

// NewActiveSlot constructs an ExecutionContext for driving real slot
// execution (async batch, block operations, rewards).
func NewActiveSlot(slot types.Slot, blockID *types.BlockId, views *specview.Views, cfg config.Config) *ExecutionContext {
	return newContext(slot, blockID, false, views, cfg)
}

// NewReadOnlySlot constructs an ExecutionContext for a read-only call
// (e.g. execute_readonly RPC): its address-creation stream is guaranteed
// never to collide with any active execution's, since mode_byte differs.
func NewReadOnlySlot(slot types.Slot, views *specview.Views, cfg config.Config) *ExecutionContext {
	return newContext(slot, nil, true, views, cfg)
}

// PushFrame pushes a new call frame, making addr the write-access scope.
func (ec *ExecutionContext) PushFrame(addr types.Address, coins amount.Amount, owned []types.Address) {
	ec.stack = append(ec.stack, &CallFrame{
		Address:            addr,
		Coins:              coins,
		OwnedAddresses:     append([]types.Address(nil), owned...),
		OperationDatastore: make(map[string][]byte),
	})
}

// PopFrame pops the top call frame.
func (ec *ExecutionContext) PopFrame() {
	if len(ec.stack) == 0 {
		return
	}
	ec.stack = ec.stack[:len(ec.stack)-1]
}

// top returns the current top-of-stack frame, or nil if the stack is empty.
func (ec *ExecutionContext) top() *CallFrame {
	if len(ec.stack) == 0 {
		return nil
	}
	return ec.stack[len(ec.stack)-1]
}

// GetBalance returns addr's speculative balance.
func (ec *ExecutionContext) GetBalance(addr types.Address) (amount.Amount, bool) {
	return ec.Views.Ledger.GetBalance(addr)
}

// Config returns the configuration this context executes under.
func (ec *ExecutionContext) Config() config.Config {
	return ec.cfg
}

// GetBytecode returns addr's speculative bytecode.
func (ec *ExecutionContext) GetBytecode(addr types.Address) ([]byte, bool) {
	return ec.Views.Ledger.GetBytecode(addr)
}

// Transfer debits from and credits to by amt. If checkRights is true and
// from is set, from must be in the top frame's owned_addresses.
func (ec *ExecutionContext) Transfer(from, to *types.Address, amt amount.Amount, checkRights bool) error {
	if from != nil {
		if checkRights {
			top := ec.top()
			if top == nil || !top.owns(*from) {
				return massaerrors.ErrRights
			}
		}
		bal, _ := ec.Views.Ledger.GetBalance(*from)
		next, err := bal.CheckedSub(amt)
		if err != nil {
			return fmt.Errorf("%w: %s", massaerrors.ErrBalance, err)
		}
		ec.Views.Ledger.SetBalance(*from, next)
	}
	if to != nil {
		bal, _ := ec.Views.Ledger.GetBalance(*to)
		ec.Views.Ledger.SetBalance(*to, bal.SaturatingAdd(amt))
	}
	return nil
}

// SetDataEntry writes a ∈ top.owned_addresses's datastore at k.
func (ec *ExecutionContext) SetDataEntry(a types.Address, k string, v []byte) error {
	if err := ec.checkOwnership(a); err != nil {
		return err
	}
	if len(k) > ec.cfg.MaxDatastoreKeyBytes || len(v) > ec.cfg.MaxDatastoreValueBytes {
		return massaerrors.ErrPayloadTooLarge
	}
	ec.Views.Ledger.SetDatastoreEntry(a, k, v)
	return nil
}

// AppendDataEntry concatenates v onto an existing datastore entry.
func (ec *ExecutionContext) AppendDataEntry(a types.Address, k string, v []byte) error {
	if err := ec.checkOwnership(a); err != nil {
		return err
	}
	cur, ok := ec.Views.Ledger.GetDatastoreEntry(a, k)
	if !ok {
		return massaerrors.ErrMissingEntry
	}
	next := append(append([]byte(nil), cur...), v...)
	if len(next) > ec.cfg.MaxDatastoreValueBytes {
		return massaerrors.ErrPayloadTooLarge
	}
	ec.Views.Ledger.SetDatastoreEntry(a, k, next)
	return nil
}

// DeleteDataEntry removes a datastore entry.
func (ec *ExecutionContext) DeleteDataEntry(a types.Address, k string) error {
	if err := ec.checkOwnership(a); err != nil {
		return err
	}
	if _, ok := ec.Views.Ledger.GetDatastoreEntry(a, k); !ok {
		return massaerrors.ErrMissingEntry
	}
	ec.Views.Ledger.DeleteDatastoreEntry(a, k)
	return nil
}

// SetBytecode writes a's bytecode. a must not be the creator address of
// this context's originating operation: a non-SC account cannot become SC.
func (ec *ExecutionContext) SetBytecode(a types.Address, bc []byte) error {
	if err := ec.checkOwnership(a); err != nil {
		return err
	}
	if ec.CreatorAddress != nil && a == *ec.CreatorAddress {
		return massaerrors.ErrRights
	}
	if len(bc) > ec.cfg.MaxBytecodeBytes {
		return massaerrors.ErrPayloadTooLarge
	}
	ec.Views.Ledger.SetBytecode(a, bc)
	return nil
}

func (ec *ExecutionContext) checkOwnership(a types.Address) error {
	top := ec.top()
	if top == nil || !top.owns(a) {
		return massaerrors.ErrRights
	}
	return nil
}

// CreateNewSCAddress derives a = H(slot || created_addr_index || ro_flag),
// inserts an empty ledger entry with bc as bytecode, pushes a into the top
// frame's owned_addresses, and advances created_addr_index.
func (ec *ExecutionContext) CreateNewSCAddress(bc []byte) types.Address {
	var buf bytes.Buffer
	wire.EncodeSlot(&buf, ec.Slot)
	wire.PutUvarint(&buf, ec.createdAddrIndex)
	if ec.ReadOnly {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
	}
	h := blake3.Sum256(buf.Bytes())
	addr := types.BytesToAddress(h[:])

	ec.Views.Ledger.SetBalance(addr, amount.Zero)
	ec.Views.Ledger.SetBytecode(addr, bc)
	ec.createdAddrIndex++

	if top := ec.top(); top != nil {
		top.OwnedAddresses = append(top.OwnedAddresses, addr)
	}
	return addr
}

// PushNewMessage stages m into the speculative async pool, stamping
// EmissionIndex from created_message_index and advancing it. If pushing
// evicts a lower-priority message, that message's sender is reimbursed
// immediately via an unchecked transfer (spec.md §4.5 "cancel-reimburse").
func (ec *ExecutionContext) PushNewMessage(m *types.AsyncMessage) {
	m.EmissionSlot = ec.Slot
	m.EmissionIndex = ec.createdMessageIndex
	ec.createdMessageIndex++

	cancelled := ec.Views.AsyncPool.Push(m)
	if cancelled != nil {
		if err := ec.Transfer(nil, &cancelled.Msg.Sender, cancelled.Msg.Coins, false); err != nil {
			ec.log.Warn("reimbursement on eviction failed", "err", err)
		}
	}
}

// AddRolls increments addr's roll count by n (n may be negative; its callers
// pass n >= 0, and end-of-cycle slashing goes through Views.Roll.Slash
// instead).
func (ec *ExecutionContext) AddRolls(addr types.Address, n int64) {
	ec.Views.Roll.AddRolls(addr, n)
}

// TrySellRolls decrements addr's roll count by n and schedules a deferred
// credit of n*RollPrice payable sell_refund_delay cycles from now.
func (ec *ExecutionContext) TrySellRolls(addr types.Address, n uint64) error {
	if ec.Views.Roll.RollCount(addr) < n {
		return massaerrors.ErrInsufficientRolls
	}
	refund, err := ec.cfg.RollPrice.CheckedMulUint64(n)
	if err != nil {
		return fmt.Errorf("%w: %s", massaerrors.ErrRollPriceOverflow, err)
	}
	ec.Views.Roll.AddRolls(addr, -int64(n))
	payoutSlot := addPeriods(ec.Slot, ec.cfg.SellRefundDelayCycles*ec.cfg.PeriodsPerCycle, ec.cfg.ThreadCount)
	ec.Views.Roll.AddDeferredCredit(payoutSlot, addr, refund)
	return nil
}

// addPeriods advances s by the given number of periods, keeping the thread
// fixed (deferred credits are always paid in the same thread they were
// scheduled from).
func addPeriods(s types.Slot, periods uint64, threadCount uint8) types.Slot {
	return types.NewSlot(s.Period+periods, s.Thread)
}

// IsOpExecuted reports whether op has already been recorded.
func (ec *ExecutionContext) IsOpExecuted(op types.OperationId) bool {
	return ec.Views.ExecutedOps.IsExecuted(op)
}

// InsertExecutedOp records op as executed until validUntil.
func (ec *ExecutionContext) InsertExecutedOp(op types.OperationId, validUntil types.Slot) {
	ec.Views.ExecutedOps.Insert(op, validUntil)
}

// EventEmit stamps e with index_in_slot and appends it to the event store.
func (ec *ExecutionContext) EventEmit(emitter types.Address, data string, isError bool) {
	e := types.Event{
		IndexInSlot: ec.createdEventIndex,
		Slot:        ec.Slot,
		Emitter:     emitter,
		Data:        data,
		IsError:     isError,
		OriginOp:    ec.OriginOperationID,
	}
	if top := ec.top(); top != nil {
		caller := top.Address
		e.Caller = &caller
	}
	ec.events = append(ec.events, e)
	ec.createdEventIndex++
}

// Events returns every event emitted so far this slot.
func (ec *ExecutionContext) Events() []types.Event {
	return ec.events
}
