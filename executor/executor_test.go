package executor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/executor"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/types"
	"github.com/qdrn/massa/vm"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func newFixture(t *testing.T) (*executor.SlotExecutor, *finalstate.FinalState, config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 1

	fs := finalstate.New(cfg)
	require.NoError(t, fs.Finalize(types.NewSlot(0, 0), types.NewStateChanges()))

	ah := activehistory.New()
	sel := selector.New(fs.Roll, cfg)
	return executor.New(fs, ah, cfg, sel), fs, cfg
}

// TestFeeBurnOnFailingOp mirrors spec.md §8 scenario 1: balance(A)=10, a fee=1
// op whose body unconditionally fails leaves balance(A)=9, records the op as
// executed, and emits exactly one error event.
func TestFeeBurnOnFailingOp(t *testing.T) {
	se, fs, cfg := newFixture(t)

	sender := testAddr(1)
	genesis := types.NewStateChanges()
	genesis.Ledger.SetBalance(sender, amount.FromUnits(10))
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), genesis))

	code := vm.Encode(vm.Bytecode{{Op: vm.OpFail}})
	op := types.Operation{
		Id:           types.BytesToOperationId([]byte("op-fail")),
		Sender:       sender,
		Fee:          amount.FromUnits(1),
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpExecuteSC,
		Bytecode:     code,
	}
	payload := &types.BlockPayload{
		Slot:         types.NewSlot(2, 0),
		ProducerAddr: types.Address{},
		Operations:   []types.Operation{op},
	}

	out, err := se.ExecuteSlot(types.NewSlot(2, 0), nil, payload)
	require.NoError(t, err)

	entry, ok := out.StateChanges.Ledger.Entries[sender]
	require.True(t, ok)
	require.NotNil(t, entry.SetBalance)
	require.Equal(t, amount.FromUnits(9).String(), entry.SetBalance.String())

	require.Contains(t, out.StateChanges.ExecutedOps.Inserted, op.Id)

	var errorEvents int
	for _, e := range out.Events {
		if e.IsError {
			errorEvents++
		}
	}
	require.Equal(t, 1, errorEvents)
	_ = cfg
}

// TestAtMostOnceExecution ensures a duplicated operation within the same
// block is only ever applied once (spec.md §8 scenario 4).
func TestAtMostOnceExecution(t *testing.T) {
	se, fs, _ := newFixture(t)

	sender := testAddr(1)
	recipient := testAddr(2)
	genesis := types.NewStateChanges()
	genesis.Ledger.SetBalance(sender, amount.FromUnits(100))
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), genesis))

	op := types.Operation{
		Id:           types.BytesToOperationId([]byte("op-dup")),
		Sender:       sender,
		Fee:          amount.Zero,
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpTransaction,
		Recipient:    recipient,
		Amount:       amount.FromUnits(10),
	}
	payload := &types.BlockPayload{
		Slot:         types.NewSlot(2, 0),
		ProducerAddr: types.Address{},
		Operations:   []types.Operation{op, op},
	}

	out, err := se.ExecuteSlot(types.NewSlot(2, 0), nil, payload)
	require.NoError(t, err)

	entry, ok := out.StateChanges.Ledger.Entries[recipient]
	require.True(t, ok)
	require.NotNil(t, entry.SetBalance)
	require.Equal(t, amount.FromUnits(10).String(), entry.SetBalance.String())
}

// TestRollSellDeferredCredit checks that selling rolls schedules a deferred
// credit payable sell_refund_delay cycles later rather than an immediate one
// (spec.md §8 scenario 5).
func TestRollSellDeferredCredit(t *testing.T) {
	se, fs, cfg := newFixture(t)

	sender := testAddr(1)
	genesis := types.NewStateChanges()
	genesis.Roll.AddRolls(sender, 5)
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), genesis))

	op := types.Operation{
		Id:           types.BytesToOperationId([]byte("op-sell")),
		Sender:       sender,
		Fee:          amount.Zero,
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpRollSell,
		RollCount:    5,
	}
	payload := &types.BlockPayload{
		Slot:         types.NewSlot(2, 0),
		ProducerAddr: types.Address{},
		Operations:   []types.Operation{op},
	}

	out, err := se.ExecuteSlot(types.NewSlot(2, 0), nil, payload)
	require.NoError(t, err)

	require.Equal(t, int64(-5), out.StateChanges.Roll.RollCountDeltas[sender])
	require.NotEmpty(t, out.StateChanges.Roll.DeferredCreditAdds)

	payoutSlot := types.NewSlot(2+cfg.SellRefundDelayCycles*cfg.PeriodsPerCycle, 0)
	credits, ok := out.StateChanges.Roll.DeferredCreditAdds[payoutSlot]
	require.True(t, ok)
	require.Contains(t, credits, sender)
}
