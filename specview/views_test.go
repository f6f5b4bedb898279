package specview

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func newFixture(t *testing.T) (*finalstate.FinalState, *activehistory.ActiveHistory, config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 1
	fs := finalstate.New(cfg)
	ah := activehistory.New()
	return fs, ah, cfg
}

func TestLedgerViewReadsThroughLocalThenAHThenFS(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	addr := testAddr(1)

	finalChanges := types.NewStateChanges()
	finalChanges.Ledger.SetBalance(addr, amount.FromUnits(10))
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), finalChanges))

	ahChanges := types.NewStateChanges()
	ahChanges.Ledger.SetBalance(addr, amount.FromUnits(20))
	require.NoError(t, ah.Push(types.ExecutionOutput{Slot: types.NewSlot(2, 0), StateChanges: ahChanges}, types.NewSlot(1, 0), cfg.ThreadCount))

	v := New(fs, ah, cfg)

	bal, ok := v.Ledger.GetBalance(addr)
	require.True(t, ok)
	require.Equal(t, amount.FromUnits(20).String(), bal.String())

	v.Ledger.SetBalance(addr, amount.FromUnits(30))
	bal, ok = v.Ledger.GetBalance(addr)
	require.True(t, ok)
	require.Equal(t, amount.FromUnits(30).String(), bal.String())

	other := testAddr(2)
	_, ok = v.Ledger.GetBalance(other)
	require.False(t, ok)
}

func TestLedgerViewDatastoreTombstoneStopsFallThrough(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	addr := testAddr(3)

	finalChanges := types.NewStateChanges()
	finalChanges.Ledger.SetDatastoreEntry(addr, "k", []byte("v1"))
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), finalChanges))

	ahChanges := types.NewStateChanges()
	ahChanges.Ledger.DeleteDatastoreEntry(addr, "k")
	require.NoError(t, ah.Push(types.ExecutionOutput{Slot: types.NewSlot(2, 0), StateChanges: ahChanges}, types.NewSlot(1, 0), cfg.ThreadCount))

	v := New(fs, ah, cfg)
	_, ok := v.Ledger.GetDatastoreEntry(addr, "k")
	require.False(t, ok, "a tombstone in active history must shadow the final value")
}

func TestLedgerViewTakeResetsBuffer(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	v := New(fs, ah, cfg)
	addr := testAddr(4)

	v.Ledger.SetBalance(addr, amount.FromUnits(5))
	changes := v.Take()
	require.Contains(t, changes.Ledger.Entries, addr)

	_, ok := v.Ledger.GetBalance(addr)
	require.False(t, ok, "Take must reset the local buffer")
}

func TestLedgerViewSnapshotResetTo(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	v := New(fs, ah, cfg)
	addr := testAddr(5)

	v.Ledger.SetBalance(addr, amount.FromUnits(1))
	snap := v.Snapshot()

	v.Ledger.SetBalance(addr, amount.FromUnits(99))
	bal, _ := v.Ledger.GetBalance(addr)
	require.Equal(t, amount.FromUnits(99).String(), bal.String())

	v.ResetTo(snap)
	bal, _ = v.Ledger.GetBalance(addr)
	require.Equal(t, amount.FromUnits(1).String(), bal.String())
}

func TestAsyncPoolViewPushTakeBatchAndTake(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	v := New(fs, ah, cfg)

	msg := &types.AsyncMessage{
		EmissionSlot:  types.NewSlot(0, 0),
		Sender:        testAddr(1),
		Destination:   testAddr(2),
		Handler:       "handle",
		MaxGas:        100,
		GasPrice:      amount.FromMantissa(1),
		ValidityStart: types.NewSlot(0, 0),
		ValidityEnd:   types.NewSlot(100, 0),
	}
	v.AsyncPool.Push(msg)
	require.Equal(t, 1, len(v.AsyncPool.All()))

	batch := v.AsyncPool.TakeBatch(types.NewSlot(1, msg.Destination.Thread(cfg.ThreadCount)), 1000, cfg.ThreadCount)
	require.Len(t, batch, 1)
	require.Equal(t, 0, len(v.AsyncPool.All()))

	changes := v.Take()
	require.Len(t, changes.AsyncPool.Pushed, 1)
	require.Len(t, changes.AsyncPool.Deleted, 1)
}

func TestAsyncPoolViewSnapshotResetTo(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	v := New(fs, ah, cfg)

	msg := &types.AsyncMessage{
		EmissionSlot:  types.NewSlot(0, 0),
		Sender:        testAddr(1),
		Destination:   testAddr(2),
		Handler:       "handle",
		MaxGas:        100,
		GasPrice:      amount.FromMantissa(1),
		ValidityStart: types.NewSlot(0, 0),
		ValidityEnd:   types.NewSlot(100, 0),
	}
	snap := v.Snapshot()
	v.AsyncPool.Push(msg)
	require.Equal(t, 1, len(v.AsyncPool.All()))

	v.ResetTo(snap)
	require.Equal(t, 0, len(v.AsyncPool.All()))
}

func TestRollViewAccumulatesAcrossLayers(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	addr := testAddr(6)

	finalChanges := types.NewStateChanges()
	finalChanges.Roll.AddRolls(addr, 5)
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), finalChanges))

	ahChanges := types.NewStateChanges()
	ahChanges.Roll.AddRolls(addr, 2)
	require.NoError(t, ah.Push(types.ExecutionOutput{Slot: types.NewSlot(2, 0), StateChanges: ahChanges}, types.NewSlot(1, 0), cfg.ThreadCount))

	v := New(fs, ah, cfg)
	require.Equal(t, uint64(7), v.Roll.RollCount(addr))

	v.Roll.AddRolls(addr, -3)
	require.Equal(t, uint64(4), v.Roll.RollCount(addr))
}

func TestExecutedOpsViewAtMostOnce(t *testing.T) {
	fs, ah, cfg := newFixture(t)
	v := New(fs, ah, cfg)
	op := types.BytesToOperationId([]byte("op-1"))

	require.False(t, v.ExecutedOps.IsExecuted(op))
	v.ExecutedOps.Insert(op, types.NewSlot(10, 0))
	require.True(t, v.ExecutedOps.IsExecuted(op))

	changes := v.Take()
	require.Contains(t, changes.ExecutedOps.Inserted, op)
}
