package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/execution"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/massaerrors"
	"github.com/qdrn/massa/specview"
	"github.com/qdrn/massa/types"
	"github.com/qdrn/massa/vm"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func newHost(t *testing.T) *execution.ExecutionContext {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 1
	fs := finalstate.New(cfg)
	require.NoError(t, fs.Finalize(types.NewSlot(0, 0), types.NewStateChanges()))
	ah := activehistory.New()
	views := specview.New(fs, ah, cfg)
	return execution.NewActiveSlot(types.NewSlot(1, 0), nil, views, cfg)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	to := testAddr(2)
	code := vm.Bytecode{
		{Op: vm.OpTransfer, To: &to, Amount: amount.FromUnits(3)},
		{Op: vm.OpSetData, Key: "k", Value: []byte("v")},
		{Op: vm.OpEmitEvent, Message: "hello"},
		{Op: vm.OpAddRolls, RollAddr: testAddr(3), RollN: 7},
		{Op: vm.OpSellRolls, RollAddr: testAddr(4), RollN: 2},
		{Op: vm.OpFail},
		{Op: vm.OpNop},
	}

	raw := vm.Encode(code)
	decoded, err := vm.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, code, decoded)
}

func TestDecodeTruncatedInputErrors(t *testing.T) {
	code := vm.Bytecode{{Op: vm.OpNop}}
	raw := vm.Encode(code)
	_, err := vm.Decode(raw[:len(raw)-2])
	require.Error(t, err)
}

func TestRunGasExhaustedWhenCodeExceedsLimit(t *testing.T) {
	host := newHost(t)
	code := vm.Bytecode{{Op: vm.OpNop}, {Op: vm.OpNop}, {Op: vm.OpNop}}
	err := vm.Run(host, testAddr(1), 2, code)
	require.ErrorIs(t, err, massaerrors.ErrOpGasExhausted)
}

func TestRunDispatchesEachOpcode(t *testing.T) {
	host := newHost(t)
	caller := testAddr(1)
	to := testAddr(2)
	host.Views.Ledger.SetBalance(caller, amount.FromUnits(10))
	host.PushFrame(caller, amount.Zero, []types.Address{caller})
	defer host.PopFrame()

	code := vm.Bytecode{
		{Op: vm.OpTransfer, To: &to, Amount: amount.FromUnits(4)},
		{Op: vm.OpSetData, Key: "k", Value: []byte("v")},
		{Op: vm.OpEmitEvent, Message: "done"},
		{Op: vm.OpAddRolls, RollAddr: caller, RollN: 3},
	}
	require.NoError(t, vm.Run(host, caller, 10, code))

	bal, _ := host.GetBalance(to)
	require.Equal(t, amount.FromUnits(4).String(), bal.String())

	val, ok := host.Views.Ledger.GetDatastoreEntry(caller, "k")
	require.True(t, ok)
	require.Equal(t, "v", string(val))

	require.Equal(t, uint64(3), host.Views.Roll.RollCount(caller))
	require.Len(t, host.Events(), 1)
	require.Equal(t, "done", host.Events()[0].Data)
}

func TestRunStopsOnFirstFailingInstructionAndWrapsError(t *testing.T) {
	host := newHost(t)
	caller := testAddr(1)
	code := vm.Bytecode{
		{Op: vm.OpEmitEvent, Message: "before"},
		{Op: vm.OpFail},
		{Op: vm.OpEmitEvent, Message: "after"},
	}
	err := vm.Run(host, caller, 10, code)
	require.ErrorIs(t, err, massaerrors.ErrRuntime)
	require.Len(t, host.Events(), 1)
}

func TestRunUnownedTransferFailsRights(t *testing.T) {
	host := newHost(t)
	caller := testAddr(1)
	to := testAddr(2)
	code := vm.Bytecode{{Op: vm.OpTransfer, To: &to, Amount: amount.FromUnits(1)}}
	err := vm.Run(host, caller, 10, code)
	require.ErrorIs(t, err, massaerrors.ErrRights)
}
