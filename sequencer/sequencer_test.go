package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/activehistory"
	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/metrics"
	"github.com/qdrn/massa/selector"
	"github.com/qdrn/massa/specview"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func newTestSequencer(t *testing.T, genesisSecondsAgo int64) (*Sequencer, *finalstate.FinalState, *activehistory.ActiveHistory, config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ThreadCount = 1

	sender := testAddr(1)
	fs := finalstate.New(cfg)
	genesisChanges := types.NewStateChanges()
	genesisChanges.Ledger.SetBalance(sender, amount.FromUnits(1000))
	require.NoError(t, fs.Finalize(types.NewSlot(0, 0), genesisChanges))

	ah := activehistory.New()
	sel := selector.New(fs.Roll, cfg)
	clk := NewClock(time.Now().Unix()-genesisSecondsAgo, 1000, cfg.ThreadCount)

	sq := New(fs, ah, cfg, sel, clk, metrics.New())
	return sq, fs, ah, cfg
}

func TestCandidatePolicyExecutesMissSlotsUpToNow(t *testing.T) {
	sq, _, ah, _ := newTestSequencer(t, 4)

	sq.runCandidatePolicy()

	require.False(t, sq.activeCursor.Less(types.NewSlot(1, 0)))
	require.Greater(t, ah.Len(), 0)
	require.Equal(t, types.NewSlot(0, 0), sq.finalCursor)
}

func TestCandidatePolicyExecutesBlockAndFinalizationReplaysIt(t *testing.T) {
	sq, fs, ah, cfg := newTestSequencer(t, 4)

	sender := testAddr(1)
	recipient := testAddr(2)
	blockID := types.BytesToBlockId([]byte("block-1"))

	op := types.Operation{
		Id:           types.BytesToOperationId([]byte("op-1")),
		Sender:       sender,
		Fee:          amount.FromUnits(1),
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpTransaction,
		Recipient:    recipient,
		Amount:       amount.FromUnits(10),
	}
	payload := &types.BlockPayload{
		Slot:         types.NewSlot(1, 0),
		ProducerAddr: types.Address{},
		Operations:   []types.Operation{op},
	}

	sq.blockclique = map[types.Slot]types.BlockId{types.NewSlot(1, 0): blockID}
	sq.storage = map[types.BlockId]*types.BlockPayload{blockID: payload}

	sq.runCandidatePolicy()
	require.Greater(t, ah.Len(), 0)

	views := specview.New(fs, ah, cfg)
	bal, ok := views.Ledger.GetBalance(recipient)
	require.True(t, ok)
	require.Equal(t, amount.FromUnits(10).String(), bal.String())

	_, ok = fs.GetBalance(recipient)
	require.False(t, ok, "recipient balance must not be visible in FS before finalization")

	sq.runFinalizationPolicy(map[types.Slot]types.BlockId{types.NewSlot(1, 0): blockID})

	require.Equal(t, types.NewSlot(1, 0), sq.finalCursor)
	finalBal, ok := fs.GetBalance(recipient)
	require.True(t, ok)
	require.Equal(t, amount.FromUnits(10).String(), finalBal.String())
}

// TestBlockCliqueSwitch exercises spec.md §4.7's truncate-and-replay path:
// a later blockclique update naming a different block at an already-executed
// candidate slot must discard that slot's speculative effects from AH and
// re-execute against the new block, rather than keeping the stale output.
func TestBlockCliqueSwitch(t *testing.T) {
	sq, fs, ah, cfg := newTestSequencer(t, 4)

	sender := testAddr(1)
	recipientA := testAddr(2)
	recipientB := testAddr(3)
	blockIDA := types.BytesToBlockId([]byte("block-a"))
	blockIDB := types.BytesToBlockId([]byte("block-b"))

	opA := types.Operation{
		Id:           types.BytesToOperationId([]byte("op-a")),
		Sender:       sender,
		Fee:          amount.FromUnits(1),
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpTransaction,
		Recipient:    recipientA,
		Amount:       amount.FromUnits(10),
	}
	payloadA := &types.BlockPayload{
		Slot:         types.NewSlot(1, 0),
		ProducerAddr: types.Address{},
		Operations:   []types.Operation{opA},
	}

	sq.blockclique = map[types.Slot]types.BlockId{types.NewSlot(1, 0): blockIDA}
	sq.storage = map[types.BlockId]*types.BlockPayload{blockIDA: payloadA}
	sq.runCandidatePolicy()

	views := specview.New(fs, ah, cfg)
	bal, ok := views.Ledger.GetBalance(recipientA)
	require.True(t, ok)
	require.Equal(t, amount.FromUnits(10).String(), bal.String())

	// The block graph reorgs: slot 1 now resolves to a different block.
	opB := types.Operation{
		Id:           types.BytesToOperationId([]byte("op-b")),
		Sender:       sender,
		Fee:          amount.FromUnits(1),
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpTransaction,
		Recipient:    recipientB,
		Amount:       amount.FromUnits(20),
	}
	payloadB := &types.BlockPayload{
		Slot:         types.NewSlot(1, 0),
		ProducerAddr: types.Address{},
		Operations:   []types.Operation{opB},
	}
	sq.blockclique = map[types.Slot]types.BlockId{types.NewSlot(1, 0): blockIDB}
	sq.storage[blockIDB] = payloadB
	sq.runCandidatePolicy()

	views = specview.New(fs, ah, cfg)
	_, ok = views.Ledger.GetBalance(recipientA)
	require.False(t, ok, "the stale block's effects must be discarded on replay")

	bal, ok = views.Ledger.GetBalance(recipientB)
	require.True(t, ok)
	require.Equal(t, amount.FromUnits(20).String(), bal.String())
}

func TestUpdateBlockcliqueReturnsErrSequencerBusyWhenFull(t *testing.T) {
	sq, _, _, _ := newTestSequencer(t, 1)

	var lastErr error
	for i := 0; i < cmdQueueDepth+1; i++ {
		lastErr = sq.UpdateBlockclique(nil, nil, nil)
	}
	require.Error(t, lastErr)
}
