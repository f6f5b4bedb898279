package asyncpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/asyncpool"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func msg(sender types.Address, emissionIndex uint64, gasPrice amount.Amount, validityEnd types.Slot) *types.AsyncMessage {
	return &types.AsyncMessage{
		EmissionSlot:  types.NewSlot(0, 0),
		EmissionIndex: emissionIndex,
		Sender:        sender,
		Destination:   testAddr(9),
		Handler:       "handle",
		MaxGas:        10,
		GasPrice:      gasPrice,
		Coins:         amount.FromUnits(5),
		ValidityStart: types.NewSlot(0, 0),
		ValidityEnd:   validityEnd,
	}
}

func TestPushEvictsLowestPriorityAboveCapacity(t *testing.T) {
	p := asyncpool.New(2)

	low := msg(testAddr(1), 0, amount.FromUnits(1), types.NewSlot(100, 0))
	mid := msg(testAddr(2), 1, amount.FromUnits(2), types.NewSlot(100, 0))
	high := msg(testAddr(3), 2, amount.FromUnits(3), types.NewSlot(100, 0))

	require.Nil(t, p.Push(low))
	require.Nil(t, p.Push(mid))

	cancelled := p.Push(high)
	require.NotNil(t, cancelled, "pushing above capacity must evict and report a cancellation for reimbursement")
	require.Equal(t, testAddr(1), cancelled.Msg.Sender, "the lowest-fee message must be the one evicted")
	require.Equal(t, 2, p.Len())
}

func TestTakeBatchRespectsGasBudgetAndEligibility(t *testing.T) {
	p := asyncpool.New(0)

	// testAddr(9).Thread(2) == 1, matching the destination thread queried below.
	eligible := msg(testAddr(1), 0, amount.FromUnits(2), types.NewSlot(10, 0))
	wrongThread := msg(testAddr(2), 1, amount.FromUnits(3), types.NewSlot(10, 0))
	wrongThread.Destination = testAddr(8) // testAddr(8).Thread(2) == 0, not 1

	require.Nil(t, p.Push(eligible))
	require.Nil(t, p.Push(wrongThread))

	batch := p.TakeBatch(types.NewSlot(1, 1), 10, 2)
	require.Len(t, batch, 1)
	require.Equal(t, testAddr(1), batch[0].Sender)
	require.Equal(t, 1, p.Len(), "only the dispatched message leaves the pool")
}

func TestAsyncReimbursement(t *testing.T) {
	p := asyncpool.New(0)

	expiring := msg(testAddr(1), 0, amount.FromUnits(1), types.NewSlot(5, 0))
	stillValid := msg(testAddr(2), 1, amount.FromUnits(1), types.NewSlot(50, 0))

	require.Nil(t, p.Push(expiring))
	require.Nil(t, p.Push(stillValid))

	cancelled := p.SettleSlot(types.NewSlot(5, 0))
	require.Len(t, cancelled, 1)
	require.Equal(t, testAddr(1), cancelled[0].Msg.Sender)
	require.Equal(t, amount.FromUnits(5).String(), cancelled[0].Msg.Coins.String(), "Coins must survive eviction so the caller can reimburse the full amount")
	require.Equal(t, 1, p.Len())
	require.True(t, p.Contains(types.IdOf(stillValid)))
}

func TestRemoveAndContains(t *testing.T) {
	p := asyncpool.New(0)
	m := msg(testAddr(1), 0, amount.FromUnits(1), types.NewSlot(50, 0))
	id := types.IdOf(m)

	require.Nil(t, p.Push(m))
	require.True(t, p.Contains(id))
	require.True(t, p.Remove(id))
	require.False(t, p.Contains(id))
	require.False(t, p.Remove(id))
}

func TestAllReturnsPriorityOrder(t *testing.T) {
	p := asyncpool.New(0)
	low := msg(testAddr(1), 0, amount.FromUnits(1), types.NewSlot(50, 0))
	high := msg(testAddr(2), 1, amount.FromUnits(9), types.NewSlot(50, 0))

	require.Nil(t, p.Push(low))
	require.Nil(t, p.Push(high))

	all := p.All()
	require.Len(t, all, 2)
	require.Equal(t, testAddr(2), all[0].Sender, "higher fee rank must sort first")
	require.Equal(t, testAddr(1), all[1].Sender)
}
