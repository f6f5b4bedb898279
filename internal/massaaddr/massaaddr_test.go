package massaaddr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/massaaddr"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func baseOp() types.Operation {
	return types.Operation{
		Sender:       testAddr(1),
		Fee:          amount.FromUnits(1),
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpTransaction,
		Recipient:    testAddr(2),
		Amount:       amount.FromUnits(3),
	}
}

func TestDeriveOperationIdDeterministic(t *testing.T) {
	op := baseOp()
	id1 := massaaddr.DeriveOperationId(op)
	id2 := massaaddr.DeriveOperationId(op)
	require.Equal(t, id1, id2)
	require.False(t, id1.IsZero())
}

func TestDeriveOperationIdContentSensitive(t *testing.T) {
	op := baseOp()
	base := massaaddr.DeriveOperationId(op)

	feeChanged := baseOp()
	feeChanged.Fee = amount.FromUnits(2)
	require.NotEqual(t, base, massaaddr.DeriveOperationId(feeChanged))

	recipientChanged := baseOp()
	recipientChanged.Recipient = testAddr(3)
	require.NotEqual(t, base, massaaddr.DeriveOperationId(recipientChanged))

	bytecodeChanged := baseOp()
	bytecodeChanged.Bytecode = []byte{1, 2, 3}
	require.NotEqual(t, base, massaaddr.DeriveOperationId(bytecodeChanged))
}

func TestDeriveOperationIdIgnoresExistingId(t *testing.T) {
	op := baseOp()
	op.Id = types.BytesToOperationId([]byte("whatever-the-caller-set"))
	require.Equal(t, massaaddr.DeriveOperationId(baseOp()), massaaddr.DeriveOperationId(op))
}

func TestDeriveEndorsementIdBindsSlot(t *testing.T) {
	e := types.Endorsement{Creator: testAddr(1), EndorsedBlockCreator: testAddr(2)}
	id1 := massaaddr.DeriveEndorsementId(types.NewSlot(1, 0), e)
	id2 := massaaddr.DeriveEndorsementId(types.NewSlot(2, 0), e)
	require.NotEqual(t, id1, id2)
	require.Equal(t, id1, massaaddr.DeriveEndorsementId(types.NewSlot(1, 0), e))
}

func TestDeriveBlockIdSensitiveToOperationOrder(t *testing.T) {
	opA := baseOp()
	opB := baseOp()
	opB.Recipient = testAddr(9)

	forward := types.BlockPayload{
		Slot:         types.NewSlot(1, 0),
		ProducerAddr: testAddr(4),
		Operations:   []types.Operation{opA, opB},
	}
	reversed := forward
	reversed.Operations = []types.Operation{opB, opA}

	require.NotEqual(t, massaaddr.DeriveBlockId(forward), massaaddr.DeriveBlockId(reversed))
	require.Equal(t, massaaddr.DeriveBlockId(forward), massaaddr.DeriveBlockId(forward))
}
