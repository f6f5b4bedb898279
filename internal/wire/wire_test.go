package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/wire"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func TestSlotRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	slot := types.NewSlot(12345, 7)
	wire.EncodeSlot(&buf, slot)

	got, err := wire.DecodeSlot(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, slot, got)
}

func TestAmountRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	a := amount.FromUnits(42)
	wire.EncodeAmount(&buf, a)

	got, err := wire.DecodeAmount(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, a.String(), got.String())
}

func TestAddressRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	addr := testAddr(3)
	wire.EncodeAddress(&buf, addr)

	got, err := wire.DecodeAddress(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestAsyncMessageRoundTrip(t *testing.T) {
	m := &types.AsyncMessage{
		EmissionSlot:  types.NewSlot(1, 0),
		EmissionIndex: 4,
		Sender:        testAddr(1),
		Destination:   testAddr(2),
		Handler:       "on_receive",
		MaxGas:        1000,
		GasPrice:      amount.FromUnits(2),
		Coins:         amount.FromUnits(5),
		ValidityStart: types.NewSlot(1, 0),
		ValidityEnd:   types.NewSlot(10, 0),
		Data:          []byte("payload"),
	}

	raw := wire.EncodeAsyncMessage(m)
	got, err := wire.DecodeAsyncMessage(raw)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestAsyncMessageRoundTripEmptyData(t *testing.T) {
	m := &types.AsyncMessage{
		EmissionSlot:  types.NewSlot(0, 0),
		Sender:        testAddr(1),
		Destination:   testAddr(2),
		Handler:       "",
		ValidityStart: types.NewSlot(0, 0),
		ValidityEnd:   types.NewSlot(1, 0),
	}

	raw := wire.EncodeAsyncMessage(m)
	got, err := wire.DecodeAsyncMessage(raw)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestDecodeAsyncMessageTruncatedErrors(t *testing.T) {
	m := &types.AsyncMessage{
		EmissionSlot:  types.NewSlot(1, 0),
		Sender:        testAddr(1),
		Destination:   testAddr(2),
		Handler:       "h",
		ValidityStart: types.NewSlot(1, 0),
		ValidityEnd:   types.NewSlot(2, 0),
		Data:          []byte("x"),
	}
	raw := wire.EncodeAsyncMessage(m)
	_, err := wire.DecodeAsyncMessage(raw[:len(raw)-1])
	require.ErrorIs(t, err, wire.ErrTruncated)
}

func TestAsyncMessageIdEncodingOrdersByDescendingFeeRank(t *testing.T) {
	low := types.AsyncMessageId{FeeRank: amount.FromUnits(1), EmissionSlot: types.NewSlot(0, 0)}
	high := types.AsyncMessageId{FeeRank: amount.FromUnits(2), EmissionSlot: types.NewSlot(0, 0)}

	lowKey := wire.EncodeAsyncMessageId(low)
	highKey := wire.EncodeAsyncMessageId(high)

	require.True(t, bytes.Compare(highKey, lowKey) < 0, "higher fee rank must sort first byte-lexicographically")
}

func TestLedgerBootstrapRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := wire.LedgerBootstrapRecord{Key: []byte("addr-key"), Value: []byte("serialized-value")}
	wire.EncodeLedgerBootstrapRecord(&buf, rec)

	got, err := wire.DecodeLedgerBootstrapRecord(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestOperationRoundTripViaMassaaddrStability(t *testing.T) {
	op := types.Operation{
		Sender:       testAddr(1),
		Fee:          amount.FromUnits(1),
		MaxGas:       10,
		ExpirePeriod: 5,
		Kind:         types.OpTransaction,
		Recipient:    testAddr(2),
		Amount:       amount.FromUnits(3),
	}
	var bufA, bufB bytes.Buffer
	wire.EncodeOperation(&bufA, op)
	wire.EncodeOperation(&bufB, op)
	require.Equal(t, bufA.Bytes(), bufB.Bytes(), "encoding the same operation twice must be byte-identical")

	changed := op
	changed.Fee = amount.FromUnits(2)
	var bufC bytes.Buffer
	wire.EncodeOperation(&bufC, changed)
	require.NotEqual(t, bufA.Bytes(), bufC.Bytes())
}
