package types

import "github.com/qdrn/massa/internal/amount"

// AsyncMessage is a scheduled future cross-contract call, stored in the
// asynchronous message pool until it becomes eligible for dispatch at a
// slot within [ValidityStart, ValidityEnd).
type AsyncMessage struct {
	EmissionSlot  Slot
	EmissionIndex uint64
	Sender        Address
	Destination   Address
	Handler       string
	MaxGas        uint64
	GasPrice      amount.Amount
	Coins         amount.Amount
	ValidityStart Slot
	ValidityEnd   Slot
	Data          []byte
}

// AsyncMessageId is the pool's priority key: highest fee first, then oldest
// emission slot first, then lowest emission index first. It implements a
// total order: no two distinct messages share a key, since EmissionIndex is
// unique per EmissionSlot.
type AsyncMessageId struct {
	// FeeRank is max_gas * gas_price. Higher FeeRank sorts first; callers
	// compare it directly (not inverted) and flip the comparison, mirroring
	// the wire encoding in internal/wire which does invert the bits so that
	// byte-lexicographic order matches this Go-level Less order.
	FeeRank       amount.Amount
	EmissionSlot  Slot
	EmissionIndex uint64
}

// IdOf computes the AsyncMessageId of a message, given the fee rank
// max_gas*gas_price. Overflow saturates to the maximum representable value
// so a pathological fee can never wrap around to "lowest priority".
func IdOf(m *AsyncMessage) AsyncMessageId {
	feeRank, err := m.GasPrice.CheckedMulUint64(m.MaxGas)
	if err != nil {
		feeRank = amount.FromMantissa(^uint64(0))
	}
	return AsyncMessageId{
		FeeRank:       feeRank,
		EmissionSlot:  m.EmissionSlot,
		EmissionIndex: m.EmissionIndex,
	}
}

// Less orders ids by descending FeeRank, then ascending EmissionSlot, then
// ascending EmissionIndex -- the pool's total priority order.
func (id AsyncMessageId) Less(o AsyncMessageId) bool {
	if c := id.FeeRank.Cmp(o.FeeRank); c != 0 {
		return c > 0 // higher fee sorts first
	}
	if !id.EmissionSlot.Equal(o.EmissionSlot) {
		return id.EmissionSlot.Less(o.EmissionSlot) // older slot sorts first
	}
	return id.EmissionIndex < o.EmissionIndex // lower index sorts first
}

// Eligible reports whether the message may be dispatched at slot s: s falls
// within [ValidityStart, ValidityEnd) and the destination thread matches
// s.Thread.
func (m *AsyncMessage) Eligible(s Slot, threadCount uint8) bool {
	inWindow := !s.Less(m.ValidityStart) && s.Less(m.ValidityEnd)
	return inWindow && m.Destination.Thread(threadCount) == s.Thread
}

// Expired reports whether the message's validity window has closed as of
// slot s (ValidityEnd <= s), meaning it should be purged and reimbursed
// rather than ever dispatched.
func (m *AsyncMessage) Expired(s Slot) bool {
	return !s.Less(m.ValidityEnd)
}
