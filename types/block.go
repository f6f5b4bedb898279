package types

import "github.com/qdrn/massa/internal/amount"

// OperationKind discriminates the typed operations the Slot Executor's
// block phase understands (spec.md §4.4 step 3).
type OperationKind int

const (
	OpTransaction OperationKind = iota
	OpRollBuy
	OpRollSell
	OpExecuteSC
	OpCallSC
)

// Operation is one block-included, fee-paying, at-most-once-executed
// action. Only the fields relevant to Kind are populated.
type Operation struct {
	Id           OperationId
	Sender       Address
	Fee          amount.Amount
	MaxGas       uint64
	ExpirePeriod uint64
	Kind         OperationKind

	// OpTransaction
	Recipient Address
	Amount    amount.Amount

	// OpRollBuy / OpRollSell
	RollCount uint64

	// OpExecuteSC
	Bytecode []byte

	// OpCallSC
	TargetAddr    Address
	TargetHandler string
	Param         []byte
	Coins         amount.Amount
}

// Thread returns the operation's thread, derived from its sender address.
func (op Operation) Thread(threadCount uint8) uint8 {
	return op.Sender.Thread(threadCount)
}

// ValidityStart returns the first period at which op may be included,
// given the configured number of validity periods.
func (op Operation) ValidityStart(opValidityPeriods uint64) uint64 {
	if op.ExpirePeriod < opValidityPeriods {
		return 0
	}
	return op.ExpirePeriod - opValidityPeriods
}

// Endorsement attests that EndorsedBlockCreator produced the block it
// endorses; Creator is the endorser rewarded for including it.
type Endorsement struct {
	Creator              Address
	EndorsedBlockCreator Address
}

// BlockPayload is the operation/endorsement content of a candidate block at
// a given slot, produced by the block graph and handed to the Slot
// Executor for execution.
type BlockPayload struct {
	Slot         Slot
	ProducerAddr Address
	Operations   []Operation
	Endorsements []Endorsement
}
