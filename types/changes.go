package types

import "github.com/qdrn/massa/internal/amount"

// LedgerEntryDelta captures the mutations staged against a single address's
// ledger entry during one slot. A nil SetBalance/SetBytecode means "no
// change to that field"; DatastoreSets/DatastoreDeletes are additive to
// whatever the address already had.
type LedgerEntryDelta struct {
	SetBalance       *amount.Amount
	SetBytecode      *[]byte
	DatastoreSets    map[string][]byte
	DatastoreDeletes map[string]bool
}

// LedgerChanges aggregates every address touched during one slot.
type LedgerChanges struct {
	Entries map[Address]*LedgerEntryDelta
}

// NewLedgerChanges returns an empty LedgerChanges.
func NewLedgerChanges() LedgerChanges {
	return LedgerChanges{Entries: make(map[Address]*LedgerEntryDelta)}
}

func (lc *LedgerChanges) entry(a Address) *LedgerEntryDelta {
	if lc.Entries == nil {
		lc.Entries = make(map[Address]*LedgerEntryDelta)
	}
	d, ok := lc.Entries[a]
	if !ok {
		d = &LedgerEntryDelta{
			DatastoreSets:    make(map[string][]byte),
			DatastoreDeletes: make(map[string]bool),
		}
		lc.Entries[a] = d
	}
	return d
}

// SetBalance stages a balance overwrite for address a.
func (lc *LedgerChanges) SetBalance(a Address, bal amount.Amount) {
	d := lc.entry(a)
	d.SetBalance = &bal
}

// SetBytecode stages a bytecode overwrite for address a.
func (lc *LedgerChanges) SetBytecode(a Address, code []byte) {
	d := lc.entry(a)
	cp := append([]byte(nil), code...)
	d.SetBytecode = &cp
}

// SetDatastoreEntry stages a datastore write for address a.
func (lc *LedgerChanges) SetDatastoreEntry(a Address, key string, value []byte) {
	d := lc.entry(a)
	delete(d.DatastoreDeletes, key)
	d.DatastoreSets[key] = append([]byte(nil), value...)
}

// DeleteDatastoreEntry stages a datastore tombstone for address a.
func (lc *LedgerChanges) DeleteDatastoreEntry(a Address, key string) {
	d := lc.entry(a)
	delete(d.DatastoreSets, key)
	d.DatastoreDeletes[key] = true
}

// Merge folds `other` on top of lc, with `other`'s entries taking priority
// (used when composing a newer slot's changes over an older one while
// scanning active history back to front is not applicable; Merge is used to
// build a single combined view when needed, e.g. tests).
func (lc *LedgerChanges) Merge(other LedgerChanges) {
	for a, d := range other.Entries {
		cur := lc.entry(a)
		if d.SetBalance != nil {
			cur.SetBalance = d.SetBalance
		}
		if d.SetBytecode != nil {
			cur.SetBytecode = d.SetBytecode
		}
		for k, v := range d.DatastoreSets {
			delete(cur.DatastoreDeletes, k)
			cur.DatastoreSets[k] = v
		}
		for k := range d.DatastoreDeletes {
			delete(cur.DatastoreSets, k)
			cur.DatastoreDeletes[k] = true
		}
	}
}

// AsyncPoolChanges aggregates messages added to or removed from the async
// pool during one slot.
type AsyncPoolChanges struct {
	Pushed  []*AsyncMessage
	Deleted []AsyncMessageId
}

// CycleSnapshot is the end-of-cycle roll_counts snapshot retained for the
// selector's 3-cycle lookback.
type CycleSnapshot struct {
	Cycle       uint64
	RollCounts  map[Address]uint64
	RngSeed     []byte
	FinalHashAt [32]byte
}

// ProductionStatDelta captures a production success/miss increment for one
// address during one slot.
type ProductionStatDelta struct {
	Ok  uint64
	Nok uint64
}

// RollChanges aggregates roll, deferred-credit and production-stat mutations
// staged during one slot.
type RollChanges struct {
	RollCountDeltas map[Address]int64
	// DeferredCreditAdds[slot][addr] stages a new deferred credit.
	DeferredCreditAdds map[Slot]map[Address]amount.Amount
	// DeferredCreditConsumed records slots whose deferred credits were paid
	// out (or burned on failure) during this slot, so FS.finalize removes
	// them from DeferredCredits.
	DeferredCreditConsumed []Slot
	ProductionStats         map[Address]ProductionStatDelta
	// CycleSnapshot is non-nil only on the last slot of a cycle.
	CycleSnapshot *CycleSnapshot
	// Slashed lists addresses whose roll_counts were zeroed by end-of-cycle
	// slashing this slot.
	Slashed []Address
}

// NewRollChanges returns an empty RollChanges.
func NewRollChanges() RollChanges {
	return RollChanges{
		RollCountDeltas:    make(map[Address]int64),
		DeferredCreditAdds: make(map[Slot]map[Address]amount.Amount),
		ProductionStats:    make(map[Address]ProductionStatDelta),
	}
}

// AddRolls stages a roll count delta (positive or negative) for addr.
func (rc *RollChanges) AddRolls(addr Address, delta int64) {
	rc.RollCountDeltas[addr] += delta
}

// AddDeferredCredit stages a deferred credit of amt to addr payable at slot.
func (rc *RollChanges) AddDeferredCredit(slot Slot, addr Address, amt amount.Amount) {
	m, ok := rc.DeferredCreditAdds[slot]
	if !ok {
		m = make(map[Address]amount.Amount)
		rc.DeferredCreditAdds[slot] = m
	}
	m[addr] = m[addr].SaturatingAdd(amt)
}

// MarkProduced increments the ok (true) or nok (false) counter for addr.
func (rc *RollChanges) MarkProduced(addr Address, ok bool) {
	d := rc.ProductionStats[addr]
	if ok {
		d.Ok++
	} else {
		d.Nok++
	}
	rc.ProductionStats[addr] = d
}

// ExecutedOpsChanges aggregates operation-id insertions staged during one
// slot (purges happen implicitly as FS.finalize advances past expiry and
// are not represented here -- see finalstate.ExecutedOpsStore.Prune).
type ExecutedOpsChanges struct {
	Inserted map[OperationId]Slot // operation id -> expiry slot
}

// NewExecutedOpsChanges returns an empty ExecutedOpsChanges.
func NewExecutedOpsChanges() ExecutedOpsChanges {
	return ExecutedOpsChanges{Inserted: make(map[OperationId]Slot)}
}

// Insert stages op as executed, expiring at validUntil.
func (ec *ExecutedOpsChanges) Insert(op OperationId, validUntil Slot) {
	ec.Inserted[op] = validUntil
}

// StateChanges aggregates every sub-store's deltas produced at one slot, the
// unit FS.finalize consumes and AH stores inside each ExecutionOutput.
type StateChanges struct {
	Ledger      LedgerChanges
	AsyncPool   AsyncPoolChanges
	Roll        RollChanges
	ExecutedOps ExecutedOpsChanges
}

// NewStateChanges returns an empty, ready-to-use StateChanges.
func NewStateChanges() StateChanges {
	return StateChanges{
		Ledger:      NewLedgerChanges(),
		Roll:        NewRollChanges(),
		ExecutedOps: NewExecutedOpsChanges(),
	}
}

// Event is a contract-emitted log entry.
type Event struct {
	IndexInSlot uint64
	Slot        Slot
	Emitter     Address
	Caller      *Address
	OriginOp    *OperationId
	Data        string
	IsError     bool
}

// ExecutionOutput is the result of executing one slot: the aggregated state
// changes plus the events emitted while producing them.
type ExecutionOutput struct {
	Slot        Slot
	OptBlockId  *BlockId
	StateChanges StateChanges
	Events      []Event
}
