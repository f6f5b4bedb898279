package types

import "github.com/qdrn/massa/internal/amount"

// Clone returns a deep copy of d, used when an execution context takes a
// snapshot of its speculative write buffers before entering a sub-call.
func (d *LedgerEntryDelta) Clone() *LedgerEntryDelta {
	c := &LedgerEntryDelta{
		DatastoreSets:    make(map[string][]byte, len(d.DatastoreSets)),
		DatastoreDeletes: make(map[string]bool, len(d.DatastoreDeletes)),
	}
	if d.SetBalance != nil {
		b := *d.SetBalance
		c.SetBalance = &b
	}
	if d.SetBytecode != nil {
		b := append([]byte(nil), (*d.SetBytecode)...)
		c.SetBytecode = &b
	}
	for k, v := range d.DatastoreSets {
		c.DatastoreSets[k] = append([]byte(nil), v...)
	}
	for k := range d.DatastoreDeletes {
		c.DatastoreDeletes[k] = true
	}
	return c
}

// Clone returns a deep copy of lc.
func (lc LedgerChanges) Clone() LedgerChanges {
	out := NewLedgerChanges()
	for a, d := range lc.Entries {
		out.Entries[a] = d.Clone()
	}
	return out
}

// Clone returns a deep copy of ac.
func (ac AsyncPoolChanges) Clone() AsyncPoolChanges {
	out := AsyncPoolChanges{
		Pushed:  append([]*AsyncMessage(nil), ac.Pushed...),
		Deleted: append([]AsyncMessageId(nil), ac.Deleted...),
	}
	return out
}

// Clone returns a deep copy of rc.
func (rc RollChanges) Clone() RollChanges {
	out := NewRollChanges()
	for a, v := range rc.RollCountDeltas {
		out.RollCountDeltas[a] = v
	}
	for s, m := range rc.DeferredCreditAdds {
		cm := make(map[Address]amount.Amount, len(m))
		for a, v := range m {
			cm[a] = v
		}
		out.DeferredCreditAdds[s] = cm
	}
	out.DeferredCreditConsumed = append([]Slot(nil), rc.DeferredCreditConsumed...)
	for a, v := range rc.ProductionStats {
		out.ProductionStats[a] = v
	}
	if rc.CycleSnapshot != nil {
		cs := *rc.CycleSnapshot
		rcCounts := make(map[Address]uint64, len(rc.CycleSnapshot.RollCounts))
		for a, v := range rc.CycleSnapshot.RollCounts {
			rcCounts[a] = v
		}
		cs.RollCounts = rcCounts
		out.CycleSnapshot = &cs
	}
	out.Slashed = append([]Address(nil), rc.Slashed...)
	return out
}

// Clone returns a deep copy of ec.
func (ec ExecutedOpsChanges) Clone() ExecutedOpsChanges {
	out := NewExecutedOpsChanges()
	for op, s := range ec.Inserted {
		out.Inserted[op] = s
	}
	return out
}

// Clone returns a deep copy of sc.
func (sc StateChanges) Clone() StateChanges {
	return StateChanges{
		Ledger:      sc.Ledger.Clone(),
		AsyncPool:   sc.AsyncPool.Clone(),
		Roll:        sc.Roll.Clone(),
		ExecutedOps: sc.ExecutedOps.Clone(),
	}
}
