package finalstate

import (
	"encoding/binary"

	"github.com/qdrn/massa/internal/statehash"
	"github.com/qdrn/massa/types"
)

const execOpsTag byte = 0

func execOpKey(op types.OperationId) []byte {
	k := make([]byte, 0, 1+types.HashLength)
	k = append(k, execOpsTag)
	return append(k, op.Bytes()...)
}

// ExecutedOpsStore is FinalState's at-most-once guard: a bounded set of
// OperationId each tagged with the slot at which it can be safely purged
// (its expiry), per spec.md's ExecutedOps data model.
type ExecutedOpsStore struct {
	// expiry maps an already-executed op to the slot after which it is no
	// longer at risk of re-inclusion and can be purged.
	expiry map[types.OperationId]types.Slot
	// byExpirySlot indexes ops by expiry slot for efficient pruning as the
	// final cursor advances.
	byExpirySlot map[types.Slot][]types.OperationId

	accum *statehash.Accumulator
}

func newExecutedOpsStore(accum *statehash.Accumulator) *ExecutedOpsStore {
	return &ExecutedOpsStore{
		expiry:       make(map[types.OperationId]types.Slot),
		byExpirySlot: make(map[types.Slot][]types.OperationId),
		accum:        accum,
	}
}

// IsExecuted reports whether op has already been recorded (at-most-once
// check).
func (s *ExecutedOpsStore) IsExecuted(op types.OperationId) bool {
	_, ok := s.expiry[op]
	return ok
}

// Insert records op as executed, valid (at risk of replay) until validUntil.
func (s *ExecutedOpsStore) Insert(op types.OperationId, validUntil types.Slot) {
	if _, ok := s.expiry[op]; ok {
		return
	}
	s.expiry[op] = validUntil
	s.byExpirySlot[validUntil] = append(s.byExpirySlot[validUntil], op)

	key := execOpKey(op)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], validUntil.Period)
	buf[8] = validUntil.Thread
	s.accum.Put(key, nil, buf[:9])
}

// Prune removes every executed op whose expiry slot is <= slot, since slots
// finalize monotonically and an op past its expire_period can never be
// replayed again. Returns the purged ids.
func (s *ExecutedOpsStore) Prune(slot types.Slot, threadCount uint8) []types.OperationId {
	var purged []types.OperationId
	for expirySlot, ops := range s.byExpirySlot {
		if slot.Less(expirySlot) {
			continue
		}
		for _, op := range ops {
			key := execOpKey(op)
			var buf [16]byte
			binary.BigEndian.PutUint64(buf[0:8], expirySlot.Period)
			buf[8] = expirySlot.Thread
			s.accum.Delete(key, buf[:9])
			delete(s.expiry, op)
		}
		delete(s.byExpirySlot, expirySlot)
		purged = append(purged, ops...)
	}
	return purged
}

// ApplyChanges records every operation inserted during a slot and then
// prunes everything expired as of that slot.
func (s *ExecutedOpsStore) ApplyChanges(slot types.Slot, threadCount uint8, changes types.ExecutedOpsChanges) {
	for op, validUntil := range changes.Inserted {
		s.Insert(op, validUntil)
	}
	s.Prune(slot, threadCount)
}
