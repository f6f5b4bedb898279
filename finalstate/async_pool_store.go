package finalstate

import (
	"github.com/qdrn/massa/asyncpool"
	"github.com/qdrn/massa/internal/statehash"
	"github.com/qdrn/massa/internal/wire"
	"github.com/qdrn/massa/types"
)

const asyncPoolTag byte = 0

func asyncMessageKey(id types.AsyncMessageId) []byte {
	k := make([]byte, 0, 1+32)
	k = append(k, asyncPoolTag)
	return append(k, wire.EncodeAsyncMessageId(id)...)
}

// AsyncPoolStore is FinalState's final (non-speculative) copy of the
// asynchronous message pool, wrapping asyncpool.Pool with hash-contribution
// bookkeeping.
type AsyncPoolStore struct {
	pool  *asyncpool.Pool
	accum *statehash.Accumulator
}

func newAsyncPoolStore(capacity int, accum *statehash.Accumulator) *AsyncPoolStore {
	return &AsyncPoolStore{pool: asyncpool.New(capacity), accum: accum}
}

// Pool exposes the underlying Async Pool Core for reads (TakeBatch is not
// meant to be called on the final pool directly by callers other than
// FinalState.ApplyChanges bookkeeping; the sequencer drives the speculative
// copy instead).
func (s *AsyncPoolStore) Pool() *asyncpool.Pool { return s.pool }

func (s *AsyncPoolStore) push(msg *types.AsyncMessage) *asyncpool.Cancelled {
	id := types.IdOf(msg)
	key := asyncMessageKey(id)
	s.accum.Put(key, nil, wire.EncodeAsyncMessage(msg))
	cancelled := s.pool.Push(msg)
	if cancelled != nil {
		cid := types.IdOf(cancelled.Msg)
		s.accum.Delete(asyncMessageKey(cid), wire.EncodeAsyncMessage(cancelled.Msg))
	}
	return cancelled
}

func (s *AsyncPoolStore) delete(id types.AsyncMessageId, msg *types.AsyncMessage) {
	if s.pool.Remove(id) {
		s.accum.Delete(asyncMessageKey(id), wire.EncodeAsyncMessage(msg))
	}
}

// ApplyChanges applies pushes then deletes, in that order, matching the
// order a slot's AsyncPoolChanges were produced (deletions staged by a slot
// can only target messages already present, including ones pushed earlier
// in the same delta in degenerate cases).
func (s *AsyncPoolStore) ApplyChanges(changes types.AsyncPoolChanges) {
	for _, msg := range changes.Pushed {
		s.push(msg)
	}
	for _, id := range changes.Deleted {
		// The message bytes are required to XOR the contribution back out;
		// look it up from the pool before removing it.
		for _, m := range s.pool.All() {
			if types.IdOf(m) == id {
				s.delete(id, m)
				break
			}
		}
	}
}
