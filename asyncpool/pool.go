// Package asyncpool implements the Async Pool Core (spec.md §4.5): an
// ordered set of AsyncMessage keyed by AsyncMessageId, bounded to a
// configured capacity, supporting priority-ordered batch extraction and
// slot-boundary expiry settlement. It is grounded on the teacher's
// container/heap-based PriorityPool (pkg/txpool/priority.go), generalized
// from a single gas-price field to the spec's composite priority key.
package asyncpool

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/qdrn/massa/types"
)

// entry wraps a message with its heap index for O(1) removal, mirroring the
// teacher's priceEntry/priorityHeap pairing.
type entry struct {
	msg   *types.AsyncMessage
	id    types.AsyncMessageId
	index int
}

// idHeap is a max-heap ordered by AsyncMessageId.Less (highest priority
// first): Pop always yields the highest-priority remaining message.
type idHeap []*entry

func (h idHeap) Len() int { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i].id.Less(h[j].id) }
func (h idHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *idHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Cancelled is a message evicted or expired out of the pool without having
// executed; its Coins must be reimbursed to Sender by the caller.
type Cancelled struct {
	Msg *types.AsyncMessage
}

// Pool is a capacity-bounded, priority-ordered set of pending async
// messages. It backs both FinalState's async-pool sub-store and a
// speculative view's staged local pool; the same Core operations apply to
// both (spec.md §4.5).
type Pool struct {
	mu       sync.RWMutex
	capacity int
	h        idHeap
	index    map[types.AsyncMessageId]*entry
}

// New creates an empty Pool bounded to capacity entries (L in spec.md).
func New(capacity int) *Pool {
	p := &Pool{
		capacity: capacity,
		index:    make(map[types.AsyncMessageId]*entry),
	}
	heap.Init(&p.h)
	return p
}

// Len returns the number of messages currently held.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.h)
}

// Capacity returns the configured maximum size L (0 means unbounded).
func (p *Pool) Capacity() int {
	return p.capacity
}

// Push inserts msg, computing its priority id. If the pool is at capacity,
// the lowest-priority entry is evicted and returned as Cancelled for
// reimbursement by the caller (spec.md §4.5: "push... If size > L, evict the
// lowest-priority entry and cancel-reimburse it").
func (p *Pool) Push(msg *types.AsyncMessage) *Cancelled {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := types.IdOf(msg)
	e := &entry{msg: msg, id: id}
	heap.Push(&p.h, e)
	p.index[id] = e

	if p.capacity > 0 && len(p.h) > p.capacity {
		return p.evictLowestLocked()
	}
	return nil
}

// evictLowestLocked removes and returns the single lowest-priority entry.
// Caller must hold p.mu for writing. The lowest-priority entry is the last
// element in priority order; since idHeap is a max-heap we scan for the
// worst id directly (pool sizes are bounded by config so this linear scan
// is cheap and matches the teacher's findLowest pattern).
func (p *Pool) evictLowestLocked() *Cancelled {
	if len(p.h) == 0 {
		return nil
	}
	worst := 0
	for i := 1; i < len(p.h); i++ {
		if p.h[worst].id.Less(p.h[i].id) {
			worst = i
		}
	}
	victim := p.h[worst]
	heap.Remove(&p.h, victim.index)
	delete(p.index, victim.id)
	return &Cancelled{Msg: victim.msg}
}

// Remove deletes a specific message by id, if present. Returns true if it
// was found and removed.
func (p *Pool) Remove(id types.AsyncMessageId) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.index[id]
	if !ok {
		return false
	}
	heap.Remove(&p.h, e.index)
	delete(p.index, id)
	return true
}

// TakeBatch scans the pool in priority order and removes every message
// eligible for dispatch at slot (validity window contains slot, destination
// thread matches slot.Thread) until cumulative max_gas reaches maxGas.
// Removed messages are returned in priority order; they leave the pool
// immediately (spec.md §4.5: "Removed from the pool at this point").
func (p *Pool) TakeBatch(slot types.Slot, maxGas uint64, threadCount uint8) []*types.AsyncMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := p.orderedSnapshotLocked()

	var batch []*types.AsyncMessage
	var used uint64
	for _, e := range ordered {
		if used >= maxGas {
			break
		}
		if !e.msg.Eligible(slot, threadCount) {
			continue
		}
		if used+e.msg.MaxGas > maxGas {
			continue
		}
		used += e.msg.MaxGas
		batch = append(batch, e.msg)
		heap.Remove(&p.h, e.index)
		delete(p.index, e.id)
	}
	return batch
}

// SettleSlot removes every message whose validity window has closed as of
// slot (ValidityEnd <= slot) without ever having been dispatched, returning
// them for reimbursement. Messages are returned in priority order for
// deterministic reimbursement (spec.md's open question: "priority order is
// assumed; preserve deterministically").
func (p *Pool) SettleSlot(slot types.Slot) []*Cancelled {
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := p.orderedSnapshotLocked()
	var out []*Cancelled
	for _, e := range ordered {
		if e.msg.Expired(slot) {
			heap.Remove(&p.h, e.index)
			delete(p.index, e.id)
			out = append(out, &Cancelled{Msg: e.msg})
		}
	}
	return out
}

// orderedSnapshotLocked returns every entry sorted by priority
// (highest first), without mutating the heap. Caller must hold p.mu.
func (p *Pool) orderedSnapshotLocked() []*entry {
	cp := make(idHeap, len(p.h))
	copy(cp, p.h)
	// cp shares entry pointers with p.h but we only sort the copy's slice
	// order, not entry.index, so p.h's heap invariant is untouched.
	sortByPriorityDesc(cp)
	return cp
}

// All returns every message currently held, in priority order. Used for
// hash contribution enumeration and bootstrap.
func (p *Pool) All() []*types.AsyncMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ordered := p.orderedSnapshotLocked()
	out := make([]*types.AsyncMessage, len(ordered))
	for i, e := range ordered {
		out[i] = e.msg
	}
	return out
}

// Contains reports whether a message with the given id is present.
func (p *Pool) Contains(id types.AsyncMessageId) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[id]
	return ok
}

func sortByPriorityDesc(h idHeap) {
	sort.Slice(h, func(i, j int) bool { return h[i].id.Less(h[j].id) })
}
