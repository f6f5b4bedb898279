// Package statehash implements the BLAKE3 XOR-accumulator hash law used by
// FinalState: H(FS) is the XOR of BLAKE3(len_varint(k) || k || v) over every
// (key, value) pair present in any sub-store, plus a reserved "slot"
// contribution. XOR-accumulation makes the hash order-independent and
// incrementally updatable: inserting/removing a (k, v) pair only requires
// knowing that pair's own contribution, never a full rehash.
package statehash

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Length is the byte length of a state hash.
const Length = 32

// Hash is a 32-byte BLAKE3 XOR-accumulator value.
type Hash [Length]byte

// XOR combines o into h in place and returns h, for chaining.
func (h *Hash) XOR(o Hash) *Hash {
	for i := range h {
		h[i] ^= o[i]
	}
	return h
}

// Bytes returns the raw hash bytes.
func (h Hash) Bytes() []byte { return h[:] }

// Contribution computes BLAKE3(len_varint(key) || key || value), the
// per-entry contribution XORed in/out of a FinalState's accumulator on
// put/update/delete.
func Contribution(key, value []byte) Hash {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))

	hasher := blake3.New(Length, nil)
	hasher.Write(lenBuf[:n])
	hasher.Write(key)
	hasher.Write(value)

	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// Accumulator is a mutable XOR-accumulator over a set of keyed
// contributions. It is the building block each FinalState sub-store
// embeds to maintain its slice of H(FS).
type Accumulator struct {
	total Hash
}

// Put XOrs out the previous contribution for key (if any, via oldValue) and
// XORs in the new contribution for (key, newValue). Pass oldValue == nil for
// a fresh insert.
func (a *Accumulator) Put(key []byte, oldValue, newValue []byte) {
	if oldValue != nil {
		a.total.XOR(Contribution(key, oldValue))
	}
	a.total.XOR(Contribution(key, newValue))
}

// Delete XORs out the contribution of (key, value), removing it from the
// accumulator.
func (a *Accumulator) Delete(key, value []byte) {
	a.total.XOR(Contribution(key, value))
}

// Value returns the current accumulated hash.
func (a *Accumulator) Value() Hash {
	return a.total
}

// Reset clears the accumulator back to zero, used when rebuilding from a
// full key/value scan (e.g. bootstrap verification).
func (a *Accumulator) Reset() {
	a.total = Hash{}
}
