package types

import "encoding/hex"

const (
	// HashLength is the byte length of all content-hash identifiers.
	HashLength = 32
	// AddressLength is the byte length of an Address.
	AddressLength = 32
)

// Address is a 32-byte content hash identifying an account. Thread derives
// the execution thread an address belongs to.
type Address [AddressLength]byte

// Thread returns the thread this address belongs to under the given thread
// count: thread(addr) = addr[0] mod T.
func (a Address) Thread(threadCount uint8) uint8 {
	return a[0] % threadCount
}

// Bytes returns the raw bytes of the address.
func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool { return a == Address{} }

// String renders the address as a hex string.
func (a Address) String() string { return "A" + hex.EncodeToString(a[:]) }

// BytesToAddress converts raw bytes to an Address, left-truncating /
// left-padding as needed. Used by create_new_sc_address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// contentHashID is the shared representation backing OperationId, BlockId
// and EndorsementId: opaque 32-byte content hashes with no further
// structure, per spec.md's data model.
type contentHashID [HashLength]byte

// Bytes returns the raw hash bytes.
func (c contentHashID) Bytes() []byte { return c[:] }

// String renders the id as a hex string.
func (c contentHashID) String() string { return hex.EncodeToString(c[:]) }

// IsZero reports whether the id is the zero value.
func (c contentHashID) IsZero() bool { return c == contentHashID{} }

// OperationId identifies a single operation by content hash.
type OperationId struct{ contentHashID }

// BlockId identifies a single block by content hash.
type BlockId struct{ contentHashID }

// EndorsementId identifies a single endorsement by content hash.
type EndorsementId struct{ contentHashID }

// BytesToOperationId wraps raw bytes into an OperationId.
func BytesToOperationId(b []byte) (id OperationId) {
	copy(id.contentHashID[:], b)
	return id
}

// BytesToBlockId wraps raw bytes into a BlockId.
func BytesToBlockId(b []byte) (id BlockId) {
	copy(id.contentHashID[:], b)
	return id
}

// BytesToEndorsementId wraps raw bytes into an EndorsementId.
func BytesToEndorsementId(b []byte) (id EndorsementId) {
	copy(id.contentHashID[:], b)
	return id
}
