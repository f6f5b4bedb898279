// Package massaaddr derives the content-hash identifiers of objects whose
// canonical bytes originate outside the execution engine proper — submitted
// operations, candidate blocks, and endorsements — as opposed to the
// BLAKE3-based hashes spec.md defines internally for the Final State and
// for create_new_sc_address (see internal/statehash and execution's own
// seeding, which stay on BLAKE3 because the spec pins that algorithm
// explicitly). Keccak-256 here mirrors the teacher's own content-addressing
// choice (golang.org/x/crypto/sha3, used throughout its crypto/core/vm
// packages) for everything the spec itself leaves unspecified.
package massaaddr

import (
	"bytes"

	"golang.org/x/crypto/sha3"

	"github.com/qdrn/massa/internal/wire"
	"github.com/qdrn/massa/types"
)

// DeriveOperationId computes the canonical OperationId of op from its
// content, independent of whatever Id field it may already carry.
func DeriveOperationId(op types.Operation) types.OperationId {
	var buf bytes.Buffer
	wire.EncodeOperation(&buf, op)
	h := sha3.Sum256(buf.Bytes())
	return types.BytesToOperationId(h[:])
}

// DeriveEndorsementId computes the canonical EndorsementId of an
// endorsement attesting the given slot.
func DeriveEndorsementId(slot types.Slot, e types.Endorsement) types.EndorsementId {
	var buf bytes.Buffer
	wire.EncodeEndorsement(&buf, slot, e)
	h := sha3.Sum256(buf.Bytes())
	return types.BytesToEndorsementId(h[:])
}

// DeriveBlockId computes the canonical BlockId of a block payload: the hash
// of its slot, producer, and the content hashes of every operation and
// endorsement it carries. Operations and endorsements are hashed
// positionally, so reordering them changes the id: block order is
// consensus-significant, unlike the Final State's order-independent
// set-hash.
func DeriveBlockId(p types.BlockPayload) types.BlockId {
	var buf bytes.Buffer
	wire.EncodeSlot(&buf, p.Slot)
	wire.EncodeAddress(&buf, p.ProducerAddr)
	wire.PutUvarint(&buf, uint64(len(p.Operations)))
	for _, op := range p.Operations {
		opID := DeriveOperationId(op)
		buf.Write(opID.Bytes())
	}
	wire.PutUvarint(&buf, uint64(len(p.Endorsements)))
	for _, e := range p.Endorsements {
		endID := DeriveEndorsementId(p.Slot, e)
		buf.Write(endID.Bytes())
	}
	h := sha3.Sum256(buf.Bytes())
	return types.BytesToBlockId(h[:])
}
