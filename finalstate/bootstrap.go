package finalstate

import (
	"bytes"
	"sort"

	"github.com/qdrn/massa/internal/wire"
	"github.com/qdrn/massa/types"
)

// CursorState distinguishes the three bootstrap cursor states.
type CursorState int

const (
	CursorStarted CursorState = iota
	CursorOngoing
	CursorFinished
)

// Cursor tracks bootstrap streaming progress through the ledger.
type Cursor struct {
	State CursorState
	Key   []byte // meaningful only when State == CursorOngoing
}

// sortedLedgerKeys returns every ledger hash-contribution key
// (balance/bytecode/datastore) in byte-lexicographic order, the iteration
// order bootstrap streaming commits to.
func (fs *FinalState) sortedLedgerKeys() [][]byte {
	var keys [][]byte
	for addr, entry := range fs.Ledger.entries {
		keys = append(keys, ledgerKey(addr, tagBalance, ""))
		if len(entry.Bytecode) > 0 {
			keys = append(keys, ledgerKey(addr, tagBytecode, ""))
		}
		for dk := range entry.Datastore {
			keys = append(keys, ledgerKey(addr, tagData, dk))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func (fs *FinalState) valueForLedgerKey(key []byte) []byte {
	addr := types.BytesToAddress(key[:types.AddressLength])
	tag := key[types.AddressLength]
	switch tag {
	case tagBalance:
		b, _ := fs.Ledger.GetBalance(addr)
		return []byte(b.String())
	case tagBytecode:
		bc, _ := fs.Ledger.GetBytecode(addr)
		return bc
	case tagData:
		dk := string(key[types.AddressLength+1:])
		v, _ := fs.Ledger.GetDatastoreEntry(addr, dk)
		return v
	}
	return nil
}

// BootstrapPart streams a bounded slice of the ledger starting at cursor,
// returning the encoded records and the next cursor to resume from
// (spec.md §4.1 / §6.2). A part ends with the first record that brings it
// to cfg.BootstrapPartBytes or more, so it can exceed that budget by up to
// one record.
func (fs *FinalState) BootstrapPart(cursor Cursor) ([]byte, Cursor) {
	keys := fs.sortedLedgerKeys()

	startIdx := 0
	switch cursor.State {
	case CursorStarted:
		startIdx = 0
	case CursorOngoing:
		// Resume strictly after the last key returned.
		idx := sort.Search(len(keys), func(i int) bool { return bytes.Compare(keys[i], cursor.Key) > 0 })
		startIdx = idx
	case CursorFinished:
		return nil, cursor
	}

	var buf bytes.Buffer
	var lastKey []byte
	i := startIdx
	for ; i < len(keys); i++ {
		rec := wire.LedgerBootstrapRecord{Key: keys[i], Value: fs.valueForLedgerKey(keys[i])}
		wire.EncodeLedgerBootstrapRecord(&buf, rec)
		lastKey = keys[i]
		if buf.Len() >= fs.cfg.BootstrapPartBytes {
			i++
			break
		}
	}

	if i >= len(keys) {
		return buf.Bytes(), Cursor{State: CursorFinished}
	}
	return buf.Bytes(), Cursor{State: CursorOngoing, Key: lastKey}
}
