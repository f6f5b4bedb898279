package finalstate

import (
	"strconv"

	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/statehash"
	"github.com/qdrn/massa/types"
)

// Ledger tag bytes, used to build the persistent key layout
// addr || tag || subkey? (spec.md §6.3).
const (
	tagBalance  byte = 0
	tagBytecode byte = 1
	tagData     byte = 2
)

// ledgerKey builds the addr||tag||subkey? key used both for the persistent
// layout and as the BLAKE3 hash-contribution key.
func ledgerKey(addr types.Address, tag byte, subkey string) []byte {
	k := make([]byte, 0, types.AddressLength+1+len(subkey))
	k = append(k, addr.Bytes()...)
	k = append(k, tag)
	k = append(k, subkey...)
	return k
}

// LedgerStore is FinalState's canonical ledger sub-store: balances,
// bytecode and per-address datastores, each contributing to the parent
// FinalState hash via the shared statehash.Accumulator.
type LedgerStore struct {
	entries map[types.Address]*types.LedgerEntry
	accum   *statehash.Accumulator
}

// newLedgerStore constructs an empty ledger store attached to the given
// shared hash accumulator.
func newLedgerStore(accum *statehash.Accumulator) *LedgerStore {
	return &LedgerStore{
		entries: make(map[types.Address]*types.LedgerEntry),
		accum:   accum,
	}
}

// GetBalance returns the balance of addr, or (Zero, false) if the address
// has no ledger entry.
func (s *LedgerStore) GetBalance(addr types.Address) (amount.Amount, bool) {
	e, ok := s.entries[addr]
	if !ok {
		return amount.Zero, false
	}
	return e.Balance, true
}

// GetBytecode returns the bytecode of addr, or (nil, false) if absent.
func (s *LedgerStore) GetBytecode(addr types.Address) ([]byte, bool) {
	e, ok := s.entries[addr]
	if !ok || len(e.Bytecode) == 0 {
		return nil, false
	}
	return e.Bytecode, true
}

// GetDatastoreEntry returns the datastore value of addr at key.
func (s *LedgerStore) GetDatastoreEntry(addr types.Address, key string) ([]byte, bool) {
	e, ok := s.entries[addr]
	if !ok {
		return nil, false
	}
	v, ok := e.Datastore[key]
	return v, ok
}

// GetDatastoreKeys returns every datastore key for addr whose bytes start
// with prefix (an empty prefix returns all keys).
func (s *LedgerStore) GetDatastoreKeys(addr types.Address, prefix []byte) []string {
	e, ok := s.entries[addr]
	if !ok {
		return nil
	}
	var keys []string
	for k := range e.Datastore {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == string(prefix)) {
			keys = append(keys, k)
		}
	}
	return keys
}

// HasEntry reports whether addr has any ledger entry at all.
func (s *LedgerStore) HasEntry(addr types.Address) bool {
	_, ok := s.entries[addr]
	return ok
}

func (s *LedgerStore) getOrCreate(addr types.Address) *types.LedgerEntry {
	e, ok := s.entries[addr]
	if !ok {
		e = types.NewLedgerEntry(amount.Zero)
		s.entries[addr] = e
	}
	return e
}

// PutBalance overwrites addr's balance, XOR-maintaining the hash
// contribution for the reserved balance key.
func (s *LedgerStore) PutBalance(addr types.Address, bal amount.Amount) {
	_, had := s.entries[addr]
	e := s.getOrCreate(addr)
	key := ledgerKey(addr, tagBalance, "")
	oldVal := []byte(e.Balance.String())
	newVal := []byte(bal.String())
	s.accum.Put(key, oldValOrNil(had, oldVal), newVal)
	e.Balance = bal
}

// oldValOrNil returns oldVal if hadPrevious is true, else nil -- used so a
// fresh key's first Put only XORs in the new contribution.
func oldValOrNil(hadPrevious bool, oldVal []byte) []byte {
	if !hadPrevious {
		return nil
	}
	return oldVal
}

// PutBytecode overwrites addr's bytecode.
func (s *LedgerStore) PutBytecode(addr types.Address, code []byte) {
	e := s.getOrCreate(addr)
	key := ledgerKey(addr, tagBytecode, "")
	had := len(e.Bytecode) > 0
	oldVal := e.Bytecode
	s.accum.Put(key, oldValOrNil(had, oldVal), code)
	e.Bytecode = append([]byte(nil), code...)
}

// PutDatastoreEntry overwrites (or inserts) a datastore key.
func (s *LedgerStore) PutDatastoreEntry(addr types.Address, dkey string, value []byte) {
	e := s.getOrCreate(addr)
	key := ledgerKey(addr, tagData, dkey)
	old, had := e.Datastore[dkey]
	s.accum.Put(key, oldValOrNil(had, old), value)
	e.Datastore[dkey] = append([]byte(nil), value...)
}

// DeleteDatastoreEntry removes a datastore key, XOR-ing its contribution
// out of the hash.
func (s *LedgerStore) DeleteDatastoreEntry(addr types.Address, dkey string) {
	e, ok := s.entries[addr]
	if !ok {
		return
	}
	old, had := e.Datastore[dkey]
	if !had {
		return
	}
	key := ledgerKey(addr, tagData, dkey)
	s.accum.Delete(key, old)
	delete(e.Datastore, dkey)
}

// slotKey is the reserved "slot" hash-contribution key (spec.md §4.1).
var slotKey = []byte("slot")

// setSlotContribution updates the hash contribution of the reserved slot
// key, XORing out any previous value.
func setSlotContribution(accum *statehash.Accumulator, prev *types.Slot, next types.Slot) {
	var oldVal []byte
	if prev != nil {
		oldVal = []byte(strconv.FormatUint(prev.Period, 10) + "," + strconv.Itoa(int(prev.Thread)))
	}
	newVal := []byte(strconv.FormatUint(next.Period, 10) + "," + strconv.Itoa(int(next.Thread)))
	accum.Put(slotKey, oldValOrNil(prev != nil, oldVal), newVal)
}

// ApplyChanges applies a LedgerChanges delta in place, used by
// FinalState.finalize.
func (s *LedgerStore) ApplyChanges(changes types.LedgerChanges) {
	for addr, d := range changes.Entries {
		if d.SetBalance != nil {
			s.PutBalance(addr, *d.SetBalance)
		}
		if d.SetBytecode != nil {
			s.PutBytecode(addr, *d.SetBytecode)
		}
		for k, v := range d.DatastoreSets {
			s.PutDatastoreEntry(addr, k, v)
		}
		for k := range d.DatastoreDeletes {
			s.DeleteDatastoreEntry(addr, k)
		}
	}
}
