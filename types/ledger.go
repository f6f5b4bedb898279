package types

import "github.com/qdrn/massa/internal/amount"

// LedgerEntry holds the full state of a single address: its coin balance,
// optional bytecode (empty distinguishes a user account from a contract
// account) and its key/value datastore.
type LedgerEntry struct {
	Balance   amount.Amount
	Bytecode  []byte
	Datastore map[string][]byte
}

// NewLedgerEntry returns an empty user-account ledger entry with the given
// balance.
func NewLedgerEntry(balance amount.Amount) *LedgerEntry {
	return &LedgerEntry{
		Balance:   balance,
		Datastore: make(map[string][]byte),
	}
}

// IsContract reports whether the entry carries bytecode.
func (e *LedgerEntry) IsContract() bool {
	return len(e.Bytecode) > 0
}

// Clone returns a deep copy of the entry, used when staging speculative
// writes and when taking execution-context snapshots.
func (e *LedgerEntry) Clone() *LedgerEntry {
	if e == nil {
		return nil
	}
	c := &LedgerEntry{
		Balance:   e.Balance,
		Datastore: make(map[string][]byte, len(e.Datastore)),
	}
	if e.Bytecode != nil {
		c.Bytecode = append([]byte(nil), e.Bytecode...)
	}
	for k, v := range e.Datastore {
		c.Datastore[k] = append([]byte(nil), v...)
	}
	return c
}
