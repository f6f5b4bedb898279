package finalstate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/finalstate"
	"github.com/qdrn/massa/internal/amount"
	"github.com/qdrn/massa/internal/config"
	"github.com/qdrn/massa/internal/statehash"
	"github.com/qdrn/massa/types"
)

func testAddr(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

// TestHashDeterminism exercises spec.md §8 scenario 6: two independent
// executions of the same finalize trace against the same initial deltas
// must converge on the same H(FS).
func TestHashDeterminism(t *testing.T) {
	cfg := config.DefaultConfig()

	run := func() (statehash.Hash, string) {
		fs := finalstate.New(cfg)

		c1 := types.NewStateChanges()
		c1.Ledger.SetBalance(testAddr(1), amount.FromUnits(1000))
		require.NoError(t, fs.Finalize(types.NewSlot(0, 0), c1))

		c2 := types.NewStateChanges()
		c2.Ledger.SetBalance(testAddr(1), amount.FromUnits(900))
		c2.Ledger.SetBalance(testAddr(2), amount.FromUnits(100))
		require.NoError(t, fs.Finalize(types.NewSlot(1, 0), c2))

		bal, ok := fs.GetBalance(testAddr(2))
		require.True(t, ok)
		return fs.GetHash(), bal.String()
	}

	hashA, balA := run()
	hashB, balB := run()

	require.Equal(t, hashA, hashB, "two independent executions of an identical finalize trace must yield the same H(FS)")
	require.Equal(t, balA, balB)
}

func TestFinalizeRejectsNonMonotonicSlot(t *testing.T) {
	fs := finalstate.New(config.DefaultConfig())

	require.NoError(t, fs.Finalize(types.NewSlot(5, 0), types.NewStateChanges()))
	err := fs.Finalize(types.NewSlot(5, 0), types.NewStateChanges())
	require.Error(t, err)

	err = fs.Finalize(types.NewSlot(4, 0), types.NewStateChanges())
	require.Error(t, err)
}

func TestJournalSinceAndDepth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.JournalDepth = 2
	fs := finalstate.New(cfg)

	require.NoError(t, fs.Finalize(types.NewSlot(0, 0), types.NewStateChanges()))
	require.NoError(t, fs.Finalize(types.NewSlot(1, 0), types.NewStateChanges()))
	require.NoError(t, fs.Finalize(types.NewSlot(2, 0), types.NewStateChanges()))

	require.Equal(t, 2, fs.JournalDepth())
	since := fs.JournalSince(types.NewSlot(0, 0))
	require.Len(t, since, 2, "slot 0's entry was evicted; both retained entries (slots 1 and 2) are strictly after slot 0")
}
