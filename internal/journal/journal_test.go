package journal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qdrn/massa/internal/journal"
	"github.com/qdrn/massa/types"
)

func TestRingEvictsAboveDepth(t *testing.T) {
	r := journal.NewRing(2)
	r.Append(journal.Entry{Slot: types.NewSlot(1, 0)})
	r.Append(journal.Entry{Slot: types.NewSlot(2, 0)})
	r.Append(journal.Entry{Slot: types.NewSlot(3, 0)})

	require.Equal(t, 2, r.Len())
	all := r.All()
	require.Equal(t, types.NewSlot(2, 0), all[0].Slot)
	require.Equal(t, types.NewSlot(3, 0), all[1].Slot)
}

func TestRingSinceReturnsStrictlyAfter(t *testing.T) {
	r := journal.NewRing(10)
	r.Append(journal.Entry{Slot: types.NewSlot(1, 0)})
	r.Append(journal.Entry{Slot: types.NewSlot(2, 0)})
	r.Append(journal.Entry{Slot: types.NewSlot(3, 0)})

	since := r.Since(types.NewSlot(1, 0))
	require.Len(t, since, 2)
	require.Equal(t, types.NewSlot(2, 0), since[0].Slot)
	require.Equal(t, types.NewSlot(3, 0), since[1].Slot)
}

func TestRingZeroDepthRetainsNothing(t *testing.T) {
	r := journal.NewRing(0)
	r.Append(journal.Entry{Slot: types.NewSlot(1, 0)})
	require.Equal(t, 0, r.Len())
}
