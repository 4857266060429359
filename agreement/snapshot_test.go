package agreement

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotCacheUpdate(t *testing.T) {
	cache := NewSnapshotCache()
	require.Nil(t, cache.Get())

	first := testSnapshot(StatusCreated)
	first.Amount = big.NewInt(1000)
	first.seq = 1
	require.NoError(t, cache.Update(first))

	newer := testSnapshot(StatusWorkConfirmed)
	newer.seq = 3
	require.NoError(t, cache.Update(newer))

	// a read issued before the cached one must not overwrite it
	older := testSnapshot(StatusWorkConfirmed)
	older.seq = 2
	require.ErrorIs(t, cache.Update(older), ErrStaleSnapshot)

	// status never goes backwards
	regressed := testSnapshot(StatusCreated)
	regressed.seq = 4
	require.ErrorIs(t, cache.Update(regressed), ErrStaleSnapshot)

	require.Equal(t, StatusWorkConfirmed, cache.Get().Status)
	require.Equal(t, uint64(3), cache.Get().Seq())

	require.ErrorIs(t, cache.Update(nil), ErrStaleSnapshot)

	cache.Reset()
	require.Nil(t, cache.Get())
	require.NoError(t, cache.Update(regressed))
}

func TestSnapshotCacheReturnsCopies(t *testing.T) {
	cache := NewSnapshotCache()
	s := testSnapshot(StatusCreated)
	s.Amount = big.NewInt(1000)
	require.NoError(t, cache.Update(s))

	s.Amount.SetInt64(1)
	got := cache.Get()
	require.Equal(t, int64(1000), got.Amount.Int64())

	got.Amount.SetInt64(2)
	got.Text = "changed"
	require.Equal(t, int64(1000), cache.Get().Amount.Int64())
	require.Empty(t, cache.Get().Text)
}
