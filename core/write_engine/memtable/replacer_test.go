package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer(t *testing.T) {
	r := NewLRUReplacer(7)

	// 1. Unpin six frames; 1 is unpinned twice and must count once.
	for _, f := range []int{1, 2, 3, 4, 5, 6, 1} {
		r.Unpin(f)
	}
	require.Equal(t, 6, r.Size())

	// 2. The second unpin of 1 made it most recent, so 2 goes first.
	for _, want := range []int{2, 3, 4} {
		got, ok := r.Victim()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	// 3. Pinning removes frames from consideration; pinning twice is a no-op.
	r.Pin(5)
	r.Pin(5)
	r.Pin(3)
	require.Equal(t, 2, r.Size())

	r.Unpin(4)
	for _, want := range []int{6, 1, 4} {
		got, ok := r.Victim()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := r.Victim()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestClockReplacer(t *testing.T) {
	r := NewClockReplacer(7)

	for _, f := range []int{1, 2, 3, 4, 5, 6, 1} {
		r.Unpin(f)
	}
	require.Equal(t, 6, r.Size())

	// Every slot is referenced, so the first sweep clears bits and the
	// second evicts in hand order.
	for _, want := range []int{1, 2, 3} {
		got, ok := r.Victim()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	r.Pin(3) // already evicted: no-op
	r.Pin(4)
	r.Pin(4)
	require.Equal(t, 2, r.Size())

	// 4 comes back referenced; 5 and 6 have cleared bits and go first.
	r.Unpin(4)
	for _, want := range []int{5, 6, 4} {
		got, ok := r.Victim()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestClockReplacerFindsSlotsPastSize(t *testing.T) {
	r := NewClockReplacer(10)
	r.Unpin(9)
	require.Equal(t, 1, r.Size())

	got, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 9, got)
}

func TestClockReplacerSecondChance(t *testing.T) {
	r := NewClockReplacer(3)
	r.Unpin(0)
	r.Unpin(1)
	r.Unpin(2)

	got, _ := r.Victim() // clears 0,1,2 then evicts 0
	require.Equal(t, 0, got)

	r.Unpin(0) // referenced again
	got, _ = r.Victim()
	require.Equal(t, 1, got)
	got, _ = r.Victim()
	require.Equal(t, 2, got)
	got, _ = r.Victim()
	require.Equal(t, 0, got)
}

func TestNewReplacer(t *testing.T) {
	r, err := NewReplacer("clock", 4)
	require.NoError(t, err)
	require.IsType(t, &ClockReplacer{}, r)

	r, err = NewReplacer("", 4)
	require.NoError(t, err)
	require.IsType(t, &LRUReplacer{}, r)

	_, err = NewReplacer("mru", 4)
	require.Error(t, err)
}
