package dropmap_test

import (
	"errors"
	"testing"

	"github.com/rossdb/ross/pkg/dropmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRescueOnAccess: ttl=10. Insert k at t=0, drop_expire(k,
// 0) schedules eviction at t=10. get(k) at t=5 cancels that expiration.
// gc(100) must then find k still present.
func TestRescueOnAccess(t *testing.T) {
	m := dropmap.New[string, int](64, 10)

	v, err := m.GetOrMaybeInsertWith("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	m.DropExpire("k", 0)

	got, ok := m.Get("k")
	require.True(t, ok, "get at t=5 must rescue the pending eviction")
	assert.Equal(t, 7, got)

	m.GC(100)

	got, ok = m.Get("k")
	assert.True(t, ok, "k must survive gc once its expiration was cancelled")
	assert.Equal(t, 7, got)
}

// TestDropWithoutRescueIsEvicted: a
// drop_expire with no intervening get really is purged once gc runs past
// its expiration (drop time + ttl).
func TestDropWithoutRescueIsEvicted(t *testing.T) {
	m := dropmap.New[string, int](64, 10)

	_, err := m.GetOrMaybeInsertWith("k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	m.DropExpire("k", 0)
	m.GC(5)
	assert.Equal(t, 1, m.Len(), "gc before expiration must not evict")

	m.GC(11)
	_, ok := m.Get("k")
	assert.False(t, ok, "gc past expiration must evict")
}

func TestZeroTTLEvictsImmediately(t *testing.T) {
	m := dropmap.New[string, int](64, 0)

	_, err := m.GetOrMaybeInsertWith("k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	m.DropExpire("k", 0)

	_, ok := m.Get("k")
	assert.False(t, ok, "ttl=0 must evict without waiting for gc")
}

func TestGetOrMaybeInsertWithPropagatesError(t *testing.T) {
	m := dropmap.New[string, int](64, 10)
	wantErr := errors.New("boom")

	_, err := m.GetOrMaybeInsertWith("k", func() (int, error) { return 0, wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, m.Len())
}

func TestForcedGCOnCapacity(t *testing.T) {
	m := dropmap.New[int, int](2, 10)

	for i := 0; i < 3; i++ {
		_, err := m.GetOrMaybeInsertWith(i, func() (int, error) { return i, nil })
		require.NoError(t, err)
	}

	// Dropping all three at t=0 with ttl=10 schedules expirations at 10;
	// from the second drop_expire on, toDropCount has reached capacity (2)
	// and each drop forces an immediate gc(0), which is a no-op since
	// nothing has expired yet.
	m.DropExpire(0, 0)
	m.DropExpire(1, 0)
	m.DropExpire(2, 0)

	assert.Equal(t, 3, m.Len())

	m.GC(10)
	assert.Equal(t, 0, m.Len())
}

func TestManyKeysSameExpirationUseMultiBucket(t *testing.T) {
	m := dropmap.New[int, int](64, 5)

	for i := 0; i < 10; i++ {
		_, err := m.GetOrMaybeInsertWith(i, func() (int, error) { return i, nil })
		require.NoError(t, err)
		m.DropExpire(i, 0)
	}

	m.GC(5)
	assert.Equal(t, 0, m.Len())
}
