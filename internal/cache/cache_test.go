package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLGetSet(t *testing.T) {
	store := NewTTL[string](time.Minute)
	defer store.Stop()

	_, ok := store.Get("missing")
	assert.False(t, ok)

	store.Set("key", "value", time.Minute)
	got, ok := store.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestTTLExpiry(t *testing.T) {
	store := NewTTL[string](time.Minute)
	defer store.Stop()

	store.Set("key", "value", 50*time.Millisecond)

	_, ok := store.Get("key")
	require.True(t, ok, "entry must be retrievable before the TTL elapses")

	time.Sleep(80 * time.Millisecond)

	_, ok = store.Get("key")
	assert.False(t, ok, "a read past expiry must behave like absence")
}

func TestTTLExpiryUnderRepeatedReads(t *testing.T) {
	store := NewTTL[string](time.Minute)
	defer store.Stop()

	store.Set("key", "value", 150*time.Millisecond)

	// Keep reading through the entry's lifetime; reads must not push the
	// expiry out.
	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		store.Get("key")
		time.Sleep(50 * time.Millisecond)
	}

	_, ok := store.Get("key")
	assert.False(t, ok, "entry must expire on schedule even while read continuously")
}

func TestTTLDelete(t *testing.T) {
	store := NewTTL[int](time.Minute)
	defer store.Stop()

	store.Set("key", 7, time.Minute)
	store.Delete("key")

	_, ok := store.Get("key")
	assert.False(t, ok)
}

func TestTTLDefaultApplied(t *testing.T) {
	store := NewTTL[string](50 * time.Millisecond)
	defer store.Stop()

	// Non-positive ttl falls back to the store default.
	store.Set("key", "value", 0)

	_, ok := store.Get("key")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = store.Get("key")
	assert.False(t, ok)
}
