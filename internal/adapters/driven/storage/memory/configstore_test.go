package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore(t *testing.T) {
	seed := map[string]any{"server.port": 8003}
	store := NewConfigStore(seed)
	require.NotNil(t, store)

	seed["server.port"] = 1
	assert.Equal(t, 8003, store.GetInt("server.port"), "seed map is copied")
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore(nil)

	require.NoError(t, store.Set("key1", "original"))
	require.NoError(t, store.Set("key1", "updated"))

	val, ok := store.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "updated", val)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"str":      "value",
		"int":      42,
		"int64":    int64(7),
		"float":    0.75,
		"bool":     true,
		"dur_str":  "1m30s",
		"dur_secs": 45,
		"dur_frac": "2.5",
	})

	assert.Equal(t, "value", store.GetString("str"))
	assert.Equal(t, "", store.GetString("int"))
	assert.Equal(t, 42, store.GetInt("int"))
	assert.Equal(t, 7, store.GetInt("int64"))
	assert.Equal(t, 0, store.GetInt("str"))
	assert.InDelta(t, 0.75, store.GetFloat("float"), 1e-9)
	assert.InDelta(t, 42.0, store.GetFloat("int"), 1e-9)
	assert.True(t, store.GetBool("bool"))
	assert.False(t, store.GetBool("str"))
	assert.Equal(t, 90*time.Second, store.GetDuration("dur_str"))
	assert.Equal(t, 45*time.Second, store.GetDuration("dur_secs"))
	assert.Equal(t, 2500*time.Millisecond, store.GetDuration("dur_frac"))
	assert.Equal(t, time.Duration(0), store.GetDuration("bool"))
}

func TestConfigStore_Keys(t *testing.T) {
	store := NewConfigStore(map[string]any{"b": 1, "a": 2})
	require.NoError(t, store.Set("c", 3))
	assert.Equal(t, []string{"a", "b", "c"}, store.Keys())
}

func TestConfigStore_LoadAndPath(t *testing.T) {
	store := NewConfigStore(nil)
	assert.NoError(t, store.Load())
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("key", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("key")
		}()
	}
	wg.Wait()

	_, ok := store.Get("key")
	assert.True(t, ok)
}
