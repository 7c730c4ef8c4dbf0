package embed

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheNeverExceedsCapacity(t *testing.T) {
	c := newLRUCache(3)

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("key-%d", i), []float32{float32(i)})
		assert.LessOrEqual(t, c.Len(), 3)
	}
}

func TestCacheEvictsOldestInserted(t *testing.T) {
	c := newLRUCache(2)

	c.Put("a", []float32{1})
	c.Put("b", []float32{2})

	// Reading "a" must not refresh its age.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", []float32{3})

	_, ok = c.Get("a")
	assert.False(t, ok, "oldest inserted key must be evicted regardless of reads")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCacheOverwriteKeepsAge(t *testing.T) {
	c := newLRUCache(2)

	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	c.Put("a", []float32{9})
	c.Put("c", []float32{3})

	// "a" was inserted first; rewriting it does not move it to the back.
	_, ok := c.Get("a")
	assert.False(t, ok)

	vec, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, vec)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c := newLRUCache(2)
	c.Put("a", []float32{1, 2})

	vec, ok := c.Get("a")
	require.True(t, ok)
	vec[0] = 99

	again, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, again)
}

func TestCacheClear(t *testing.T) {
	c := newLRUCache(4)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}
