package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	c := New[[]string](Options{})

	_, ok := c.Get("k")
	assert.False(t, ok)

	require.True(t, c.Put("k", []string{"a"}, c.Generation()))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
}

func TestLRUEviction(t *testing.T) {
	c := New[int](Options{MaxEntries: 2})
	gen := c.Generation()

	c.Put("a", 1, gen)
	c.Put("b", 2, gen)
	_, _ = c.Get("a") // b is now least recently used
	c.Put("c", 3, gen)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 2, c.Len())
}

func TestPutOverwrites(t *testing.T) {
	c := New[int](Options{MaxEntries: 2})
	gen := c.Generation()
	c.Put("a", 1, gen)
	c.Put("a", 2, gen)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	c := New[int](Options{TTL: time.Minute})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("a", 1, c.Generation())
	now = now.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestNegativeTTLNeverExpires(t *testing.T) {
	c := New[int](Options{TTL: -1})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Put("a", 1, c.Generation())
	now = now.Add(24 * time.Hour)
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestInvalidateClearsEverything(t *testing.T) {
	c := New[int](Options{})
	gen := c.Generation()
	c.Put("a", 1, gen)
	c.Put("b", 2, gen)

	c.InvalidateByFile("pkg/a.go")

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, gen+1, c.Generation())
	assert.Equal(t, int64(1), c.Stats().Invalidations)
}

func TestStaleGenerationIsDropped(t *testing.T) {
	c := New[int](Options{})
	gen := c.Generation()

	// a write lands while the query is running
	c.InvalidateByFile("a.go")

	assert.False(t, c.Put("q", 1, gen))
	_, ok := c.Get("q")
	assert.False(t, ok)

	assert.True(t, c.Put("q", 2, c.Generation()))
}

func TestKeyNormalization(t *testing.T) {
	assert.Equal(t, Key("Foo  Bar", "lang:go", "limit=20"), Key("  foo bar ", "lang:go", "limit=20"))
	assert.NotEqual(t, Key("foo", "lang:go", ""), Key("foo", "lang:python", ""))
	assert.NotEqual(t, Key("foo", "", "limit=10"), Key("foo", "", "limit=20"))
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](Options{MaxEntries: 8})
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				key := string(rune('a' + (i+j)%12))
				if _, ok := c.Get(key); !ok {
					c.Put(key, j, c.Generation())
				}
				if j%50 == 0 {
					c.Clear()
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
