package cache

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/config"
)

func key(text string) CacheKey {
	return CacheKey{Engine: config.EngineWeb, SourceLang: "english", TargetLang: "french", Text: text}
}

func TestGetMissThenHit(t *testing.T) {
	c := NewTranslationCache(10)

	_, ok := c.Get(key("Hello"))
	assert.False(t, ok)

	c.Set(key("Hello"), "Bonjour")
	result, ok := c.Get(key("Hello"))
	assert.True(t, ok)
	assert.Equal(t, "Bonjour", result)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
}

func TestEvictionIsExactAtCapacity(t *testing.T) {
	c := NewTranslationCache(3)
	c.Set(key("a"), "A")
	c.Set(key("b"), "B")
	c.Set(key("c"), "C")
	c.Set(key("d"), "D") // evicts "a"

	_, ok := c.Get(key("a"))
	assert.False(t, ok, "oldest entry should have been evicted")

	for _, text := range []string{"b", "c", "d"} {
		_, ok := c.Get(key(text))
		assert.True(t, ok, "entry %q should still be cached", text)
	}

	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 3, c.Len())
}

func TestConcurrentSameKeyAccessIsSafe(t *testing.T) {
	c := NewTranslationCache(100)
	c.Set(key("Hello"), "Bonjour")

	var wg sync.WaitGroup
	hits := make([]bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, ok := c.Get(key("Hello"))
			hits[idx] = ok
		}(i)
	}
	wg.Wait()

	for _, ok := range hits {
		assert.True(t, ok)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	c := NewTranslationCache(10)
	c.Set(key("Hello"), "Bonjour")
	c.Set(key("Goodbye"), "Au revoir")
	require.NoError(t, c.SaveToFile(path))

	loaded := NewTranslationCache(10)
	require.NoError(t, loaded.LoadFromFile(path))

	result, ok := loaded.Get(key("Hello"))
	require.True(t, ok)
	assert.Equal(t, "Bonjour", result)

	result, ok = loaded.Get(key("Goodbye"))
	require.True(t, ok)
	assert.Equal(t, "Au revoir", result)
}

func TestLoadFromMissingFileIsNotAnError(t *testing.T) {
	c := NewTranslationCache(10)
	err := c.LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestNeverStoresFailures(t *testing.T) {
	// The cache API has no failure-carrying Set overload: callers must filter
	// failed adapter results before calling Set. This test documents that
	// only explicit Set calls populate the cache, and a miss stays a miss.
	c := NewTranslationCache(10)
	_, ok := c.Get(key("never set"))
	assert.False(t, ok)
}
