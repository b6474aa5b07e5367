// Package cache provides an LRU, persistable cache for translation results,
// keyed by engine and language pair so the same string never crosses the
// network twice for a given route.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/renlocalizer/renlocalizer/internal/config"
)

// CacheKey identifies a single cacheable translation request. Two requests
// with the same key always produce the same result, so the key never
// includes anything time-varying.
type CacheKey struct {
	Engine     config.Engine
	SourceLang string
	TargetLang string
	Text       string
}

// hash returns a stable, fixed-width digest of the key suitable for use as a
// map key and as the on-disk persistence key.
func (k CacheKey) hash() string {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(k.Engine))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.SourceLang))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.TargetLang))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// entry is the value stored in the cache. Only successful translations are
// ever stored: a failed adapter call must never poison the cache with a
// result a caller would mistake for a real translation.
type entry struct {
	Key       CacheKey
	Result    string
	CreatedAt time.Time
	HitCount  int64
}

// Stats reports cumulative cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

var (
	metricHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renlocalizer_cache_hits_total",
		Help: "Translation cache hits.",
	})
	metricMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renlocalizer_cache_misses_total",
		Help: "Translation cache misses.",
	})
	metricEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renlocalizer_cache_evictions_total",
		Help: "Translation cache LRU evictions.",
	})
	metricSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renlocalizer_cache_entries",
		Help: "Current number of entries held in the translation cache.",
	})
	metricsOnce sync.Once
)

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(metricHits, metricMisses, metricEvictions, metricSize)
	})
}

// TranslationCache is a thread-safe, size-bounded LRU cache of translation
// results, with optional atomic JSON persistence to disk.
type TranslationCache struct {
	mu      sync.RWMutex
	maxSize int
	entries map[string]*entry
	order   []string // LRU order, oldest first
	stats   Stats
}

// NewTranslationCache creates a cache bounded to maxSize entries. A
// non-positive maxSize means unbounded.
func NewTranslationCache(maxSize int) *TranslationCache {
	registerMetrics()
	return &TranslationCache{
		maxSize: maxSize,
		entries: make(map[string]*entry),
		order:   make([]string, 0, 64),
	}
}

// Get returns the cached result for key, if present.
func (c *TranslationCache) Get(key CacheKey) (string, bool) {
	digest := key.hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[digest]
	if !ok {
		c.stats.Misses++
		metricMisses.Inc()
		return "", false
	}

	e.HitCount++
	c.stats.Hits++
	c.moveToEndLocked(digest)
	metricHits.Inc()
	return e.Result, true
}

// Set stores result under key, evicting the least-recently-used entry if the
// cache is at capacity. Callers must never call Set with a failed result;
// the cache has no concept of an error value.
func (c *TranslationCache) Set(key CacheKey, result string) {
	digest := key.hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[digest]; !exists {
		for c.maxSize > 0 && len(c.entries) >= c.maxSize && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
			c.stats.Evictions++
			metricEvictions.Inc()
		}
		c.order = append(c.order, digest)
	} else {
		c.moveToEndLocked(digest)
	}

	c.entries[digest] = &entry{Key: key, Result: result, CreatedAt: time.Now()}
	c.stats.Size = len(c.entries)
	metricSize.Set(float64(c.stats.Size))
}

func (c *TranslationCache) moveToEndLocked(digest string) {
	for i, k := range c.order {
		if k == digest {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, digest)
			return
		}
	}
}

// Stats returns a snapshot of the cumulative counters.
func (c *TranslationCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.stats
	st.Size = len(c.entries)
	return st
}

// Len returns the number of entries currently held.
func (c *TranslationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *TranslationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = c.order[:0]
	c.stats.Size = 0
	metricSize.Set(0)
}

// persistedEntry and persistedFile are the JSON-serializable forms used by
// SaveToFile/LoadFromFile.
type persistedEntry struct {
	Engine     config.Engine `json:"engine"`
	SourceLang string        `json:"source_lang"`
	TargetLang string        `json:"target_lang"`
	Text       string        `json:"text"`
	Result     string        `json:"result"`
	CreatedAt  time.Time     `json:"created_at"`
}

type persistedFile struct {
	Entries []persistedEntry `json:"entries"`
}

// SaveToFile persists the cache to path as JSON, writing to a temp file and
// renaming into place so a crash mid-write never corrupts the cache on disk.
func (c *TranslationCache) SaveToFile(path string) error {
	if path == "" {
		return nil
	}

	c.mu.RLock()
	data := persistedFile{Entries: make([]persistedEntry, 0, len(c.order))}
	for _, digest := range c.order {
		e, ok := c.entries[digest]
		if !ok {
			continue
		}
		data.Entries = append(data.Entries, persistedEntry{
			Engine:     e.Key.Engine,
			SourceLang: e.Key.SourceLang,
			TargetLang: e.Key.TargetLang,
			Text:       e.Key.Text,
			Result:     e.Result,
			CreatedAt:  e.CreatedAt,
		})
	}
	c.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpPath := path + ".tmp"
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	log.Debugf("translation cache saved to %s (%d entries)", path, len(data.Entries))
	return nil
}

// LoadFromFile loads a cache previously written by SaveToFile. A missing
// file is not an error. Entries are loaded oldest-first up to maxSize.
func (c *TranslationCache) LoadFromFile(path string) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var data persistedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := 0
	for _, pe := range data.Entries {
		if c.maxSize > 0 && len(c.entries) >= c.maxSize {
			break
		}
		key := CacheKey{Engine: pe.Engine, SourceLang: pe.SourceLang, TargetLang: pe.TargetLang, Text: pe.Text}
		digest := key.hash()
		c.entries[digest] = &entry{Key: key, Result: pe.Result, CreatedAt: pe.CreatedAt}
		c.order = append(c.order, digest)
		loaded++
	}
	c.stats.Size = len(c.entries)
	metricSize.Set(float64(c.stats.Size))

	log.Infof("translation cache loaded from %s (%d entries)", path, loaded)
	return nil
}
