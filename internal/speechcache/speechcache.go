// Package speechcache holds synthesized audio for the lifetime of the
// process, keyed by normalized text content. Two display contexts with the
// same underlying text share one entry, so identical model answers are never
// synthesized twice.
package speechcache

import (
	"container/list"
	"strings"
	"sync"

	"github.com/opicoach/opicoach/pkg/study"
)

// NormalizeKey derives the cache key for text: the structural part delimiter
// is replaced with spaces, whitespace runs collapse to single spaces, and the
// result is trimmed. Callers must use this for every Get/Put so live results
// and history replays address the same entry.
func NormalizeKey(text string) string {
	return study.CollapseWhitespace(strings.ReplaceAll(text, study.PartDelimiter, " "))
}

// Option is a functional option for configuring the Cache.
type Option func(*Cache)

// WithMaxEntries bounds the cache to n entries with least-recently-used
// eviction. Zero or negative keeps the cache unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// Cache is a process-wide content-addressed store of synthesized audio.
// All methods are safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
}

type entry struct {
	key   string
	audio []byte
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the audio stored under key. The bool reports a hit.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).audio, true
}

// Put stores audio under key, replacing any existing entry. Empty keys and
// empty audio are ignored.
func (c *Cache) Put(key string, audio []byte) {
	if key == "" || len(audio) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).audio = audio
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, audio: audio})
	c.trimLocked()
}

// SetMaxEntries changes the bound at runtime, evicting the least recently
// used entries when the cache is already larger. Zero or negative removes
// the bound.
func (c *Cache) SetMaxEntries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxEntries = n
	c.trimLocked()
}

// trimLocked evicts from the LRU end until the bound holds. Callers must
// hold mu.
func (c *Cache) trimLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry. Used for explicit teardown (e.g. logout).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
