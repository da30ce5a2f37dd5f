package cache

import (
	"time"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// SymbolKey addresses one symbol within a project: the file's relative path
// plus the /-joined name path inside the file.
type SymbolKey struct {
	Path     string
	NamePath string
}

type symbolEntry struct {
	symbol   *lspDomain.Symbol
	mtime    time.Time // source mtime captured at Put
	storedAt time.Time
}

// MtimeFunc reports the current modification time of a project file.
type MtimeFunc func(path string) (time.Time, error)

// SymbolCache caches resolved symbols per (path, namePath). Entries are
// validated on every Get against a TTL and the file's current mtime; a stale
// or unverifiable entry counts as a miss and is evicted immediately, so the
// cache never serves symbols for a file that changed on disk.
type SymbolCache struct {
	lru   *LRU[SymbolKey, symbolEntry]
	ttl   time.Duration
	mtime MtimeFunc
	now   func() time.Time
}

// NewSymbolCache creates a symbol cache holding at most maxEntries symbols
// for up to ttl each. A non-positive ttl disables the age check.
func NewSymbolCache(maxEntries int, ttl time.Duration, mtime MtimeFunc) *SymbolCache {
	return &SymbolCache{
		lru:   NewLRU[SymbolKey, symbolEntry](maxEntries, 0, nil),
		ttl:   ttl,
		mtime: mtime,
		now:   time.Now,
	}
}

// Get returns the cached symbol if it is still fresh. A TTL expiry, a newer
// file on disk, or a failed stat all evict the entry and report a miss.
func (c *SymbolCache) Get(key SymbolKey) (*lspDomain.Symbol, bool) {
	ent, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(ent.storedAt) > c.ttl {
		c.lru.Remove(key)
		return nil, false
	}
	current, err := c.mtime(key.Path)
	if err != nil || current.After(ent.mtime) {
		c.lru.Remove(key)
		return nil, false
	}
	return ent.symbol, true
}

// Put stores a symbol with the file's current mtime. A file that cannot be
// statted is not cached.
func (c *SymbolCache) Put(key SymbolKey, symbol *lspDomain.Symbol) {
	mtime, err := c.mtime(key.Path)
	if err != nil {
		return
	}
	c.lru.Put(key, symbolEntry{symbol: symbol, mtime: mtime, storedAt: c.now()})
}

// InvalidateFile purges every entry belonging to path.
func (c *SymbolCache) InvalidateFile(path string) {
	for _, key := range c.lru.Keys() {
		if key.Path == path {
			c.lru.Remove(key)
		}
	}
}

// Clear drops all entries.
func (c *SymbolCache) Clear() { c.lru.Clear() }

// Len returns the number of cached symbols.
func (c *SymbolCache) Len() int { return c.lru.Len() }

// Stats returns the underlying hit/miss counters.
func (c *SymbolCache) Stats() Stats { return c.lru.Stats() }
