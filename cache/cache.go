// Package cache implements the constant cache that sits between the
// constant banks and the threads reading them. Lines are tracked by an
// Akita cache directory with LRU replacement.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config is the cache geometry. Capacity must be a multiple of
// Ways*LineSize.
type Config struct {
	Capacity int // bytes
	Ways     int
	LineSize int // bytes
}

// DefaultConstConfig returns the geometry of the GK110 per-SM constant
// cache: 8KB, 4-way, 64B lines.
func DefaultConstConfig() Config {
	return Config{Capacity: 8 << 10, Ways: 4, LineSize: 64}
}

func (c Config) sets() int {
	return c.Capacity / (c.Ways * c.LineSize)
}

// Statistics counts line accesses. A read spanning two lines is two
// accesses.
type Statistics struct {
	Accesses  uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns Hits/Accesses, or 0 before the first access.
func (s Statistics) HitRate() float64 {
	if s.Accesses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Accesses)
}

// BackingStore is the memory lines are filled from. *mem.Storage satisfies
// it.
type BackingStore interface {
	Read(addr, size uint64) ([]byte, error)
}

// Cache is a read-only cache in front of a BackingStore. Writes to the
// store do not go through the cache, so the writer must Invalidate the
// affected lines or Reset the cache.
type Cache struct {
	geometry Config
	dir      *akitacache.DirectoryImpl
	lines    [][]byte // one per directory block, set-major
	stats    Statistics
	store    BackingStore
}

// New creates an empty cache of the given geometry.
func New(geometry Config, store BackingStore) *Cache {
	sets := geometry.sets()

	lines := make([][]byte, sets*geometry.Ways)
	for i := range lines {
		lines[i] = make([]byte, geometry.LineSize)
	}

	dir := akitacache.NewDirectory(sets, geometry.Ways, geometry.LineSize,
		akitacache.NewLRUVictimFinder())

	return &Cache{geometry: geometry, dir: dir, lines: lines, store: store}
}

// Config returns the cache geometry.
func (c *Cache) Config() Config {
	return c.geometry
}

// Stats returns the access counters.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats zeroes the access counters and keeps the cached lines.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// LineAddr returns the address of the line holding addr.
func (c *Cache) LineAddr(addr uint64) uint64 {
	size := uint64(c.geometry.LineSize)
	return addr - addr%size
}

// Read returns size bytes starting at addr.
func (c *Cache) Read(addr, size uint64) ([]byte, error) {
	out := make([]byte, 0, size)
	lineSize := uint64(c.geometry.LineSize)

	for end := addr + size; addr < end; {
		base := c.LineAddr(addr)
		line, err := c.line(base)
		if err != nil {
			return nil, err
		}

		hi := min(end, base+lineSize)
		out = append(out, line[addr-base:hi-base]...)
		addr = hi
	}

	return out, nil
}

// line returns the cached copy of the line at base, filling it on a miss.
func (c *Cache) line(base uint64) ([]byte, error) {
	c.stats.Accesses++

	if b := c.dir.Lookup(0, base); b != nil && b.IsValid {
		c.stats.Hits++
		c.dir.Visit(b)
		return c.data(b), nil
	}

	c.stats.Misses++
	return c.fill(base)
}

func (c *Cache) fill(base uint64) ([]byte, error) {
	victim := c.dir.FindVictim(base)
	if victim == nil {
		return nil, fmt.Errorf("constant cache: no way free for line 0x%x", base)
	}

	content, err := c.store.Read(base, uint64(c.geometry.LineSize))
	if err != nil {
		return nil, fmt.Errorf("constant cache: fill of line 0x%x: %w", base, err)
	}

	if victim.IsValid {
		c.stats.Evictions++
	}

	victim.Tag = base
	victim.IsValid = true
	victim.IsDirty = false
	c.dir.Visit(victim)

	data := c.data(victim)
	copy(data, content)
	return data, nil
}

func (c *Cache) data(b *akitacache.Block) []byte {
	return c.lines[b.SetID*c.geometry.Ways+b.WayID]
}

// Invalidate drops the line holding addr, if cached.
func (c *Cache) Invalidate(addr uint64) {
	if b := c.dir.Lookup(0, c.LineAddr(addr)); b != nil {
		b.IsValid = false
	}
}

// Reset drops every line and zeroes the counters.
func (c *Cache) Reset() {
	c.dir.Reset()
	c.stats = Statistics{}
}
