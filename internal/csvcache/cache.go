// Package csvcache is a time-bounded cache of parsed CSV tables keyed by
// path. Entries expire lazily: every Get sweeps stale entries before
// looking for a hit, and there is no background timer.
package csvcache

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpiry      = 300 * time.Second
	DefaultCapacity    = 256
	DefaultLoadTimeout = 30 * time.Second
)

// Row is one CSV record keyed by header
type Row map[string]string

// Table is a parsed CSV file
type Table struct {
	Path    string   `json:"path"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Observer receives cache events; internal/metrics implements it
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheLoad(d time.Duration, err error)
	CacheEvict(n int)
}

type entry struct {
	table  *Table
	loaded time.Time
}

// Cache is the timed CSV cache.
//
// Every Invalidate and Purge moves a generation; a load only stores its
// table when the generation it started under is still current, and
// callers arriving after an invalidation never join an older load.
type Cache struct {
	mu          sync.Mutex
	entries     *lru.Cache[string, entry]
	loader      Loader
	expiry      time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	group       singleflight.Group
	observer    Observer

	seq      uint64
	epoch    uint64
	versions map[string]uint64
}

// Option configures a Cache
type Option func(*Cache)

// WithExpiry sets how long a loaded table stays valid
func WithExpiry(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.expiry = d
		}
	}
}

// WithLoadTimeout bounds a shared load. Loads are detached from the
// caller that started them, so this is their only deadline.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver attaches an event observer
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates a cache holding at most capacity tables
func New(loader Loader, capacity int, opts ...Option) (*Cache, error) {
	if loader == nil {
		return nil, errors.New("csv cache requires a loader")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv cache: %w", err)
	}

	c := &Cache{
		entries:     entries,
		loader:      loader,
		expiry:      DefaultExpiry,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		versions:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the table for path, loading it on a miss. Concurrent misses
// share one load, which keeps running when the caller that started it goes
// away; ctx only bounds how long this caller waits. Failed loads are
// returned but never cached, so the next Get retries.
func (c *Cache) Get(ctx context.Context, path string) (*Table, error) {
	c.mu.Lock()
	c.sweepLocked()
	e, ok := c.entries.Get(path)
	epoch, version := c.epoch, c.versions[path]
	c.mu.Unlock()

	if ok {
		c.hit()
		return e.table, nil
	}
	c.miss()

	key := fmt.Sprintf("%d:%d:%s", epoch, version, path)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), path, epoch, version)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	}
}

func (c *Cache) load(ctx context.Context, path string, epoch, version uint64) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	start := c.now()
	raw, err := c.loader.Load(ctx, path)
	if err == nil {
		var table *Table
		if table, err = Parse(path, raw); err == nil {
			c.mu.Lock()
			if c.epoch == epoch && c.versions[path] == version {
				c.entries.Add(path, entry{table: table, loaded: c.now()})
			}
			c.mu.Unlock()
			c.loaded(c.now().Sub(start), nil)
			return table, nil
		}
	}
	c.loaded(c.now().Sub(start), err)
	return nil, fmt.Errorf("failed to load %s: %w", path, err)
}

// Invalidate drops the cached table for path. A load of path already in
// flight still answers its callers but is not stored.
func (c *Cache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.versions[path] = c.seq
	return c.entries.Remove(path)
}

// Purge drops every cached table
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.epoch = c.seq
	c.versions = make(map[string]uint64)
	c.entries.Purge()
}

// Len returns the number of cached tables, expired ones included until the next sweep
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) sweepLocked() {
	cutoff := c.now().Add(-c.expiry)
	evicted := 0
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && !e.loaded.After(cutoff) {
			c.entries.Remove(key)
			evicted++
		}
	}
	if evicted > 0 && c.observer != nil {
		c.observer.CacheEvict(evicted)
	}
}

func (c *Cache) hit() {
	if c.observer != nil {
		c.observer.CacheHit()
	}
}

func (c *Cache) miss() {
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

func (c *Cache) loaded(d time.Duration, err error) {
	if c.observer != nil {
		c.observer.CacheLoad(d, err)
	}
}

// Parse reads CSV content into a table keyed by the first row. Short rows
// leave missing columns out; surplus cells are dropped.
func Parse(path string, raw []byte) (*Table, error) {
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	table := &Table{Path: path, Rows: []Row{}}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		if table.Headers == nil {
			table.Headers = make([]string, len(record))
			for i, h := range record {
				table.Headers[i] = strings.TrimSpace(h)
			}
			continue
		}
		row := make(Row, len(table.Headers))
		for i, cell := range record {
			if i >= len(table.Headers) {
				break
			}
			row[table.Headers[i]] = cell
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
