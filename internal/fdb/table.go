// Package fdb implements the MAC address learning table (forwarding
// database).
package fdb

import (
	"sync"
	"time"

	"firestige.xyz/twinport/internal/core"
)

const (
	// DefaultMaxEntries bounds the table size.
	DefaultMaxEntries = 256
	// DefaultMaxAge is the aging timeout after which an unrefreshed
	// entry is treated as unknown.
	DefaultMaxAge = 5 * time.Minute
)

type entry struct {
	port     core.PortID
	lastSeen time.Time
}

// Table maps source addresses to the port they were last seen on. The
// receive path is the single writer; the transmit path may read
// concurrently to pick egress for host-originated traffic, so all access
// goes through one RWMutex. Neither operation blocks beyond that guard.
type Table struct {
	mu      sync.RWMutex
	entries map[core.MAC]*entry

	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
}

// Option tunes a Table.
type Option func(*Table)

// WithMaxEntries overrides the capacity bound.
func WithMaxEntries(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// WithMaxAge overrides the aging timeout.
func WithMaxAge(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.maxAge = d
		}
	}
}

// withClock injects a time source for tests.
func withClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// New creates an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		entries:    make(map[core.MAC]*entry),
		maxEntries: DefaultMaxEntries,
		maxAge:     DefaultMaxAge,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Learn inserts or refreshes the entry for mac. At capacity the
// least-recently-updated entry is evicted first; there is never more than
// one entry per address.
func (t *Table) Learn(mac core.MAC, port core.PortID) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[mac]; ok {
		e.port = port
		e.lastSeen = now
		return
	}
	if len(t.entries) >= t.maxEntries {
		t.evictOldestLocked()
	}
	t.entries[mac] = &entry{port: port, lastSeen: now}
}

// Lookup returns the egress port recorded for mac. Entries older than the
// aging timeout are treated as unknown and lazily removed.
func (t *Table) Lookup(mac core.MAC) (core.PortID, bool) {
	now := t.now()

	t.mu.RLock()
	e, ok := t.entries[mac]
	if ok && now.Sub(e.lastSeen) <= t.maxAge {
		port := e.port
		t.mu.RUnlock()
		return port, true
	}
	t.mu.RUnlock()

	if ok {
		// Expired; drop it so the slot frees up.
		t.mu.Lock()
		if e, ok := t.entries[mac]; ok && now.Sub(e.lastSeen) > t.maxAge {
			delete(t.entries, mac)
		}
		t.mu.Unlock()
	}
	return core.PortInvalid, false
}

// Len returns the current number of entries, expired ones included until
// they are lazily removed.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Flush drops every entry.
func (t *Table) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[core.MAC]*entry)
}

// evictOldestLocked removes the least-recently-updated entry. The table is
// small and bounded, so a linear scan beats maintaining an ordered
// structure on every refresh.
func (t *Table) evictOldestLocked() {
	var (
		oldest    core.MAC
		oldestAt  time.Time
		havePrior bool
	)
	for mac, e := range t.entries {
		if !havePrior || e.lastSeen.Before(oldestAt) {
			oldest = mac
			oldestAt = e.lastSeen
			havePrior = true
		}
	}
	if havePrior {
		delete(t.entries, oldest)
	}
}
