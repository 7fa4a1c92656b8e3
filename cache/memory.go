// Package cache provides caching implementations for Steward privilege snapshots.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/xraph/steward"
)

// Compile-time interface check.
var _ steward.Cache = (*Memory)(nil)

// Memory is an in-process LRU cache with TTL-based expiration.
//
// Every operation runs under one mutex against a logical clock. Invalidate
// advances the clock and records a tombstone, and PutIfUnchanged refuses any
// snapshot whose stamp predates the tombstone. Tombstones are themselves kept
// in a bounded LRU; evicting one raises a floor that every later conditional
// put must clear, so forgetting a tombstone can only reject puts, never admit
// stale ones. Tenant tombstones are bounded the same way; evicting one also
// raises tenantFloor, below which Get treats every entry as invalidated.
type Memory struct {
	mu          sync.Mutex
	entries     *simplelru.LRU[string, *entry]
	tombs       *simplelru.LRU[string, steward.Stamp]
	tenantTombs *simplelru.LRU[string, steward.Stamp]
	floor       steward.Stamp
	tenantFloor steward.Stamp
	clock       steward.Stamp

	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	priv      *steward.EffectivePrivileges
	stamp     steward.Stamp
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the default entry time-to-live, used when Put is called
// without one.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// WithClock overrides the wall clock used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:         30 * time.Second,
		maxSize:     10000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxSize <= 0 {
		m.maxSize = 10000
	}

	// NewLRU only fails for a non-positive size.
	m.entries, _ = simplelru.NewLRU[string, *entry](m.maxSize, nil)
	m.tombs, _ = simplelru.NewLRU[string, steward.Stamp](m.maxSize, func(_ string, s steward.Stamp) {
		if s > m.floor {
			m.floor = s
		}
	})
	m.tenantTombs, _ = simplelru.NewLRU[string, steward.Stamp](m.maxSize, func(_ string, s steward.Stamp) {
		if s > m.tenantFloor {
			m.tenantFloor = s
		}
	})
	return m
}

// Get returns a copy of the cached snapshot.
func (m *Memory) Get(_ context.Context, tenantID, principalID string) (*steward.EffectivePrivileges, bool) {
	key := cacheKey(tenantID, principalID)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) || e.stamp < m.tenantBarrier(tenantID) {
		m.entries.Remove(key)
		return nil, false
	}
	return e.priv.Clone(), true
}

// Put stores a snapshot unconditionally. A non-positive ttl uses the
// configured default.
func (m *Memory) Put(_ context.Context, tenantID, principalID string, priv *steward.EffectivePrivileges, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock++
	m.store(tenantID, principalID, m.clock, priv, ttl)
	return nil
}

// Stamp returns the current logical time.
func (m *Memory) Stamp(_ context.Context, _, _ string) (steward.Stamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock, nil
}

// PutIfUnchanged stores the snapshot only if nothing invalidated the
// principal since stamp was taken.
func (m *Memory) PutIfUnchanged(_ context.Context, tenantID, principalID string, stamp steward.Stamp, priv *steward.EffectivePrivileges, ttl time.Duration) (bool, error) {
	key := cacheKey(tenantID, principalID)

	m.mu.Lock()
	defer m.mu.Unlock()

	tomb, _ := m.tombs.Peek(key)
	if max(tomb, m.tenantBarrier(tenantID), m.floor) > stamp {
		return false, nil
	}
	m.store(tenantID, principalID, stamp, priv, ttl)
	return true, nil
}

// Invalidate removes the principal's snapshot.
func (m *Memory) Invalidate(_ context.Context, tenantID, principalID string) error {
	key := cacheKey(tenantID, principalID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock++
	m.tombs.Add(key, m.clock)
	m.entries.Remove(key)
	return nil
}

// InvalidateTenant removes every snapshot in the tenant. Entries are
// dropped lazily on their next Get.
func (m *Memory) InvalidateTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock++
	m.tenantTombs.Add(tenantID, m.clock)
	return nil
}

// tenantBarrier is the stamp an entry of the tenant must reach to be
// valid. Must be called with m.mu held.
func (m *Memory) tenantBarrier(tenantID string) steward.Stamp {
	tomb, _ := m.tenantTombs.Peek(tenantID)
	return max(tomb, m.tenantFloor)
}

// Len returns the number of entries held, including ones a tenant
// invalidation has not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// store must be called with m.mu held.
func (m *Memory) store(tenantID, principalID string, stamp steward.Stamp, priv *steward.EffectivePrivileges, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.entries.Add(cacheKey(tenantID, principalID), &entry{
		priv:      priv.Clone(),
		stamp:     stamp,
		expiresAt: m.now().Add(ttl),
	})
}

func cacheKey(tenantID, principalID string) string {
	return tenantID + "\x00" + principalID
}
