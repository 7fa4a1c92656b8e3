// Package redis provides a Redis-backed privilege cache and invalidation
// feed shared by every Steward instance pointed at the same server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/steward"
)

// Compile-time interface checks.
var (
	_ steward.Cache = (*Cache)(nil)
	_ steward.Feed  = (*Feed)(nil)
)

const (
	defaultPrefix       = "steward"
	defaultTTL          = 30 * time.Second
	defaultTombstoneTTL = 24 * time.Hour
)

// Snapshots are hashes with a stamp and a JSON payload. The clock, the
// per-principal tombstones and the tenant tombstones are plain counters.
// Every key carries the prefix as a hash tag ("{steward}:..."), so all of a
// cache's keys live in one Redis Cluster slot and the scripts never cross
// slots. The cost is that one cache's load is not spread across shards.
// Every multi-key operation is a script so it runs atomically on the server.
var (
	getScript = goredis.NewScript(`
local r = redis.call('HMGET', KEYS[1], 'stamp', 'priv')
if not r[2] then return false end
local tt = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(r[1]) < tt then
  redis.call('DEL', KEYS[1])
  return false
end
return r[2]
`)

	putScript = goredis.NewScript(`
local v = redis.call('INCR', KEYS[1])
redis.call('HSET', KEYS[2], 'stamp', v, 'priv', ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return v
`)

	putIfUnchangedScript = goredis.NewScript(`
local stamp = tonumber(ARGV[1])
local t = tonumber(redis.call('GET', KEYS[1]) or '0')
local tt = tonumber(redis.call('GET', KEYS[2]) or '0')
if t > stamp or tt > stamp then return 0 end
redis.call('HSET', KEYS[3], 'stamp', ARGV[1], 'priv', ARGV[2])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
return 1
`)

	invalidateScript = goredis.NewScript(`
local v = redis.call('INCR', KEYS[1])
redis.call('SET', KEYS[2], v, 'PX', ARGV[1])
redis.call('DEL', KEYS[3])
return v
`)

	invalidateTenantScript = goredis.NewScript(`
local v = redis.call('INCR', KEYS[1])
redis.call('SET', KEYS[2], v, 'PX', ARGV[1])
return v
`)
)

// Cache stores privilege snapshots in Redis.
//
// Tombstones expire after the tombstone TTL. A resolution that takes longer
// than that between Stamp and PutIfUnchanged can no longer be checked
// against invalidations that expired in between.
type Cache struct {
	client       goredis.UniversalClient
	prefix       string
	ttl          time.Duration
	tombstoneTTL time.Duration
	logger       *slog.Logger
}

// Option configures the Redis cache and feed.
type Option func(*options)

type options struct {
	prefix       string
	ttl          time.Duration
	tombstoneTTL time.Duration
	channel      string
	logger       *slog.Logger
}

// WithPrefix sets the key prefix. Instances sharing a prefix share a cache.
func WithPrefix(prefix string) Option { return func(o *options) { o.prefix = prefix } }

// WithTTL sets the default snapshot time-to-live.
func WithTTL(ttl time.Duration) Option { return func(o *options) { o.ttl = ttl } }

// WithTombstoneTTL sets how long invalidation tombstones are retained.
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(o *options) { o.tombstoneTTL = ttl }
}

// WithChannel sets the pub/sub channel used by the feed.
func WithChannel(channel string) Option { return func(o *options) { o.channel = channel } }

// WithLogger sets the logger used for errors that Get cannot return.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func buildOptions(opts []Option) options {
	o := options{
		prefix:       defaultPrefix,
		ttl:          defaultTTL,
		tombstoneTTL: defaultTombstoneTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.channel == "" {
		o.channel = o.prefix + ":invalidations"
	}
	return o
}

// NewCache wraps a Redis client.
func NewCache(client goredis.UniversalClient, opts ...Option) *Cache {
	o := buildOptions(opts)
	return &Cache{
		client:       client,
		prefix:       o.prefix,
		ttl:          o.ttl,
		tombstoneTTL: o.tombstoneTTL,
		logger:       o.logger,
	}
}

// Get returns the cached snapshot. Redis errors are logged and reported
// as a miss.
func (c *Cache) Get(ctx context.Context, tenantID, principalID string) (*steward.EffectivePrivileges, bool) {
	raw, err := getScript.Run(ctx, c.client,
		[]string{c.valueKey(tenantID, principalID), c.tenantTombKey(tenantID)},
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("steward: redis cache get",
			slog.String("tenant_id", tenantID),
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var priv steward.EffectivePrivileges
	if err := json.Unmarshal([]byte(raw), &priv); err != nil {
		c.logger.Warn("steward: redis cache decode",
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &priv, true
}

// Put stores a snapshot unconditionally.
func (c *Cache) Put(ctx context.Context, tenantID, principalID string, priv *steward.EffectivePrivileges, ttl time.Duration) error {
	payload, err := json.Marshal(priv)
	if err != nil {
		return fmt.Errorf("redis cache: encode: %w", err)
	}
	err = putScript.Run(ctx, c.client,
		[]string{c.clockKey(), c.valueKey(tenantID, principalID)},
		payload, c.ttlMillis(ttl),
	).Err()
	if err != nil {
		return fmt.Errorf("redis cache: put: %w", err)
	}
	return nil
}

// Stamp returns the shared clock.
func (c *Cache) Stamp(ctx context.Context, _, _ string) (steward.Stamp, error) {
	v, err := c.client.Get(ctx, c.clockKey()).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis cache: stamp: %w", err)
	}
	return steward.Stamp(v), nil
}

// PutIfUnchanged stores the snapshot unless the principal or its tenant
// was invalidated after stamp.
func (c *Cache) PutIfUnchanged(ctx context.Context, tenantID, principalID string, stamp steward.Stamp, priv *steward.EffectivePrivileges, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(priv)
	if err != nil {
		return false, fmt.Errorf("redis cache: encode: %w", err)
	}
	stored, err := putIfUnchangedScript.Run(ctx, c.client,
		[]string{c.tombKey(tenantID, principalID), c.tenantTombKey(tenantID), c.valueKey(tenantID, principalID)},
		strconv.FormatUint(uint64(stamp), 10), payload, c.ttlMillis(ttl),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis cache: put if unchanged: %w", err)
	}
	return stored == 1, nil
}

// Invalidate removes the principal's snapshot and blocks older puts.
func (c *Cache) Invalidate(ctx context.Context, tenantID, principalID string) error {
	err := invalidateScript.Run(ctx, c.client,
		[]string{c.clockKey(), c.tombKey(tenantID, principalID), c.valueKey(tenantID, principalID)},
		c.tombstoneTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis cache: invalidate: %w", err)
	}
	return nil
}

// InvalidateTenant hides every snapshot in the tenant stored before now.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) error {
	err := invalidateTenantScript.Run(ctx, c.client,
		[]string{c.clockKey(), c.tenantTombKey(tenantID)},
		c.tombstoneTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis cache: invalidate tenant: %w", err)
	}
	return nil
}

func (c *Cache) ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return max(ttl.Milliseconds(), 1)
}

// slot is the hash tag shared by every key of the cache.
func (c *Cache) slot() string { return "{" + c.prefix + "}" }

func (c *Cache) clockKey() string { return c.slot() + ":clock" }

func (c *Cache) valueKey(tenantID, principalID string) string {
	return c.slot() + ":priv:" + scopedKey(tenantID, principalID)
}

func (c *Cache) tombKey(tenantID, principalID string) string {
	return c.slot() + ":tomb:" + scopedKey(tenantID, principalID)
}

func (c *Cache) tenantTombKey(tenantID string) string {
	return c.slot() + ":ttomb:" + tenantID
}

// scopedKey length-prefixes the tenant so IDs containing the separator
// cannot collide.
func scopedKey(tenantID, principalID string) string {
	return strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" + principalID
}
