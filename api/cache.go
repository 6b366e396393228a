/*
cache.go - Summary cache

PURPOSE:
  Summaries are cheap to compute but the dashboard asks for the same ones
  on every page load. The cache stores rendered SummaryDTOs keyed by
  owner, jurisdiction and as-of date.

INVALIDATION:
  Any trip write for an owner drops every cached summary of that owner.
  Rule changes drop everything. Keys per owner are tracked in a redis set
  so invalidation does not need SCAN on the hot path.

  The engine itself never caches; this layer sits entirely in the API.

KEYS:
  staycount:summary:{owner}:{jurisdiction}:{as_of}   JSON SummaryDTO
  staycount:summary-keys:{owner}                     SET of the above
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/metrics"
)

// SummaryCache stores rendered summaries.
type SummaryCache interface {
	Get(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint) (*SummaryDTO, error)
	Set(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint, dto SummaryDTO) error
	InvalidateOwner(ctx context.Context, owner generic.OwnerID) error
	InvalidateAll(ctx context.Context) error
}

// =============================================================================
// REDIS
// =============================================================================

const (
	summaryKeyPrefix = "staycount:summary:"
	ownerKeysPrefix  = "staycount:summary-keys:"
)

// RedisSummaryCache implements SummaryCache on redis.
type RedisSummaryCache struct {
	Db  *redis.Client
	TTL time.Duration
}

// NewRedisSummaryCache connects and pings redis.
func NewRedisSummaryCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisSummaryCache, error) {
	const op = "cache.NewRedisSummaryCache"
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &RedisSummaryCache{Db: client, TTL: ttl}, nil
}

func summaryKey(owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint) string {
	return fmt.Sprintf("%s%s:%s:%s", summaryKeyPrefix, owner, code, asOf)
}

func ownerKeys(owner generic.OwnerID) string {
	return ownerKeysPrefix + string(owner)
}

func (c *RedisSummaryCache) Get(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint) (*SummaryDTO, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, summaryKey(owner, code, asOf)).Result()
	if err == redis.Nil {
		metrics.SummaryCacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var dto SummaryDTO
	if err := json.Unmarshal([]byte(val), &dto); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SummaryCacheHits.Inc()
	return &dto, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, asOf generic.TimePoint, dto SummaryDTO) error {
	jsonData, err := json.Marshal(dto)
	if err != nil {
		return err
	}
	key := summaryKey(owner, code, asOf)

	pipe := c.Db.TxPipeline()
	pipe.Set(ctx, key, jsonData, c.TTL)
	pipe.SAdd(ctx, ownerKeys(owner), key)
	if c.TTL > 0 {
		pipe.Expire(ctx, ownerKeys(owner), c.TTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisSummaryCache) InvalidateOwner(ctx context.Context, owner generic.OwnerID) error {
	keys, err := c.Db.SMembers(ctx, ownerKeys(owner)).Result()
	if err != nil {
		return err
	}
	keys = append(keys, ownerKeys(owner))
	return c.Db.Del(ctx, keys...).Err()
}

func (c *RedisSummaryCache) InvalidateAll(ctx context.Context) error {
	for _, pattern := range []string{summaryKeyPrefix + "*", ownerKeysPrefix + "*"} {
		iter := c.Db.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.Db.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the redis client.
func (c *RedisSummaryCache) Close() error {
	return c.Db.Close()
}

// =============================================================================
// NO-OP
// =============================================================================

// NoopCache is used when redis is disabled.
type NoopCache struct{}

func (NoopCache) Get(context.Context, generic.OwnerID, generic.JurisdictionCode, generic.TimePoint) (*SummaryDTO, error) {
	return nil, nil
}
func (NoopCache) Set(context.Context, generic.OwnerID, generic.JurisdictionCode, generic.TimePoint, SummaryDTO) error {
	return nil
}
func (NoopCache) InvalidateOwner(context.Context, generic.OwnerID) error { return nil }
func (NoopCache) InvalidateAll(context.Context) error                   { return nil }

var (
	_ SummaryCache = (*RedisSummaryCache)(nil)
	_ SummaryCache = NoopCache{}
)
