package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maildeck/maildeck/pkg/command"
)

const (
	redisEntryPrefix = "maildeck:cache:entry:"
	redisTagPrefix   = "maildeck:cache:tag:"
)

// redisRecord is the wire form of a cached result. Requirement-tag
// generations are captured at store time and compared against the live
// counters on lookup.
type redisRecord struct {
	Command   string            `json:"command"`
	Doc       string            `json:"doc,omitempty"`
	APIPath   string            `json:"api_path,omitempty"`
	Status    command.Status    `json:"status"`
	Message   string            `json:"message"`
	Payload   json.RawMessage   `json:"payload"`
	ErrorInfo map[string]any    `json:"error_info,omitempty"`
	EventID   string            `json:"event_id,omitempty"`
	ElapsedNS int64             `json:"elapsed_ns"`
	CacheID   string            `json:"cache_id"`
	TagGens   map[string]uint64 `json:"tag_gens,omitempty"`
}

// RedisCache is a Cache shared between processes. Entry expiry rides on
// Redis key TTLs; tag invalidation uses one INCR counter per tag, compared
// lazily on Get. Results are rebuilt from their wire form, so render
// memoization does not survive the round trip.
type RedisCache struct {
	rdb redis.UniversalClient
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Put(ctx context.Context, id string, ttl time.Duration, requires []string, res *command.Result) error {
	if id == "" || ttl <= 0 {
		return nil
	}
	payload, err := command.EncodePayload(res.Payload)
	if err != nil {
		return fmt.Errorf("redis cache put %s: %w", id, err)
	}
	rec := redisRecord{
		Command:   res.Command,
		Doc:       res.Doc,
		APIPath:   res.APIPath,
		Status:    res.Status,
		Message:   res.Message,
		Payload:   payload,
		ErrorInfo: res.ErrorInfo,
		EventID:   res.EventID,
		ElapsedNS: res.Elapsed.Nanoseconds(),
		CacheID:   res.CacheID,
	}
	if len(requires) > 0 {
		gens, err := c.tagGens(ctx, requires)
		if err != nil {
			return err
		}
		rec.TagGens = gens
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis cache put %s: %w", id, err)
	}
	if err := c.rdb.Set(ctx, redisEntryPrefix+id, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache put %s: %w", id, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (*command.Result, error) {
	raw, err := c.rdb.Get(ctx, redisEntryPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get %s: %w", id, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis cache get %s: %w", id, err)
	}

	if len(rec.TagGens) > 0 {
		tags := make([]string, 0, len(rec.TagGens))
		for tag := range rec.TagGens {
			tags = append(tags, tag)
		}
		live, err := c.tagGens(ctx, tags)
		if err != nil {
			return nil, err
		}
		for tag, born := range rec.TagGens {
			if live[tag] > born {
				c.rdb.Del(ctx, redisEntryPrefix+id)
				return nil, ErrMiss
			}
		}
	}

	payload, err := command.DecodePayload(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("redis cache get %s: %w", id, err)
	}
	return &command.Result{
		Command:   rec.Command,
		Doc:       rec.Doc,
		APIPath:   rec.APIPath,
		Status:    rec.Status,
		Message:   rec.Message,
		Payload:   payload,
		ErrorInfo: rec.ErrorInfo,
		EventID:   rec.EventID,
		Elapsed:   time.Duration(rec.ElapsedNS),
		CacheID:   rec.CacheID,
	}, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, tags ...string) error {
	pipe := c.rdb.Pipeline()
	for _, tag := range tags {
		pipe.Incr(ctx, redisTagPrefix+tag)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache invalidate: %w", err)
	}
	return nil
}

func (c *RedisCache) Evict(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, redisEntryPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis cache evict %s: %w", id, err)
	}
	return nil
}

// Clear scans out every entry key. Tag counters stay; entries stored later
// capture the counters as they stand.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, redisEntryPrefix+"*", 0).Iterator()
	keys := make([]string, 0, 128)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis cache clear: %w", err)
		}
		keys = keys[:0]
		return nil
	}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == cap(keys) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis cache clear: %w", err)
	}
	return flush()
}

// tagGens reads the live generation counter for each tag. Missing counters
// read as zero.
func (c *RedisCache) tagGens(ctx context.Context, tags []string) (map[string]uint64, error) {
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = redisTagPrefix + tag
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache tag read: %w", err)
	}
	gens := make(map[string]uint64, len(tags))
	for i, tag := range tags {
		var gen uint64
		if s, ok := vals[i].(string); ok {
			gen, _ = strconv.ParseUint(s, 10, 64)
		}
		gens[tag] = gen
	}
	return gens, nil
}

var _ Cache = (*RedisCache)(nil)
