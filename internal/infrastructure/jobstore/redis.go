// Package jobstore archives finished bulk operations in Redis with a TTL.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
)

const keyPrefix = "bulk:"

// RedisArchive stores each state under bulk:op:<id> and indexes it in a
// per-vendor sorted set scored by start time.
type RedisArchive struct {
	client *redis.Client
	ttl    time.Duration
}

// Compile-time checks
var (
	_ bulk.Archive       = (*RedisArchive)(nil)
	_ bulk.ArchiveLister = (*RedisArchive)(nil)
)

// Connect parses a redis:// URL, connects and pings.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisArchive wraps a connected client. ttl must be positive.
func NewRedisArchive(client *redis.Client, ttl time.Duration) *RedisArchive {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisArchive{client: client, ttl: ttl}
}

// Ping checks the Redis connection.
func (a *RedisArchive) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func opKey(id string) string {
	return keyPrefix + "op:" + id
}

func vendorKey(vendorID int64) string {
	return keyPrefix + "vendor:" + strconv.FormatInt(vendorID, 10)
}

// Save writes the state with the archive TTL and refreshes the vendor index.
func (a *RedisArchive) Save(ctx context.Context, st bulk.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode operation %s: %w", st.OperationID, err)
	}

	pipe := a.client.TxPipeline()
	pipe.Set(ctx, opKey(st.OperationID), payload, a.ttl)
	pipe.ZAdd(ctx, vendorKey(st.VendorID), redis.Z{
		Score:  float64(st.StartTime.UnixNano()),
		Member: st.OperationID,
	})
	pipe.Expire(ctx, vendorKey(st.VendorID), a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive operation %s: %w", st.OperationID, err)
	}
	return nil
}

// Load returns the archived state or bulk.ErrOperationNotFound once expired.
func (a *RedisArchive) Load(ctx context.Context, id string) (*bulk.State, error) {
	data, err := a.client.Get(ctx, opKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", bulk.ErrOperationNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var st bulk.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode operation %s: %w", id, err)
	}
	return &st, nil
}

// ListByVendor returns the vendor's archived states, newest first. Index
// members whose state has expired are pruned, and paging continues until
// limit live states are collected or the index is exhausted.
func (a *RedisArchive) ListByVendor(ctx context.Context, vendorID int64, limit int) ([]bulk.State, error) {
	var out []bulk.State
	var start int64
	for {
		want := limit - len(out)
		stop := int64(-1)
		if limit > 0 {
			stop = start + int64(want) - 1
		}
		ids, err := a.client.ZRevRange(ctx, vendorKey(vendorID), start, stop).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return out, nil
		}

		page, expired, err := a.loadPage(ctx, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)

		if len(expired) > 0 {
			if err := a.client.ZRem(ctx, vendorKey(vendorID), expired...).Err(); err != nil {
				return nil, err
			}
		}
		// Pruned members no longer occupy index positions
		start += int64(len(page))

		if limit <= 0 || len(out) >= limit || len(ids) < want {
			return out, nil
		}
	}
}

// loadPage fetches the states behind ids. Ids whose key has expired are returned separately.
func (a *RedisArchive) loadPage(ctx context.Context, ids []string) ([]bulk.State, []interface{}, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = opKey(id)
	}
	values, err := a.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}

	var page []bulk.State
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var st bulk.State
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, nil, fmt.Errorf("failed to decode operation %s: %w", ids[i], err)
		}
		page = append(page, st)
	}
	return page, expired, nil
}
