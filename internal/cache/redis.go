package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wegman-software/adminraster-go/internal/lookup"
	"github.com/wegman-software/adminraster-go/internal/metrics"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

const keyPrefix = "adminraster:px:"

// Results caches lookup results by pixel address, so every coordinate
// inside one pixel shares an entry. A nil *Results is a valid, disabled
// cache.
type Results struct {
	client *redis.Client
	ttl    time.Duration
}

// Open returns a cache for addr, or nil when addr is empty
func Open(addr, password string, ttl time.Duration) *Results {
	if addr == "" {
		return nil
	}
	return New(redis.NewClient(&redis.Options{Addr: addr, Password: password}), ttl)
}

// New wraps an existing client
func New(client *redis.Client, ttl time.Duration) *Results {
	return &Results{client: client, ttl: ttl}
}

// Close closes the client
func (c *Results) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Ping checks connectivity
func (c *Results) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Key returns the cache key of a pixel
func Key(addr tiling.TileAddress) string {
	return keyPrefix + addr.String()
}

// entry is the cached part of a result; coordinates are per request
type entry struct {
	Color     string `json:"c"`
	FeatureID int    `json:"f"`
	Found     bool   `json:"ok"`
	Admin1    string `json:"a1,omitempty"`
	Admin0    string `json:"a0,omitempty"`
	Sov       string `json:"s,omitempty"`
	Disputed  bool   `json:"d,omitempty"`
}

// Get returns the cached result for addr. ok is false on a miss.
func (c *Results) Get(ctx context.Context, addr tiling.TileAddress) (res lookup.Result, ok bool, err error) {
	if c == nil {
		return lookup.Result{}, false, nil
	}
	data, err := c.client.Get(ctx, Key(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMissesTotal.Inc()
		return lookup.Result{}, false, nil
	}
	if err != nil {
		return lookup.Result{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		metrics.CacheMissesTotal.Inc()
		return lookup.Result{}, false, nil
	}
	metrics.CacheHitsTotal.Inc()

	res = lookup.Result{
		Address:   addr,
		Color:     e.Color,
		FeatureID: e.FeatureID,
		Found:     e.Found,
	}
	if e.Found {
		res.Region.ID = e.FeatureID
		res.Region.Admin1 = e.Admin1
		res.Region.Admin0 = e.Admin0
		res.Region.Sov = e.Sov
		res.Region.Disputed = e.Disputed
	}
	return res, true, nil
}

// Set stores res under its pixel address
func (c *Results) Set(ctx context.Context, res lookup.Result) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(entry{
		Color:     res.Color,
		FeatureID: res.FeatureID,
		Found:     res.Found,
		Admin1:    res.Region.Admin1,
		Admin0:    res.Region.Admin0,
		Sov:       res.Region.Sov,
		Disputed:  res.Region.Disputed,
	})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, Key(res.Address), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Flush drops every cached result, used after a new encode
func (c *Results) Flush(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	n := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, fmt.Errorf("redis del: %w", err)
		}
		n++
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}
