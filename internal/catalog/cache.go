package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/myhmtk/storefront/internal/domain"
)

// Lookup resolves product ids to products. Missing ids are absent from the
// result.
type Lookup interface {
	Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

var errVersionMoved = errors.New("product version moved")

// RedisCache is a read-through cache in front of a Lookup. Redis failures
// degrade to the underlying source.
type RedisCache struct {
	client      *redis.Client
	source      Lookup
	baseTTL     time.Duration
	fillTimeout time.Duration
	sfg         singleflight.Group
	logger      *slog.Logger
}

func NewRedisCache(client *redis.Client, source Lookup, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client:      client,
		source:      source,
		baseTTL:     10 * time.Minute,
		fillTimeout: 5 * time.Second,
		logger:      logger,
	}
}

func (c *RedisCache) Products(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	var missing []int64
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("product cache read failed", "error", err)
		missing = ids
	} else {
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var p domain.Product
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[p.ID] = p
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	filled, err := c.fill(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range filled {
		out[id] = p
	}
	return out, nil
}

// fill loads ids from the source on a context detached from the caller, so
// one cancelled caller does not fail the others sharing the flight.
func (c *RedisCache) fill(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}

	ch := c.sfg.DoChan(strings.Join(parts, ","), func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout)
		defer cancel()

		versions, verErr := c.versions(fillCtx, sorted)
		products, err := c.source.Products(fillCtx, sorted)
		if err != nil {
			return nil, err
		}
		if verErr != nil {
			c.logger.Warn("product cache read failed", "error", verErr)
			return products, nil
		}
		c.store(fillCtx, sorted, versions, products)
		return products, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[int64]domain.Product), nil
	}
}

func (c *RedisCache) versions(ctx context.Context, ids []int64) ([]any, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = versionKey(id)
	}
	return c.client.MGet(ctx, keys...).Result()
}

// store writes products only if none of their versions moved since the fill
// started. versions is aligned with ids. An Invalidate in between aborts the
// write.
func (c *RedisCache) store(ctx context.Context, ids []int64, versions []any, products map[int64]domain.Product) {
	var (
		keys   []string
		cached []int64
		before []any
	)
	for i, id := range ids {
		if _, ok := products[id]; !ok {
			continue
		}
		keys = append(keys, versionKey(id))
		cached = append(cached, id)
		before = append(before, versions[i])
	}
	if len(keys) == 0 {
		return
	}

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		now, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i := range now {
			if now[i] != before[i] {
				return errVersionMoved
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range cached {
				data, err := json.Marshal(products[id])
				if err != nil {
					return err
				}
				jitter := time.Duration(rand.IntN(60)) * time.Second
				pipe.Set(ctx, cacheKey(id), data, c.baseTTL+jitter)
			}
			return nil
		})
		return err
	}, keys...)

	switch {
	case err == nil:
	case errors.Is(err, errVersionMoved), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("product cache write skipped after invalidation")
	default:
		c.logger.Warn("product cache write failed", "error", err)
	}
}

// Invalidate bumps the product's version before dropping its entry, so a
// fill that read the old row cannot write it back.
func (c *RedisCache) Invalidate(ctx context.Context, id int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(id))
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func versionKey(id int64) string {
	return fmt.Sprintf("product:%d:version", id)
}
