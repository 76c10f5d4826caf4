package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "dashboard:version"
	// loadTimeout bounds a shared loader once it is detached from its caller.
	loadTimeout = 30 * time.Second
	// BumpChannel carries the new version after every invalidation.
	BumpChannel = "dashboard.bump"
)

// Cache stores computed dashboard payloads in Redis under versioned keys.
// Bumping the version orphans every key at once; orphans expire by TTL.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	version atomic.Int64
	group   singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising it when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if v := c.version.Load(); v > 0 {
		return v, nil
	}
	if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	v, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil {
		return 0, err
	}
	c.version.Store(v)
	return v, nil
}

// Key composes a cache key suffixed with the current version.
func (c *Cache) Key(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	v, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, v), nil
}

// FetchJSON decodes the cached value at key into dest, or runs loader and
// stores its result. Concurrent misses on one key share a single loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("dashboard cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			return json.Unmarshal(payload, dest)
		case !errors.Is(err, redis.Nil):
			return err
		}
	}
	raw, err := c.build(ctx, key, loader)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (c *Cache) build(ctx context.Context, key string, loader func(context.Context) (any, error)) ([]byte, error) {
	load := func() (any, error) {
		// The result is shared by every waiter on key, so the first caller
		// going away must not cancel it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c != nil && c.client != nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				return nil, err
			}
		}
		return raw, nil
	}
	if c == nil {
		v, err := load()
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-c.group.DoChan(key, load):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Bump invalidates every cached payload and tells other processes about it.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	v, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	c.version.Store(v)
	return v, c.client.Publish(ctx, BumpChannel, strconv.FormatInt(v, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other processes
// until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				v, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					// Unknown payload: forget the local copy and re-read it.
					c.version.Store(0)
					continue
				}
				if v > c.version.Load() {
					c.version.Store(v)
				}
			}
		}
	}()
	return nil
}
