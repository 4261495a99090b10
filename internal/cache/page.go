// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// pageKeyPrefix namespaces cached pages in Valkey.
	pageKeyPrefix = "postengine:page:"

	// DefaultPageTTL is how long a rendered page stays cached.
	DefaultPageTTL = 5 * time.Minute

	scanBatch = 100
)

// PageCache stores rendered pages in Valkey, keyed by URL path.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPageCache creates a page cache backed by client. A zero ttl uses
// DefaultPageTTL.
func NewPageCache(client *redis.Client, ttl time.Duration) *PageCache {
	if ttl == 0 {
		ttl = DefaultPageTTL
	}
	return &PageCache{client: client, ttl: ttl}
}

// Key returns the cache key of a URL or path. Scheme, host, query and
// fragment are ignored so absolute and relative forms share a key.
func Key(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cache key for %q: %w", rawURL, err)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return pageKeyPrefix + path, nil
}

// Get returns the cached page for a URL. ok is false on a miss.
func (pc *PageCache) Get(ctx context.Context, rawURL string) (body []byte, ok bool, err error) {
	key, err := Key(rawURL)
	if err != nil {
		return nil, false, err
	}
	body, err = pc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("page cache get %s: %w", key, err)
	}
	return body, true, nil
}

// Set stores a page for a URL with the configured TTL.
func (pc *PageCache) Set(ctx context.Context, rawURL string, body []byte) error {
	key, err := Key(rawURL)
	if err != nil {
		return err
	}
	if err := pc.client.Set(ctx, key, body, pc.ttl).Err(); err != nil {
		return fmt.Errorf("page cache set %s: %w", key, err)
	}
	return nil
}

// PurgeURL removes the cached page of one URL.
func (pc *PageCache) PurgeURL(ctx context.Context, rawURL string) error {
	key, err := Key(rawURL)
	if err != nil {
		return err
	}
	if err := pc.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("page cache purge %s: %w", key, err)
	}
	slog.Debug("page cache purged", "key", key)
	return nil
}

// PurgeAll removes every cached page and returns how many were removed.
func (pc *PageCache) PurgeAll(ctx context.Context) (int, error) {
	var cursor uint64
	var deleted int
	for {
		keys, next, err := pc.client.Scan(ctx, cursor, pageKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("page cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := pc.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("page cache bulk delete: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("page cache fully cleared", "deleted", deleted)
	}
	return deleted, nil
}
