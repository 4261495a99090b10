// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// invalidation.go records cache invalidations triggered by post edits so
// they can be inspected after the fact.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Invalidation is one recorded cache invalidation.
type Invalidation struct {
	ID            string    `json:"id"`
	PostID        string    `json:"post_id"`
	Event         string    `json:"event"`
	Scope         string    `json:"scope"`
	URL           *string   `json:"url,omitempty"`
	InvalidatedAt time.Time `json:"invalidated_at"`
}

// InvalidationLogStore handles the cache invalidation log.
type InvalidationLogStore struct {
	q Querier
}

// NewInvalidationLogStore creates a new InvalidationLogStore.
func NewInvalidationLogStore(q Querier) *InvalidationLogStore {
	return &InvalidationLogStore{q: q}
}

// Log records an invalidation. Failures are logged, never returned.
func (s *InvalidationLogStore) Log(ctx context.Context, postID, event, scope, url string) {
	var u *string
	if url != "" {
		u = &url
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO cache_invalidations (id, post_id, event, scope, url)
		VALUES ($1, $2, $3, $4, $5)
	`, ulid.Make().String(), postID, event, scope, u)
	if err != nil {
		slog.Warn("failed to log cache invalidation",
			"post_id", postID,
			"event", event,
			"scope", scope,
			"error", err,
		)
		return
	}
	slog.Debug("cache invalidation logged", "post_id", postID, "event", event, "scope", scope)
}

// Recent returns the latest invalidations, newest first.
func (s *InvalidationLogStore) Recent(ctx context.Context, limit int) ([]Invalidation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, post_id, event, scope, url, invalidated_at
		FROM cache_invalidations
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cache invalidations: %w", err)
	}
	defer rows.Close()

	var entries []Invalidation
	for rows.Next() {
		var e Invalidation
		if err := rows.Scan(&e.ID, &e.PostID, &e.Event, &e.Scope, &e.URL, &e.InvalidatedAt); err != nil {
			return nil, fmt.Errorf("scan cache invalidation: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
