// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"postengine/internal/models"
	"postengine/internal/slug"
)

// TagStore manages tags.
type TagStore struct {
	q Querier
}

// NewTagStore returns a new TagStore.
func NewTagStore(q Querier) *TagStore {
	return &TagStore{q: q}
}

func (s *TagStore) findOne(ctx context.Context, column, value string) (*models.Tag, error) {
	t := &models.Tag{}
	err := s.q.QueryRowContext(ctx, `SELECT id, name, slug FROM tags WHERE `+column+` = $1`, value).
		Scan(&t.ID, &t.Name, &t.Slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag by %s: %w", column, err)
	}
	return t, nil
}

// FindByID retrieves a tag by id. Returns nil if not found.
func (s *TagStore) FindByID(ctx context.Context, id string) (*models.Tag, error) {
	return s.findOne(ctx, "id", id)
}

// FindBySlug retrieves a tag by slug. Returns nil if not found.
func (s *TagStore) FindBySlug(ctx context.Context, slug string) (*models.Tag, error) {
	return s.findOne(ctx, "slug", slug)
}

// FindByName retrieves a tag by name, ignoring case. Returns nil if not found.
func (s *TagStore) FindByName(ctx context.Context, name string) (*models.Tag, error) {
	t := &models.Tag{}
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, slug FROM tags
		WHERE LOWER(name) = LOWER($1)
		ORDER BY id
		LIMIT 1`, name).Scan(&t.ID, &t.Name, &t.Slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag by name: %w", err)
	}
	return t, nil
}

// SlugTaken reports whether a tag already uses slug.
func (s *TagStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	t, err := s.FindBySlug(ctx, slug)
	return t != nil, err
}

// Create inserts a tag. An empty slug is derived from the name, suffixed
// until it is free, and falls back to "tag" when the name has no
// characters a slug can carry.
func (s *TagStore) Create(ctx context.Context, t *models.Tag) (*models.Tag, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Slug == "" {
		free, err := slug.Unique(t.Name, "tag", func(candidate string) (bool, error) {
			return s.SlugTaken(ctx, candidate)
		})
		if err != nil {
			return nil, fmt.Errorf("create tag %q: %w", t.Name, err)
		}
		t.Slug = free
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO tags (id, name, slug) VALUES ($1, $2, $3)`, t.ID, t.Name, t.Slug)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create tag %q: %w", t.Slug, ErrConflict)
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return t, nil
}

// FindOrCreateByName returns the tag with the given name, ignoring case,
// creating it when missing. Names whose slugs collide stay distinct tags.
func (s *TagStore) FindOrCreateByName(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	existing, err := s.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.Create(ctx, &models.Tag{Name: name})
}

// PostIDs returns the ids of posts carrying the tag, ordered by post id.
func (s *TagStore) PostIDs(ctx context.Context, tagID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT post_id FROM posts_tags WHERE tag_id = $1 ORDER BY post_id`, tagID)
	if err != nil {
		return nil, fmt.Errorf("list tagged posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
