// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postengine/internal/models"
)

// postColumns lists all columns for posts SELECTs.
const postColumns = `posts.id, posts.uuid, posts.title, posts.slug, posts.type, posts.status,
	posts.featured, posts.visibility, posts.newsletter_id, posts.email_segment,
	posts.published_at, posts.created_at, posts.updated_at`

// PostStore handles post rows and their junction tables.
type PostStore struct {
	q Querier
}

// NewPostStore creates a PostStore over q.
func NewPostStore(q Querier) *PostStore {
	return &PostStore{q: q}
}

// scanPost scans a single posts row.
func scanPost(scanner interface{ Scan(...any) error }) (*models.Post, error) {
	var p models.Post
	var newsletterID, segment sql.NullString
	var publishedAt sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.UUID, &p.Title, &p.Slug, &p.Type, &p.Status,
		&p.Featured, &p.Visibility, &newsletterID, &segment,
		&publishedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if newsletterID.Valid {
		p.NewsletterID = &newsletterID.String
	}
	if segment.Valid {
		p.EmailSegment = &segment.String
	}
	if publishedAt.Valid {
		p.PublishedAt = &publishedAt.Time
	}
	return &p, nil
}

// FindByID retrieves a post of any status with its tiers and tags loaded.
// Returns nil if not found.
func (s *PostStore) FindByID(ctx context.Context, id string) (*models.Post, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE posts.id = $1`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post by id: %w", err)
	}

	if p.Tiers, err = s.Tiers(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Tags, err = s.Tags(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// SlugTaken reports whether a post already uses slug.
func (s *PostStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE slug = $1`, slug).Scan(&n); err != nil {
		return false, fmt.Errorf("check post slug: %w", err)
	}
	return n > 0, nil
}

// Create inserts a post. Missing ID, UUID, type, status and visibility get
// defaults; published posts without published_at get the current time.
func (s *PostStore) Create(ctx context.Context, p *models.Post) (*models.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.UUID == "" {
		p.UUID = uuid.NewString()
	}
	if p.Type == "" {
		p.Type = models.PostTypePost
	}
	if p.Status == "" {
		p.Status = models.PostStatusDraft
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPublic
	}
	if p.Status == models.PostStatusPublished && p.PublishedAt == nil {
		now := time.Now().UTC()
		p.PublishedAt = &now
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO posts (id, uuid, title, slug, type, status, featured, visibility,
		                   newsletter_id, email_segment, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.UUID, p.Title, p.Slug, p.Type, p.Status, p.Featured, p.Visibility,
		p.NewsletterID, p.EmailSegment, p.PublishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create post: %w", ErrConflict)
		}
		return nil, fmt.Errorf("create post: %w", err)
	}
	return s.FindByID(ctx, p.ID)
}

// Update writes every mutable column of p. Posts moving to published
// without a published_at get the current time.
func (s *PostStore) Update(ctx context.Context, p *models.Post) error {
	if p.Status == models.PostStatusPublished && p.PublishedAt == nil {
		now := time.Now().UTC()
		p.PublishedAt = &now
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE posts SET
			title = $1, slug = $2, status = $3, featured = $4, visibility = $5,
			newsletter_id = $6, email_segment = $7, published_at = $8,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $9
	`, p.Title, p.Slug, p.Status, p.Featured, p.Visibility,
		p.NewsletterID, p.EmailSegment, p.PublishedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update post: %w", ErrConflict)
		}
		return fmt.Errorf("update post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update post %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// Assignment sets one column in a bulk update.
type Assignment struct {
	Column string
	Value  any
}

// bulkEditable are the columns BulkUpdate may set.
var bulkEditable = map[string]bool{
	"status":     true,
	"featured":   true,
	"visibility": true,
}

// BulkUpdate applies the assignments to every post in ids and returns the
// number of rows updated.
func (s *PostStore) BulkUpdate(ctx context.Context, ids []string, set []Assignment) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("bulk update posts: no columns to set")
	}
	cols := make([]string, 0, len(set)+1)
	vals := make([]any, 0, len(set))
	for _, a := range set {
		if !bulkEditable[a.Column] {
			return 0, fmt.Errorf("bulk update posts: column %q is not bulk editable", a.Column)
		}
		cols = append(cols, a.Column+" = ?")
		vals = append(vals, a.Value)
	}
	cols = append(cols, "updated_at = CURRENT_TIMESTAMP")

	var total int64
	for _, chunk := range chunks(ids) {
		query := rebind(fmt.Sprintf("UPDATE posts SET %s WHERE id IN (%s)",
			strings.Join(cols, ", "), placeholders(len(chunk))))
		res, err := s.q.ExecContext(ctx, query, append(append([]any{}, vals...), toArgs(chunk)...)...)
		if err != nil {
			return total, fmt.Errorf("bulk update posts: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Tiers returns the tiers linked to a post in sort order.
func (s *PostStore) Tiers(ctx context.Context, postID string) ([]models.Tier, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT pr.id, pr.name, pr.slug, pr.active
		FROM posts_products pp
		JOIN products pr ON pr.id = pp.product_id
		WHERE pp.post_id = $1
		ORDER BY pp.sort_order, pr.slug
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.Tier
	for rows.Next() {
		var t models.Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Active); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// Tags returns the tags linked to a post in sort order.
func (s *PostStore) Tags(ctx context.Context, postID string) ([]models.Tag, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug
		FROM posts_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = $1
		ORDER BY pt.sort_order, t.slug
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// AuthorIDs returns the author ids of a post in sort order.
func (s *PostStore) AuthorIDs(ctx context.Context, postID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT author_id FROM posts_authors WHERE post_id = $1 ORDER BY sort_order
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list post authors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan author id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Meta returns the posts_meta row of a post, or nil if it has none.
func (s *PostStore) Meta(ctx context.Context, postID string) (*models.PostMeta, error) {
	m := &models.PostMeta{}
	err := s.q.QueryRowContext(ctx, `
		SELECT id, post_id, meta_title, meta_description, og_title, og_description
		FROM posts_meta WHERE post_id = $1
	`, postID).Scan(&m.ID, &m.PostID, &m.MetaTitle, &m.MetaDescription, &m.OGTitle, &m.OGDescription)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post meta: %w", err)
	}
	return m, nil
}

// SetMeta inserts the posts_meta row for m.PostID.
func (s *PostStore) SetMeta(ctx context.Context, m *models.PostMeta) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO posts_meta (id, post_id, meta_title, meta_description, og_title, og_description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.PostID, m.MetaTitle, m.MetaDescription, m.OGTitle, m.OGDescription)
	if err != nil {
		return fmt.Errorf("insert post meta: %w", err)
	}
	return nil
}

// LinkAuthors inserts posts_authors rows for postID, keeping the order of authorIDs.
func (s *PostStore) LinkAuthors(ctx context.Context, postID string, authorIDs []string) error {
	rows := make([][]any, len(authorIDs))
	for i, id := range authorIDs {
		rows[i] = []any{uuid.NewString(), postID, id, i}
	}
	_, err := BulkInsert(ctx, s.q, "posts_authors", []string{"id", "post_id", "author_id", "sort_order"}, rows, false)
	return err
}

// LinkTags attaches every tag to every post, skipping pairs that already
// exist, and returns the number of new junction rows.
func (s *PostStore) LinkTags(ctx context.Context, postIDs, tagIDs []string) (int64, error) {
	rows := make([][]any, 0, len(postIDs)*len(tagIDs))
	for _, tagID := range tagIDs {
		for _, postID := range postIDs {
			rows = append(rows, []any{uuid.NewString(), postID, tagID, 0})
		}
	}
	return BulkInsert(ctx, s.q, "posts_tags", []string{"id", "post_id", "tag_id", "sort_order"}, rows, true)
}

// ReplaceTiers removes every tier link of the given posts and links each
// post to tierIDs with sort_order following the slice order.
func (s *PostStore) ReplaceTiers(ctx context.Context, postIDs, tierIDs []string) error {
	if _, err := BulkDelete(ctx, s.q, "posts_products", "post_id", postIDs); err != nil {
		return err
	}
	rows := make([][]any, 0, len(postIDs)*len(tierIDs))
	for _, postID := range postIDs {
		for i, tierID := range tierIDs {
			rows = append(rows, []any{uuid.NewString(), postID, tierID, i})
		}
	}
	_, err := BulkInsert(ctx, s.q, "posts_products", []string{"id", "post_id", "product_id", "sort_order"}, rows, false)
	return err
}

// Page lists posts matching a WHERE clause (with "?" placeholders) ordered
// by newest first, and returns the total match count.
func (s *PostStore) Page(ctx context.Context, where string, args []any, limit, offset int) ([]models.Post, int, error) {
	var total int
	if err := s.q.QueryRowContext(ctx, rebind("SELECT COUNT(*) FROM posts WHERE "+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	query := rebind(`SELECT ` + postColumns + ` FROM posts WHERE ` + where +
		` ORDER BY posts.created_at DESC, posts.id LIMIT ? OFFSET ?`)
	rows, err := s.q.QueryContext(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var items []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, *p)
	}
	return items, total, rows.Err()
}
