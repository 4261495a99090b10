package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"postengine/internal/models"
)

// CollectionStore manages collections and their ordered memberships.
type CollectionStore struct {
	q Querier
}

// NewCollectionStore returns a new CollectionStore.
func NewCollectionStore(q Querier) *CollectionStore {
	return &CollectionStore{q: q}
}

func (s *CollectionStore) findOne(ctx context.Context, column, value string) (*models.Collection, error) {
	c := &models.Collection{}
	var f sql.NullString
	err := s.q.QueryRowContext(ctx, `SELECT id, title, slug, type, filter FROM collections WHERE `+column+` = $1`, value).
		Scan(&c.ID, &c.Title, &c.Slug, &c.Type, &f)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find collection by %s: %w", column, err)
	}
	if f.Valid {
		c.Filter = &f.String
	}
	if c.Posts, err = s.PostIDs(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID retrieves a collection with its member ids. Returns nil if not found.
func (s *CollectionStore) FindByID(ctx context.Context, id string) (*models.Collection, error) {
	return s.findOne(ctx, "id", id)
}

// FindBySlug retrieves a collection with its member ids. Returns nil if not found.
func (s *CollectionStore) FindBySlug(ctx context.Context, slug string) (*models.Collection, error) {
	return s.findOne(ctx, "slug", slug)
}

// Create inserts a collection.
func (s *CollectionStore) Create(ctx context.Context, c *models.Collection) (*models.Collection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Type == "" {
		c.Type = models.CollectionManual
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO collections (id, title, slug, type, filter) VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Title, c.Slug, c.Type, c.Filter)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

// PostIDs returns the member post ids of a collection in sort order.
func (s *CollectionStore) PostIDs(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT post_id FROM collections_posts WHERE collection_id = $1 ORDER BY sort_order, post_id
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan collection post: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListForPost returns the collections a post belongs to, ordered by slug.
func (s *CollectionStore) ListForPost(ctx context.Context, postID string) ([]models.Collection, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.title, c.slug, c.type, c.filter
		FROM collections c
		JOIN collections_posts cp ON cp.collection_id = c.id
		WHERE cp.post_id = $1
		ORDER BY c.slug
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list collections for post: %w", err)
	}
	defer rows.Close()

	var items []models.Collection
	for rows.Next() {
		var c models.Collection
		var f sql.NullString
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.Type, &f); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		if f.Valid {
			c.Filter = &f.String
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// AddPost appends a post to the front of a collection (newest first).
// Adding a post that is already a member is a no-op.
func (s *CollectionStore) AddPost(ctx context.Context, collectionID, postID string) error {
	var minOrder sql.NullInt64
	if err := s.q.QueryRowContext(ctx, `
		SELECT MIN(sort_order) FROM collections_posts WHERE collection_id = $1
	`, collectionID).Scan(&minOrder); err != nil {
		return fmt.Errorf("collection min sort order: %w", err)
	}
	order := int64(0)
	if minOrder.Valid {
		order = minOrder.Int64 - 1
	}

	_, err := BulkInsert(ctx, s.q, "collections_posts",
		[]string{"id", "collection_id", "post_id", "sort_order"},
		[][]any{{uuid.NewString(), collectionID, postID, order}}, true)
	return err
}

// RemovePost detaches a post from a collection.
func (s *CollectionStore) RemovePost(ctx context.Context, collectionID, postID string) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM collections_posts WHERE collection_id = $1 AND post_id = $2
	`, collectionID, postID)
	if err != nil {
		return fmt.Errorf("remove post from collection: %w", err)
	}
	return nil
}
