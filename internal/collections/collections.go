// Package collections manages ordered post collections. Manual collections
// are edited by attaching and detaching posts; automatic collections are
// rebuilt from their filter.
package collections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"postengine/internal/filter"
	"postengine/internal/models"
	"postengine/internal/store"
)

// ErrNotManual means a write targeted a collection whose membership is
// derived from a filter.
var ErrNotManual = errors.New("collection is not manual")

// Service reads and writes collection membership. Writes join the caller's
// transaction when one is given.
type Service struct {
	db       *sql.DB
	tx       *store.Coordinator
	resolver *store.Resolver
}

// NewService creates a collections Service.
func NewService(db *sql.DB, coord *store.Coordinator) *Service {
	return &Service{
		db:       db,
		tx:       coord,
		resolver: store.NewResolver(filter.NewNQL(filter.PostFields)),
	}
}

func (s *Service) querier(tx *store.Tx) store.Querier {
	if tx != nil {
		return tx
	}
	return s.db
}

// GetByID returns a collection with its members, or nil.
func (s *Service) GetByID(ctx context.Context, tx *store.Tx, id string) (*models.Collection, error) {
	return store.NewCollectionStore(s.querier(tx)).FindByID(ctx, id)
}

// GetBySlug returns a collection with its members, or nil.
func (s *Service) GetBySlug(ctx context.Context, tx *store.Tx, slug string) (*models.Collection, error) {
	return store.NewCollectionStore(s.querier(tx)).FindBySlug(ctx, slug)
}

// GetCollectionsForPost returns every collection the post is in.
func (s *Service) GetCollectionsForPost(ctx context.Context, tx *store.Tx, postID string) ([]models.Collection, error) {
	return store.NewCollectionStore(s.querier(tx)).ListForPost(ctx, postID)
}

// AddPostToCollection puts a post at the front of a manual collection.
func (s *Service) AddPostToCollection(ctx context.Context, tx *store.Tx, collectionID string, post models.CollectionPost) error {
	return s.tx.WithTx(ctx, tx, func(tx *store.Tx) error {
		cols := store.NewCollectionStore(tx)
		c, err := s.manual(ctx, cols, collectionID)
		if err != nil {
			return err
		}
		if err := cols.AddPost(ctx, c.ID, post.ID); err != nil {
			return fmt.Errorf("add post to collection %s: %w", c.Slug, err)
		}
		slog.Debug("post added to collection", "collection", c.Slug, "post_id", post.ID)
		return nil
	})
}

// RemovePostFromCollection detaches a post from a manual collection.
func (s *Service) RemovePostFromCollection(ctx context.Context, tx *store.Tx, collectionID, postID string) error {
	return s.tx.WithTx(ctx, tx, func(tx *store.Tx) error {
		cols := store.NewCollectionStore(tx)
		c, err := s.manual(ctx, cols, collectionID)
		if err != nil {
			return err
		}
		if err := cols.RemovePost(ctx, c.ID, postID); err != nil {
			return err
		}
		slog.Debug("post removed from collection", "collection", c.Slug, "post_id", postID)
		return nil
	})
}

func (s *Service) manual(ctx context.Context, cols *store.CollectionStore, id string) (*models.Collection, error) {
	c, err := cols.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	if !c.IsManual() {
		return nil, fmt.Errorf("collection %s: %w", c.Slug, ErrNotManual)
	}
	return c, nil
}

// Refresh rebuilds the membership of an automatic collection from its
// filter over published posts and returns the new member count.
func (s *Service) Refresh(ctx context.Context, tx *store.Tx, collectionID string) (int, error) {
	return store.Run(ctx, s.tx, tx, func(tx *store.Tx) (int, error) {
		cols := store.NewCollectionStore(tx)
		c, err := cols.FindByID(ctx, collectionID)
		if err != nil {
			return 0, err
		}
		if c == nil {
			return 0, fmt.Errorf("collection %s: %w", collectionID, store.ErrNotFound)
		}
		if c.IsManual() {
			return 0, fmt.Errorf("collection %s: refresh needs an automatic collection", c.Slug)
		}

		expr := ""
		if c.Filter != nil {
			expr = *c.Filter
		}
		ids, err := s.resolver.Resolve(ctx, tx, store.ResolveRequest{Filters: []string{expr}, Scope: store.ScopeDefault})
		if err != nil {
			return 0, fmt.Errorf("collection %s filter: %w", c.Slug, err)
		}

		if _, err := store.BulkDelete(ctx, tx, "collections_posts", "collection_id", []string{c.ID}); err != nil {
			return 0, err
		}
		for i := len(ids) - 1; i >= 0; i-- {
			if err := cols.AddPost(ctx, c.ID, ids[i]); err != nil {
				return 0, err
			}
		}
		slog.Info("automatic collection refreshed", "collection", c.Slug, "posts", len(ids))
		return len(ids), nil
	})
}
