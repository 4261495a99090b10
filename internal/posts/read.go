package posts

import (
	"context"
	"fmt"
	"strings"

	"postengine/internal/filter"
	"postengine/internal/models"
	"postengine/internal/slug"
	"postengine/internal/store"
)

const (
	defaultLimit = 15
	maxLimit     = 100
)

// BrowseOptions page through posts.
type BrowseOptions struct {
	Filter string
	// Collection narrows the listing to a collection, by id or slug.
	Collection string
	// AllStatuses includes drafts and scheduled posts.
	AllStatuses bool
	Limit       int
	Page        int
}

// BrowseResult is one page of posts.
type BrowseResult struct {
	Posts []models.Post `json:"posts"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Pages int           `json:"pages"`
}

// Browse lists posts matching opts, newest first.
func (s *Service) Browse(ctx context.Context, opts BrowseOptions) (*BrowseResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	page := max(opts.Page, 1)

	rr := store.ResolveRequest{Filters: []string{opts.Filter}, Scope: store.ScopeDefault}
	if opts.AllStatuses {
		rr.Scope = store.ScopeAll
	}

	if s.collectionsEnabled && opts.Collection != "" {
		c, err := s.findCollection(ctx, opts.Collection)
		if err != nil {
			return nil, err
		}
		if len(c.Posts) == 0 {
			return &BrowseResult{Posts: []models.Post{}, Page: page, Limit: limit}, nil
		}
		rr.Implicit = []string{"id:[" + strings.Join(c.Posts, ",") + "]+type:post"}
	}

	where, args, err := s.resolver.Where(rr)
	if err != nil {
		return nil, err
	}
	items, total, err := store.NewPostStore(s.db).Page(ctx, where, args, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("browse posts: %w", err)
	}
	if items == nil {
		items = []models.Post{}
	}
	return &BrowseResult{
		Posts: items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}, nil
}

func (s *Service) findCollection(ctx context.Context, idOrSlug string) (*models.Collection, error) {
	c, err := s.collections.GetByID(ctx, nil, idOrSlug)
	if err != nil {
		return nil, err
	}
	if c == nil {
		if c, err = s.collections.GetBySlug(ctx, nil, idOrSlug); err != nil {
			return nil, err
		}
	}
	if c == nil {
		return nil, fmt.Errorf("collection %q: %w", idOrSlug, ErrNotFound)
	}
	return c, nil
}

// ReadOptions tune Read.
type ReadOptions struct {
	IncludeCollections bool
}

// Read returns one post of any status.
func (s *Service) Read(ctx context.Context, id string, opts ReadOptions) (*PostView, error) {
	p, err := store.NewPostStore(s.db).FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}

	view := &PostView{Post: *p}
	if view.Email, err = store.NewEmailStore(s.db).FindByPostID(ctx, id); err != nil {
		return nil, err
	}
	if s.collectionsEnabled && opts.IncludeCollections {
		if view.Collections, err = s.collections.GetCollectionsForPost(ctx, nil, id); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// Copy duplicates a post as a new draft titled "<title> (Copy)", with the
// same authors, tags, tiers and meta.
func (s *Service) Copy(ctx context.Context, id string, actor models.Actor, tx *store.Tx) (*PostView, error) {
	view, err := store.Run(ctx, s.tx, tx, func(tx *store.Tx) (*PostView, error) {
		posts := store.NewPostStore(tx)
		src, err := posts.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}

		title := src.Title + " (Copy)"
		newSlug, err := slug.Unique(title, "untitled", func(candidate string) (bool, error) {
			return posts.SlugTaken(ctx, candidate)
		})
		if err != nil {
			return nil, err
		}

		dup, err := posts.Create(ctx, &models.Post{
			Title:        title,
			Slug:         newSlug,
			Type:         src.Type,
			Status:       models.PostStatusDraft,
			Featured:     src.Featured,
			Visibility:   src.Visibility,
			NewsletterID: src.NewsletterID,
			EmailSegment: src.EmailSegment,
		})
		if err != nil {
			return nil, err
		}

		authors, err := posts.AuthorIDs(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		if err := posts.LinkAuthors(ctx, dup.ID, authors); err != nil {
			return nil, err
		}
		tags := make([]string, len(src.Tags))
		for i, t := range src.Tags {
			tags[i] = t.ID
		}
		if _, err := posts.LinkTags(ctx, []string{dup.ID}, tags); err != nil {
			return nil, err
		}
		if len(src.Tiers) > 0 {
			if err := posts.ReplaceTiers(ctx, []string{dup.ID}, tierIDs(src.Tiers)); err != nil {
				return nil, err
			}
		}
		meta, err := posts.Meta(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			meta.ID, meta.PostID = "", dup.ID
			if err := posts.SetMeta(ctx, meta); err != nil {
				return nil, err
			}
		}
		if err := store.NewActionStore(tx).AddActions(ctx, "added", "post", []string{dup.ID}, actor); err != nil {
			return nil, err
		}

		copied, err := posts.FindByID(ctx, dup.ID)
		if err != nil {
			return nil, err
		}
		return &PostView{Post: *copied, Event: EventDraftUpdated}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("copy post %s: %w", id, err)
	}
	return view, nil
}

// TiersFromVisibilityFilter resolves a visibility filter such as
// "product:gold,product:silver" to the tiers it names, in filter order.
// Slugs without a tier are skipped.
func (s *Service) TiersFromVisibilityFilter(ctx context.Context, visibilityFilter string) ([]models.Tier, error) {
	node, err := filter.Parse(visibilityFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: visibility filter: %w", ErrInvalidArgument, err)
	}
	slugs := filter.EqualValues(node, "product", "products", "tier", "tiers")
	tiers, err := store.NewTierStore(s.db).FindBySlugs(ctx, slugs)
	if err != nil {
		return nil, err
	}
	if tiers == nil {
		tiers = []models.Tier{}
	}
	return tiers, nil
}
