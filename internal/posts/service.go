// Package posts applies mutations to sets of posts selected by filter, and
// orchestrates single post edits with their email and cache side effects.
// Every mutation accepts an optional *store.Tx: with nil the service opens
// and owns one transaction, otherwise it joins the caller's.
package posts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"postengine/internal/filter"
	"postengine/internal/metrics"
	"postengine/internal/models"
	"postengine/internal/store"
)

// EmailService creates and retries the newsletter email of a post.
type EmailService interface {
	CreateEmail(ctx context.Context, tx *store.Tx, post *models.Post) (*models.Email, error)
	RetryEmail(ctx context.Context, tx *store.Tx, email *models.Email) (*models.Email, error)
}

// CollectionsService manages collection membership. A nil tx means the
// call runs on its own.
type CollectionsService interface {
	GetByID(ctx context.Context, tx *store.Tx, id string) (*models.Collection, error)
	GetBySlug(ctx context.Context, tx *store.Tx, slug string) (*models.Collection, error)
	GetCollectionsForPost(ctx context.Context, tx *store.Tx, postID string) ([]models.Collection, error)
	AddPostToCollection(ctx context.Context, tx *store.Tx, collectionID string, post models.CollectionPost) error
	RemovePostFromCollection(ctx context.Context, tx *store.Tx, collectionID, postID string) error
}

// EventHandler receives the lifecycle event of a successful edit after the
// transaction holding the edit commits. Edits inside a caller's transaction
// are delivered when the caller commits and dropped when it rolls back.
type EventHandler func(ctx context.Context, event Event, view *PostView) error

// Options configures a Service.
type Options struct {
	// Coordinator defaults to a coordinator over the service's database.
	Coordinator *store.Coordinator
	Emails      EmailService
	Collections CollectionsService
	// OnEvent is called for every committed Edit.
	OnEvent EventHandler
	// SiteURL prefixes the preview URLs handed to cache invalidation.
	SiteURL string
	// CollectionsEnabled turns on collection membership in edit, read and
	// browse.
	CollectionsEnabled bool
}

// Service is the posts mutation engine.
type Service struct {
	db          *sql.DB
	tx          *store.Coordinator
	resolver    *store.Resolver
	members     filter.Translator
	cascade     store.CascadeRegistry
	emails      EmailService
	collections CollectionsService
	onEvent     EventHandler

	siteURL            string
	collectionsEnabled bool
}

// NewService creates a posts Service over db.
func NewService(db *sql.DB, opts Options) *Service {
	coord := opts.Coordinator
	if coord == nil {
		coord = store.NewCoordinator(db)
	}
	return &Service{
		db:                 db,
		tx:                 coord,
		resolver:           store.NewResolver(filter.NewNQL(filter.PostFields)),
		members:            filter.NewNQL(filter.MemberFields),
		cascade:            store.PostCascade,
		emails:             opts.Emails,
		collections:        opts.Collections,
		onEvent:            opts.OnEvent,
		siteURL:            opts.SiteURL,
		collectionsEnabled: opts.CollectionsEnabled && opts.Collections != nil,
	}
}

// Coordinator returns the transaction coordinator the service runs on.
func (s *Service) Coordinator() *store.Coordinator {
	return s.tx
}

// BulkRequest selects the posts of a bulk operation and names who asked.
type BulkRequest struct {
	Filter string
	Actor  models.Actor
}

// BulkResult counts the posts a bulk edit changed and those it matched but
// could not change.
type BulkResult struct {
	Successful   int64 `json:"successful"`
	Unsuccessful int64 `json:"unsuccessful"`
}

// DestroyResult counts the posts a bulk destroy removed.
type DestroyResult struct {
	Deleted int64 `json:"deleted"`
}

// targets builds the resolve request of a bulk operation. Bulk operations
// reach every status and refuse a blank caller filter.
func targets(req BulkRequest, implicit ...string) store.ResolveRequest {
	return store.ResolveRequest{
		Filters:       []string{req.Filter},
		Implicit:      implicit,
		Scope:         store.ScopeAll,
		RequireTarget: true,
	}
}

// BulkEdit applies action to every post matching req.Filter in one
// transaction. The action and the filter are validated before the
// transaction opens.
func (s *Service) BulkEdit(ctx context.Context, action BulkAction, req BulkRequest, tx *store.Tx) (res BulkResult, err error) {
	name := "unknown"
	if action != nil {
		name = action.Name()
	}
	defer func() {
		metrics.BulkOperations.WithLabelValues("edit", name, metrics.Result(err)).Inc()
		if err == nil {
			metrics.BulkRows.WithLabelValues("edit").Add(float64(res.Successful))
		}
	}()

	if action == nil {
		return BulkResult{}, fmt.Errorf("%w: no action", ErrUnsupportedAction)
	}
	if err := action.validate(); err != nil {
		return BulkResult{}, err
	}
	var implicit []string
	if _, ok := action.(Unpublish); ok {
		implicit = []string{"status:published"}
	}
	if _, _, err := s.resolver.Where(targets(req, implicit...)); err != nil {
		return BulkResult{}, err
	}

	res, err = store.Run(ctx, s.tx, tx, func(tx *store.Tx) (BulkResult, error) {
		switch a := action.(type) {
		case Unpublish:
			return s.bulkSet(ctx, tx, targets(req, implicit...), req.Actor, "unpublished",
				store.Assignment{Column: "status", Value: models.PostStatusDraft})
		case Feature:
			return s.bulkSet(ctx, tx, targets(req), req.Actor, "featured",
				store.Assignment{Column: "featured", Value: true})
		case Unfeature:
			return s.bulkSet(ctx, tx, targets(req), req.Actor, "unfeatured",
				store.Assignment{Column: "featured", Value: false})
		case ChangeAccess:
			return s.bulkAccess(ctx, tx, req, a)
		case AddTags:
			return s.bulkAddTags(ctx, tx, req, a)
		}
		return BulkResult{}, fmt.Errorf("%w: %T", ErrUnsupportedAction, action)
	})
	if err != nil {
		return BulkResult{}, fmt.Errorf("bulk %s: %w", name, err)
	}

	slog.Info("bulk edit applied", "action", name, "filter", req.Filter,
		"successful", res.Successful, "unsuccessful", res.Unsuccessful)
	return res, nil
}

// bulkSet resolves the request and applies the assignments to the matches.
func (s *Service) bulkSet(ctx context.Context, tx *store.Tx, rr store.ResolveRequest, actor models.Actor, event string, set ...store.Assignment) (BulkResult, error) {
	ids, err := s.resolver.Resolve(ctx, tx, rr)
	if err != nil {
		return BulkResult{}, err
	}
	if len(ids) == 0 {
		return BulkResult{}, nil
	}

	n, err := store.NewPostStore(tx).BulkUpdate(ctx, ids, set)
	if err != nil {
		return BulkResult{}, err
	}
	if err := store.NewActionStore(tx).AddActions(ctx, event, "post", ids, actor); err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Successful: n, Unsuccessful: int64(len(ids)) - n}, nil
}

func (s *Service) bulkAccess(ctx context.Context, tx *store.Tx, req BulkRequest, a ChangeAccess) (BulkResult, error) {
	rr := targets(req)
	ids, err := s.resolver.Resolve(ctx, tx, rr)
	if err != nil {
		return BulkResult{}, err
	}
	if len(ids) == 0 {
		return BulkResult{}, nil
	}

	if a.Visibility == models.VisibilityTiers {
		found, err := store.NewTierStore(tx).FindByIDs(ctx, a.Tiers)
		if err != nil {
			return BulkResult{}, err
		}
		if len(found) != len(dedupe(a.Tiers)) {
			return BulkResult{}, fmt.Errorf("tiers %v: %w", a.Tiers, ErrNotFound)
		}
	}

	posts := store.NewPostStore(tx)
	n, err := posts.BulkUpdate(ctx, ids, []store.Assignment{{Column: "visibility", Value: a.Visibility}})
	if err != nil {
		return BulkResult{}, err
	}
	if a.Visibility == models.VisibilityTiers {
		if err := posts.ReplaceTiers(ctx, ids, dedupe(a.Tiers)); err != nil {
			return BulkResult{}, err
		}
	}
	if err := store.NewActionStore(tx).AddActions(ctx, "edited", "post", ids, req.Actor); err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Successful: n, Unsuccessful: int64(len(ids)) - n}, nil
}

func (s *Service) bulkAddTags(ctx context.Context, tx *store.Tx, req BulkRequest, a AddTags) (BulkResult, error) {
	tags := store.NewTagStore(tx)
	tagIDs := make([]string, 0, len(a.Tags))
	for _, ref := range a.Tags {
		var tag *models.Tag
		var err error
		if ref.ID != "" {
			tag, err = tags.FindByID(ctx, ref.ID)
			if err == nil && tag == nil {
				err = fmt.Errorf("tag %s: %w", ref.ID, ErrNotFound)
			}
		} else {
			tag, err = tags.FindOrCreateByName(ctx, ref.Name)
		}
		if err != nil {
			return BulkResult{}, err
		}
		tagIDs = append(tagIDs, tag.ID)
	}
	tagIDs = dedupe(tagIDs)

	ids, err := s.resolver.Resolve(ctx, tx, targets(req))
	if err != nil {
		return BulkResult{}, err
	}
	if len(ids) == 0 {
		return BulkResult{}, nil
	}

	linked, err := store.NewPostStore(tx).LinkTags(ctx, ids, tagIDs)
	if err != nil {
		return BulkResult{}, err
	}
	if err := store.NewActionStore(tx).AddActions(ctx, "edited", "post", ids, req.Actor); err != nil {
		return BulkResult{}, err
	}
	slog.Debug("tags linked", "posts", len(ids), "tags", len(tagIDs), "new_links", linked)
	return BulkResult{Successful: int64(len(ids))}, nil
}

// BulkDestroy deletes every post matching req.Filter, whatever its status,
// together with its dependent rows, in one transaction.
func (s *Service) BulkDestroy(ctx context.Context, req BulkRequest, tx *store.Tx) (res DestroyResult, err error) {
	defer func() {
		metrics.BulkOperations.WithLabelValues("destroy", "destroy", metrics.Result(err)).Inc()
		if err == nil {
			metrics.BulkRows.WithLabelValues("destroy").Add(float64(res.Deleted))
		}
	}()

	rr := targets(req)
	if _, _, err := s.resolver.Where(rr); err != nil {
		return DestroyResult{}, err
	}

	res, err = store.Run(ctx, s.tx, tx, func(tx *store.Tx) (DestroyResult, error) {
		rows, err := s.resolver.ResolveWithEmails(ctx, tx, rr)
		if err != nil {
			return DestroyResult{}, err
		}
		if len(rows) == 0 {
			return DestroyResult{}, nil
		}

		ids := store.IDs(rows)
		deleted, err := s.cascade.Execute(ctx, tx, store.CascadeTargets{
			PostIDs:  ids,
			EmailIDs: store.EmailIDs(rows),
		})
		if err != nil {
			return DestroyResult{}, err
		}
		if err := store.NewActionStore(tx).AddActions(ctx, "deleted", "post", ids, req.Actor); err != nil {
			return DestroyResult{}, err
		}
		return DestroyResult{Deleted: deleted}, nil
	})
	if err != nil {
		return DestroyResult{}, fmt.Errorf("bulk destroy: %w", err)
	}

	slog.Info("bulk destroy applied", "filter", req.Filter, "deleted", res.Deleted)
	return res, nil
}

// dedupe drops repeated values, keeping first occurrences in order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
