package posts

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"postengine/internal/metrics"
	"postengine/internal/models"
	"postengine/internal/store"
)

// PostView is a post as returned by reads and edits, with the relations
// the caller may need.
type PostView struct {
	models.Post
	Email       *models.Email       `json:"email,omitempty"`
	Collections []models.Collection `json:"collections,omitempty"`
	// Event is the lifecycle event of the edit that produced the view.
	Event Event `json:"-"`
}

// PostPatch lists the fields an edit changes. Nil fields are left alone.
type PostPatch struct {
	Title      *string
	Slug       *string
	Status     *models.PostStatus
	Featured   *bool
	Visibility *models.Visibility
	// Tiers replaces the tier links, in order.
	Tiers *[]string
	// NewsletterID attaches the post to a newsletter. An empty string
	// detaches it.
	NewsletterID *string
	// EmailSegment is a member filter, or "all".
	EmailSegment *string
	PublishedAt  *time.Time
	// Collections is the desired set of manual collection ids.
	Collections *[]string
}

// EditOptions tune a single edit.
type EditOptions struct {
	// IncludeCollections loads collection membership into the view.
	IncludeCollections bool
	Actor              models.Actor
}

var validStatus = map[models.PostStatus]bool{
	models.PostStatusDraft:     true,
	models.PostStatusPublished: true,
	models.PostStatusScheduled: true,
	models.PostStatusSent:      true,
}

func (p PostPatch) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidArgument)
	}
	if p.Slug != nil && strings.TrimSpace(*p.Slug) == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidArgument)
	}
	if p.Status != nil && !validStatus[*p.Status] {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidArgument, *p.Status)
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		return fmt.Errorf("%w: invalid visibility %q", ErrInvalidArgument, *p.Visibility)
	}
	if p.Visibility != nil && *p.Visibility == models.VisibilityTiers && p.Tiers != nil && len(*p.Tiers) == 0 {
		return fmt.Errorf("%w: tiers visibility needs at least one tier", ErrInvalidArgument)
	}
	return nil
}

// apply returns a copy of post with the patch applied.
func (p PostPatch) apply(post models.Post) models.Post {
	if p.Title != nil {
		post.Title = strings.TrimSpace(*p.Title)
	}
	if p.Slug != nil {
		post.Slug = strings.TrimSpace(*p.Slug)
	}
	if p.Status != nil {
		post.Status = *p.Status
	}
	if p.Featured != nil {
		post.Featured = *p.Featured
	}
	if p.Visibility != nil {
		post.Visibility = *p.Visibility
	}
	if p.NewsletterID != nil {
		if *p.NewsletterID == "" {
			post.NewsletterID = nil
		} else {
			id := *p.NewsletterID
			post.NewsletterID = &id
		}
	}
	if p.EmailSegment != nil {
		seg := *p.EmailSegment
		post.EmailSegment = &seg
	}
	if p.PublishedAt != nil {
		at := *p.PublishedAt
		post.PublishedAt = &at
	}
	return post
}

// columnsChanged reports whether any stored column differs between a and b.
func columnsChanged(a, b models.Post) bool {
	return a.Title != b.Title ||
		a.Slug != b.Slug ||
		a.Status != b.Status ||
		a.Featured != b.Featured ||
		a.Visibility != b.Visibility ||
		!equalPtr(a.NewsletterID, b.NewsletterID) ||
		!equalPtr(a.EmailSegment, b.EmailSegment) ||
		!equalTime(a.PublishedAt, b.PublishedAt)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func tierIDs(tiers []models.Tier) []string {
	ids := make([]string, len(tiers))
	for i, t := range tiers {
		ids[i] = t.ID
	}
	return ids
}

// Edit changes one post. Segment validation, collection membership, the
// field update and the email trigger share one transaction. The event
// handler runs after that transaction commits: before Edit returns when
// tx is nil, otherwise when the caller commits tx. A rolled back edit
// dispatches nothing.
func (s *Service) Edit(ctx context.Context, id string, patch PostPatch, opts EditOptions, tx *store.Tx) (*PostView, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	view, err := store.Run(ctx, s.tx, tx, func(tx *store.Tx) (*PostView, error) {
		view, err := s.edit(ctx, tx, id, patch, opts)
		if err != nil {
			return nil, err
		}
		tx.AfterCommit(func() { s.dispatch(ctx, view) })
		return view, nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit post %s: %w", id, err)
	}

	metrics.PostEvents.WithLabelValues(string(view.Event)).Inc()
	slog.Info("post edited", "post_id", id, "status", view.Status, "event", view.Event)
	return view, nil
}

// dispatch hands a committed edit to the event handler. Handler errors are
// logged, never returned: the edit itself has already been committed.
func (s *Service) dispatch(ctx context.Context, view *PostView) {
	if s.onEvent == nil {
		return
	}
	if err := s.onEvent(ctx, view.Event, view); err != nil {
		slog.Warn("post event handler failed", "post_id", view.ID, "event", view.Event, "error", err)
	}
}

func (s *Service) edit(ctx context.Context, tx *store.Tx, id string, patch PostPatch, opts EditOptions) (*PostView, error) {
	posts := store.NewPostStore(tx)
	current, err := posts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	previous := *current

	if seg := patch.EmailSegment; seg != nil && *seg != "all" {
		if err := store.ProbeMembers(ctx, tx, s.members, *seg); err != nil {
			return nil, fmt.Errorf("%w: email segment %q: %w", ErrInvalidArgument, *seg, err)
		}
	}

	next := patch.apply(previous)

	membershipChanged := false
	if patch.Collections != nil && s.collectionsEnabled {
		membershipChanged, err = s.syncCollections(ctx, tx, next, *patch.Collections)
		if err != nil {
			return nil, err
		}
	}

	changed := columnsChanged(previous, next)
	if changed {
		if err := posts.Update(ctx, &next); err != nil {
			return nil, err
		}
	}
	if patch.Tiers != nil && !slices.Equal(dedupe(*patch.Tiers), tierIDs(previous.Tiers)) {
		if err := posts.ReplaceTiers(ctx, []string{id}, dedupe(*patch.Tiers)); err != nil {
			return nil, err
		}
		changed = true
	}
	if changed {
		if err := store.NewActionStore(tx).AddActions(ctx, "edited", "post", []string{id}, opts.Actor); err != nil {
			return nil, err
		}
	}

	updated, err := posts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &PostView{Post: *updated}

	if view.Email, err = store.NewEmailStore(tx).FindByPostID(ctx, id); err != nil {
		return nil, err
	}
	if updated.HasNewsletter() && changed && ShouldSendEmail(updated.Status, previous.Status) {
		if err := s.triggerEmail(ctx, tx, view); err != nil {
			return nil, err
		}
	}

	if s.collectionsEnabled && (opts.IncludeCollections || membershipChanged) {
		if view.Collections, err = s.collections.GetCollectionsForPost(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	view.Event = Transition(previous.Status, updated.Status, changed)
	return view, nil
}

// triggerEmail creates the post's email, or retries it after a failure.
func (s *Service) triggerEmail(ctx context.Context, tx *store.Tx, view *PostView) error {
	if s.emails == nil {
		slog.Warn("post needs an email but no email service is configured", "post_id", view.ID)
		return nil
	}

	var err error
	switch {
	case view.Email == nil:
		view.Email, err = s.emails.CreateEmail(ctx, tx, &view.Post)
	case view.Email.Status == models.EmailStatusFailed:
		view.Email, err = s.emails.RetryEmail(ctx, tx, view.Email)
	}
	if err != nil {
		return fmt.Errorf("trigger email: %w", err)
	}
	return nil
}

// syncCollections attaches the post to desired manual collections it is
// not in and detaches it from manual collections not desired. Unknown and
// automatic collections are skipped. It reports whether membership changed.
func (s *Service) syncCollections(ctx context.Context, tx *store.Tx, post models.Post, desired []string) (bool, error) {
	existing, err := s.collections.GetCollectionsForPost(ctx, tx, post.ID)
	if err != nil {
		return false, err
	}
	member := make(map[string]bool, len(existing))
	for _, c := range existing {
		member[c.ID] = true
	}

	changed := false
	for _, id := range dedupe(desired) {
		if id == "" || member[id] {
			continue
		}
		c, err := s.collections.GetByID(ctx, tx, id)
		if err != nil {
			return false, err
		}
		if c == nil || !c.IsManual() {
			slog.Debug("skipping collection attach", "collection_id", id, "post_id", post.ID)
			continue
		}
		err = s.collections.AddPostToCollection(ctx, tx, id, models.CollectionPost{ID: post.ID})
		if err != nil {
			return false, err
		}
		changed = true
	}

	for _, c := range existing {
		if slices.Contains(desired, c.ID) || !c.IsManual() {
			continue
		}
		if err := s.collections.RemovePostFromCollection(ctx, tx, c.ID, post.ID); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}
