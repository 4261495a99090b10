package cache

import (
	"context"

	"postengine/internal/posts"
	"postengine/internal/store"
)

// Purger removes cached pages. PageCache implements it.
type Purger interface {
	PurgeURL(ctx context.Context, rawURL string) error
	PurgeAll(ctx context.Context) (int, error)
}

// Invalidator turns post edit events into cache purges. It is meant to be
// installed as the posts service event handler.
type Invalidator struct {
	pages   Purger
	siteURL string
	log     *store.InvalidationLogStore
}

// NewInvalidator creates an Invalidator. log may be nil.
func NewInvalidator(pages Purger, siteURL string, log *store.InvalidationLogStore) *Invalidator {
	return &Invalidator{pages: pages, siteURL: siteURL, log: log}
}

// HandleEvent purges what the event made stale.
func (inv *Invalidator) HandleEvent(ctx context.Context, event posts.Event, view *posts.PostView) error {
	if view == nil {
		return nil
	}
	target := posts.CacheInvalidationFor(event, view.UUID, inv.siteURL)

	var err error
	switch target.Kind {
	case posts.InvalidateNone:
		return nil
	case posts.InvalidateAll:
		_, err = inv.pages.PurgeAll(ctx)
	case posts.InvalidateURL:
		err = inv.pages.PurgeURL(ctx, target.URL)
	}
	if err != nil {
		return err
	}

	if inv.log != nil {
		inv.log.Log(ctx, view.ID, string(event), target.Kind.String(), target.URL)
	}
	return nil
}
