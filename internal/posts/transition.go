package posts

import (
	"strings"

	"postengine/internal/models"
)

// Event summarizes how a single edit moved a post through its lifecycle.
type Event string

const (
	EventPublishedUpdated Event = "published_updated"
	EventUnpublished      Event = "unpublished"
	EventDraftUpdated     Event = "draft_updated"
	EventScheduledUpdated Event = "scheduled_updated"
	// EventNone means the edit has no lifecycle significance.
	EventNone Event = "none"
)

// transitionRule matches when current equals Current, previous satisfies
// Previous and, if NeedsChange is set, the edit changed the post.
type transitionRule struct {
	Current     models.PostStatus
	Previous    func(models.PostStatus) bool
	NeedsChange bool
	Event       Event
}

func anyStatus(models.PostStatus) bool { return true }

func wasPublished(s models.PostStatus) bool { return s == models.PostStatusPublished }

func wasNotPublished(s models.PostStatus) bool { return s != models.PostStatusPublished }

// transitions is evaluated top to bottom; the first match wins.
var transitions = []transitionRule{
	{Current: models.PostStatusPublished, Previous: anyStatus, NeedsChange: true, Event: EventPublishedUpdated},
	{Current: models.PostStatusDraft, Previous: wasPublished, Event: EventUnpublished},
	{Current: models.PostStatusDraft, Previous: wasNotPublished, Event: EventDraftUpdated},
	{Current: models.PostStatusScheduled, Previous: anyStatus, NeedsChange: true, Event: EventScheduledUpdated},
}

// Transition derives the event for a post that moved from previous to
// current. changed reports whether the edit altered the post at all.
func Transition(previous, current models.PostStatus, changed bool) Event {
	for _, r := range transitions {
		if r.Current != current || !r.Previous(previous) {
			continue
		}
		if r.NeedsChange && !changed {
			continue
		}
		return r.Event
	}
	return EventNone
}

func emailed(s models.PostStatus) bool {
	return s == models.PostStatusPublished || s == models.PostStatusSent
}

// ShouldSendEmail reports whether an edit from previous to current reaches
// the audience for the first time.
func ShouldSendEmail(current, previous models.PostStatus) bool {
	return emailed(current) && !emailed(previous)
}

// InvalidationKind is the scope of a cache invalidation.
type InvalidationKind int

const (
	InvalidateNone InvalidationKind = iota
	InvalidateAll
	InvalidateURL
)

func (k InvalidationKind) String() string {
	switch k {
	case InvalidateAll:
		return "all"
	case InvalidateURL:
		return "url"
	}
	return "none"
}

// Invalidation tells the cache what an edit made stale. URL is only set
// for InvalidateURL.
type Invalidation struct {
	Kind InvalidationKind
	URL  string
}

// PreviewPath is the permalink path of a post that is not public yet.
func PreviewPath(uuid string) string {
	return "/p/" + uuid + "/"
}

// CacheInvalidationFor maps an event to the cache entries it makes stale.
// Publishing or unpublishing can change any listing, so everything goes.
// Drafts and scheduled posts are only reachable through their preview URL.
func CacheInvalidationFor(event Event, uuid, siteURL string) Invalidation {
	switch event {
	case EventPublishedUpdated, EventUnpublished:
		return Invalidation{Kind: InvalidateAll}
	case EventDraftUpdated, EventScheduledUpdated:
		return Invalidation{Kind: InvalidateURL, URL: strings.TrimRight(siteURL, "/") + PreviewPath(uuid)}
	}
	return Invalidation{Kind: InvalidateNone}
}
