// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// PostType distinguishes between posts and pages in the posts table.
type PostType string

const (
	PostTypePost PostType = "post"
	PostTypePage PostType = "page"
)

// PostStatus represents the publishing state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
	PostStatusScheduled PostStatus = "scheduled"
	// PostStatusSent marks email-only posts that were delivered but never
	// published on the site.
	PostStatusSent PostStatus = "sent"
)

// Visibility controls which audience can read a post.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityMembers Visibility = "members"
	VisibilityPaid    Visibility = "paid"
	VisibilityTiers   Visibility = "tiers"
)

// Valid reports whether v is one of the known visibility values.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityMembers, VisibilityPaid, VisibilityTiers:
		return true
	}
	return false
}

// Post is a content record. UUID is the stable identity token used in
// preview permalinks; ID is the primary key.
type Post struct {
	ID           string     `json:"id"`
	UUID         string     `json:"uuid"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Type         PostType   `json:"type"`
	Status       PostStatus `json:"status"`
	Featured     bool       `json:"featured"`
	Visibility   Visibility `json:"visibility"`
	NewsletterID *string    `json:"newsletter_id,omitempty"`
	EmailSegment *string    `json:"email_segment,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relations populated by store methods.
	Tiers []Tier `json:"tiers,omitempty"`
	Tags  []Tag  `json:"tags,omitempty"`
}

// IsPublished returns true if the post is in published status.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// HasNewsletter reports whether the post is attached to a newsletter.
func (p *Post) HasNewsletter() bool {
	return p.NewsletterID != nil && *p.NewsletterID != ""
}

// PostMeta holds the SEO and social fields kept in posts_meta.
type PostMeta struct {
	ID              string  `json:"id"`
	PostID          string  `json:"post_id"`
	MetaTitle       *string `json:"meta_title,omitempty"`
	MetaDescription *string `json:"meta_description,omitempty"`
	OGTitle         *string `json:"og_title,omitempty"`
	OGDescription   *string `json:"og_description,omitempty"`
}
