// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

// CollectionType says how a collection's membership is maintained.
type CollectionType string

const (
	// CollectionManual collections are edited by explicit attach/detach.
	CollectionManual CollectionType = "manual"
	// CollectionAutomatic collections derive membership from a filter.
	CollectionAutomatic CollectionType = "automatic"
)

// Collection is an ordered list of posts.
type Collection struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Slug   string         `json:"slug"`
	Type   CollectionType `json:"type"`
	Filter *string        `json:"filter,omitempty"`

	// Posts holds member post ids in sort order.
	Posts []string `json:"posts,omitempty"`
}

// IsManual reports whether posts may be attached or detached explicitly.
func (c *Collection) IsManual() bool {
	return c.Type == CollectionManual
}

// CollectionPost identifies a post attached to a manual collection. Manual
// collections order by insertion, so the id is all they need.
type CollectionPost struct {
	ID string `json:"id"`
}
