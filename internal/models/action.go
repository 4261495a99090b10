// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// Actor identifies who performed a mutation.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "user", "integration", "internal"
}

// InternalActor is recorded when no caller context is available.
var InternalActor = Actor{ID: "1", Type: "internal"}

// OrInternal returns a, or InternalActor when a carries no id.
func (a Actor) OrInternal() Actor {
	if a.ID == "" {
		return InternalActor
	}
	return a
}

// Action is an append-only audit entry recorded for every post touched by a
// bulk mutation.
type Action struct {
	ID           string    `json:"id"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	ActorID      string    `json:"actor_id"`
	ActorType    string    `json:"actor_type"`
	Event        string    `json:"event"`
	CreatedAt    time.Time `json:"created_at"`
}
