// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// EmailStatus tracks the delivery state of a newsletter email.
type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusSubmitting EmailStatus = "submitting"
	EmailStatusSubmitted  EmailStatus = "submitted"
	EmailStatusFailed     EmailStatus = "failed"
)

// Email is the newsletter send attached to a post. At most one exists per post.
type Email struct {
	ID              string      `json:"id"`
	PostID          string      `json:"post_id"`
	NewsletterID    *string     `json:"newsletter_id,omitempty"`
	Status          EmailStatus `json:"status"`
	RecipientFilter string      `json:"recipient_filter"`
	Error           *string     `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
