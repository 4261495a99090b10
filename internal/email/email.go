// Package email triggers newsletter emails for posts. It only creates and
// retries rows in the emails table; delivery is handled elsewhere.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"postengine/internal/models"
	"postengine/internal/store"
)

var (
	// ErrNoNewsletter means the post is not attached to a newsletter.
	ErrNoNewsletter = errors.New("post has no newsletter")
	// ErrNotRetryable means the email has not failed.
	ErrNotRetryable = errors.New("email is not in a failed state")
)

// Service creates and retries post emails inside the caller's transaction
// when one is given.
type Service struct {
	tx *store.Coordinator
}

// NewService creates an email Service.
func NewService(coord *store.Coordinator) *Service {
	return &Service{tx: coord}
}

// CreateEmail queues the newsletter email of a post. The recipient filter
// is the post's email segment, or "all".
func (s *Service) CreateEmail(ctx context.Context, tx *store.Tx, post *models.Post) (*models.Email, error) {
	if !post.HasNewsletter() {
		return nil, fmt.Errorf("create email for post %s: %w", post.ID, ErrNoNewsletter)
	}
	recipients := "all"
	if post.EmailSegment != nil && *post.EmailSegment != "" {
		recipients = *post.EmailSegment
	}

	return store.Run(ctx, s.tx, tx, func(tx *store.Tx) (*models.Email, error) {
		e, err := store.NewEmailStore(tx).Create(ctx, &models.Email{
			PostID:          post.ID,
			NewsletterID:    post.NewsletterID,
			RecipientFilter: recipients,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("email queued", "post_id", post.ID, "email_id", e.ID, "recipients", recipients)
		return e, nil
	})
}

// RetryEmail moves a failed email back to pending.
func (s *Service) RetryEmail(ctx context.Context, tx *store.Tx, e *models.Email) (*models.Email, error) {
	if e.Status != models.EmailStatusFailed {
		return nil, fmt.Errorf("retry email %s (%s): %w", e.ID, e.Status, ErrNotRetryable)
	}

	return store.Run(ctx, s.tx, tx, func(tx *store.Tx) (*models.Email, error) {
		emails := store.NewEmailStore(tx)
		if err := emails.SetStatus(ctx, e.ID, models.EmailStatusPending); err != nil {
			return nil, err
		}
		retried, err := emails.FindByID(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		slog.Info("email retried", "post_id", e.PostID, "email_id", e.ID)
		return retried, nil
	})
}
