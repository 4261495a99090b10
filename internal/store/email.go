package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"postengine/internal/models"
)

const emailColumns = `id, post_id, newsletter_id, status, recipient_filter, error, created_at, updated_at`

// EmailStore manages the emails sent for posts.
type EmailStore struct {
	q Querier
}

// NewEmailStore returns a new EmailStore.
func NewEmailStore(q Querier) *EmailStore {
	return &EmailStore{q: q}
}

func scanEmail(scanner interface{ Scan(...any) error }) (*models.Email, error) {
	var e models.Email
	var newsletterID, errText sql.NullString
	err := scanner.Scan(&e.ID, &e.PostID, &newsletterID, &e.Status, &e.RecipientFilter,
		&errText, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if newsletterID.Valid {
		e.NewsletterID = &newsletterID.String
	}
	if errText.Valid {
		e.Error = &errText.String
	}
	return &e, nil
}

// FindByPostID returns the email of a post. Returns nil if there is none.
func (s *EmailStore) FindByPostID(ctx context.Context, postID string) (*models.Email, error) {
	e, err := scanEmail(s.q.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE post_id = $1`, postID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find email by post: %w", err)
	}
	return e, nil
}

// FindByID returns an email by id. Returns nil if not found.
func (s *EmailStore) FindByID(ctx context.Context, id string) (*models.Email, error) {
	e, err := scanEmail(s.q.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find email by id: %w", err)
	}
	return e, nil
}

// Create inserts a pending email for a post.
func (s *EmailStore) Create(ctx context.Context, e *models.Email) (*models.Email, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = models.EmailStatusPending
	}
	if e.RecipientFilter == "" {
		e.RecipientFilter = "all"
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO emails (id, post_id, newsletter_id, status, recipient_filter)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.PostID, e.NewsletterID, e.Status, e.RecipientFilter)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create email for post %s: %w", e.PostID, ErrConflict)
		}
		return nil, fmt.Errorf("create email: %w", err)
	}
	return s.FindByID(ctx, e.ID)
}

// SetStatus moves an email to status and clears its error.
func (s *EmailStore) SetStatus(ctx context.Context, id string, status models.EmailStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE emails SET status = $1, error = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update email status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update email %s: %w", id, ErrNotFound)
	}
	return nil
}
