package email

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postengine/internal/database"
	"postengine/internal/models"
	"postengine/internal/store"
)

func setup(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "email.db") + "?_foreign_keys=on"
	db, err := database.Connect(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, database.DriverSQLite))
	return NewService(store.NewCoordinator(db)), db
}

func newPost(t *testing.T, db *sql.DB, newsletter, segment *string) *models.Post {
	t.Helper()
	slug := "p-" + uuid.NewString()[:8]
	p, err := store.NewPostStore(db).Create(context.Background(), &models.Post{
		Title: slug, Slug: slug, Status: models.PostStatusPublished,
		NewsletterID: newsletter, EmailSegment: segment,
	})
	require.NoError(t, err)
	return p
}

func newNewsletter(t *testing.T, db *sql.DB) *string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO newsletters (id, name, slug) VALUES ($1, 'Weekly', $2)`, id, id)
	require.NoError(t, err)
	return &id
}

func TestCreateEmail(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	nl := newNewsletter(t, db)
	segment := "status:paid"

	tests := []struct {
		name    string
		segment *string
		want    string
	}{
		{"no segment", nil, "all"},
		{"empty segment", new(string), "all"},
		{"segment", &segment, "status:paid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPost(t, db, nl, tt.segment)
			e, err := svc.CreateEmail(ctx, nil, p)
			require.NoError(t, err)
			assert.Equal(t, p.ID, e.PostID)
			assert.Equal(t, models.EmailStatusPending, e.Status)
			assert.Equal(t, tt.want, e.RecipientFilter)
			require.NotNil(t, e.NewsletterID)
			assert.Equal(t, *nl, *e.NewsletterID)
		})
	}
}

func TestCreateEmailNeedsNewsletter(t *testing.T) {
	svc, db := setup(t)
	p := newPost(t, db, nil, nil)

	_, err := svc.CreateEmail(context.Background(), nil, p)
	assert.ErrorIs(t, err, ErrNoNewsletter)
}

func TestCreateEmailTwiceConflicts(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	p := newPost(t, db, newNewsletter(t, db), nil)

	_, err := svc.CreateEmail(ctx, nil, p)
	require.NoError(t, err)
	_, err = svc.CreateEmail(ctx, nil, p)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestRetryEmail(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	p := newPost(t, db, newNewsletter(t, db), nil)
	e, err := svc.CreateEmail(ctx, nil, p)
	require.NoError(t, err)

	_, err = svc.RetryEmail(ctx, nil, e)
	assert.ErrorIs(t, err, ErrNotRetryable)

	require.NoError(t, store.NewEmailStore(db).SetStatus(ctx, e.ID, models.EmailStatusFailed))
	e.Status = models.EmailStatusFailed
	retried, err := svc.RetryEmail(ctx, nil, e)
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusPending, retried.Status)
	assert.Nil(t, retried.Error)
}
