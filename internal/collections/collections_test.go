package collections

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
	dsn := "file:" + filepath.Join(t.TempDir(), "collections.db") + "?_foreign_keys=on"
	db, err := database.Connect(database.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, database.DriverSQLite))
	return NewService(db, store.NewCoordinator(db)), db
}

func newPost(t *testing.T, db *sql.DB, status models.PostStatus, isFeatured bool) string {
	t.Helper()
	slug := "p-" + uuid.NewString()[:8]
	p, err := store.NewPostStore(db).Create(context.Background(), &models.Post{
		Title: slug, Slug: slug, Status: status, Featured: isFeatured,
	})
	require.NoError(t, err)
	return p.ID
}

func newCollection(t *testing.T, db *sql.DB, slug string, typ models.CollectionType, filter string) *models.Collection {
	t.Helper()
	c := &models.Collection{Title: slug, Slug: slug, Type: typ}
	if filter != "" {
		c.Filter = &filter
	}
	c, err := store.NewCollectionStore(db).Create(context.Background(), c)
	require.NoError(t, err)
	return c
}

func TestAddAndRemovePost(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	c := newCollection(t, db, "picks", models.CollectionManual, "")
	first, second := newPost(t, db, models.PostStatusPublished, false), newPost(t, db, models.PostStatusPublished, false)

	require.NoError(t, svc.AddPostToCollection(ctx, nil, c.ID, models.CollectionPost{ID: first}))
	require.NoError(t, svc.AddPostToCollection(ctx, nil, c.ID, models.CollectionPost{ID: second}))
	require.NoError(t, svc.AddPostToCollection(ctx, nil, c.ID, models.CollectionPost{ID: second}))

	got, err := svc.GetBySlug(ctx, nil, "picks")
	require.NoError(t, err)
	assert.Equal(t, []string{second, first}, got.Posts, "newest attachment comes first")

	cols, err := svc.GetCollectionsForPost(ctx, nil, first)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, c.ID, cols[0].ID)

	require.NoError(t, svc.RemovePostFromCollection(ctx, nil, c.ID, first))
	got, err = svc.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, got.Posts)
}

func TestWritesRejectAutomaticAndMissingCollections(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	auto := newCollection(t, db, "featured", models.CollectionAutomatic, "featured:true")
	p := newPost(t, db, models.PostStatusPublished, true)

	err := svc.AddPostToCollection(ctx, nil, auto.ID, models.CollectionPost{ID: p})
	assert.ErrorIs(t, err, ErrNotManual)
	err = svc.RemovePostFromCollection(ctx, nil, auto.ID, p)
	assert.ErrorIs(t, err, ErrNotManual)

	err = svc.AddPostToCollection(ctx, nil, "missing", models.CollectionPost{ID: p})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWritesJoinCallerTransaction(t *testing.T) {
	_, db := setup(t)
	coord := store.NewCoordinator(db)
	svc := NewService(db, coord)
	ctx := context.Background()
	c := newCollection(t, db, "picks", models.CollectionManual, "")
	p := newPost(t, db, models.PostStatusDraft, false)

	tx, err := coord.Begin(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, svc.AddPostToCollection(ctx, tx, c.ID, models.CollectionPost{ID: p}))
	require.NoError(t, tx.Rollback())

	got, err := svc.GetByID(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Posts)
	assert.Equal(t, store.TxStats{Opened: 1, Joined: 1}, coord.Stats())
}

func TestRefresh(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	auto := newCollection(t, db, "featured", models.CollectionAutomatic, "featured:true")
	manual := newCollection(t, db, "picks", models.CollectionManual, "")
	a := newPost(t, db, models.PostStatusPublished, true)
	b := newPost(t, db, models.PostStatusPublished, true)
	newPost(t, db, models.PostStatusDraft, true)
	newPost(t, db, models.PostStatusPublished, false)

	n, err := svc.Refresh(ctx, nil, auto.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := svc.GetByID(ctx, nil, auto.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, got.Posts)

	_, err = svc.Refresh(ctx, nil, manual.ID)
	assert.Error(t, err)
	_, err = svc.Refresh(ctx, nil, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
