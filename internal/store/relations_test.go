package store

import (
	"context"
	"errors"
	"testing"

	"postengine/internal/models"
)

func TestTagStoreFindOrCreate(t *testing.T) {
	db := testDB(t)
	s := NewTagStore(db)
	ctx := context.Background()

	first, err := s.FindOrCreateByName(ctx, "  Breaking News ")
	if err != nil {
		t.Fatalf("FindOrCreateByName: %v", err)
	}
	if first.Slug != "breaking-news" || first.Name != "Breaking News" {
		t.Errorf("tag: got %+v", first)
	}
	second, err := s.FindOrCreateByName(ctx, "breaking news")
	if err != nil {
		t.Fatalf("FindOrCreateByName again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same tag, got %s and %s", first.ID, second.ID)
	}

	if _, err := s.Create(ctx, &models.Tag{Name: "Other", Slug: "breaking-news"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate slug: got %v, want ErrConflict", err)
	}
	bare, err := s.Create(ctx, &models.Tag{Name: "!!!"})
	if err != nil || bare.Slug != "tag" {
		t.Errorf("name without slug characters: got %+v, %v, want slug tag", bare, err)
	}
	clash, err := s.FindOrCreateByName(ctx, "Breaking-News!")
	if err != nil {
		t.Fatalf("FindOrCreateByName clash: %v", err)
	}
	if clash.ID == first.ID || clash.Slug != "breaking-news-2" {
		t.Errorf("clashing name: got %+v, want a new tag with slug breaking-news-2", clash)
	}

	found, err := s.FindByID(ctx, first.ID)
	if err != nil || found == nil || found.Slug != "breaking-news" {
		t.Errorf("FindByID: %+v, %v", found, err)
	}
}

func TestTierStoreFindPreservesOrder(t *testing.T) {
	db := testDB(t)
	s := NewTierStore(db)
	ctx := context.Background()
	gold := newTier(t, db, "gold")
	newTier(t, db, "silver")

	tiers, err := s.FindBySlugs(ctx, []string{"silver", "missing", "gold", "silver"})
	if err != nil {
		t.Fatalf("FindBySlugs: %v", err)
	}
	if len(tiers) != 2 || tiers[0].Slug != "silver" || tiers[1].Slug != "gold" {
		t.Errorf("FindBySlugs: got %+v", tiers)
	}

	tiers, err = s.FindByIDs(ctx, []string{gold})
	if err != nil || len(tiers) != 1 || tiers[0].ID != gold {
		t.Errorf("FindByIDs: %+v, %v", tiers, err)
	}

	all, err := s.List(ctx)
	if err != nil || len(all) != 2 {
		t.Errorf("List: %+v, %v", all, err)
	}
}

func TestEmailStoreLifecycle(t *testing.T) {
	db := testDB(t)
	s := NewEmailStore(db)
	ctx := context.Background()
	p := newPost(t, db, models.PostStatusPublished)

	none, err := s.FindByPostID(ctx, p.ID)
	if err != nil || none != nil {
		t.Fatalf("FindByPostID before create: %+v, %v", none, err)
	}

	e, err := s.Create(ctx, &models.Email{PostID: p.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Status != models.EmailStatusPending || e.RecipientFilter != "all" {
		t.Errorf("defaults: got %+v", e)
	}
	if _, err := s.Create(ctx, &models.Email{PostID: p.ID}); !errors.Is(err, ErrConflict) {
		t.Errorf("second email: got %v, want ErrConflict", err)
	}

	mustExec(t, db, `UPDATE emails SET status = 'failed', error = 'smtp down' WHERE id = $1`, e.ID)
	if err := s.SetStatus(ctx, e.ID, models.EmailStatusPending); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, err := s.FindByPostID(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindByPostID: %v", err)
	}
	if got.Status != models.EmailStatusPending || got.Error != nil {
		t.Errorf("after retry: got %+v", got)
	}

	if err := s.SetStatus(ctx, "missing", models.EmailStatusPending); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus missing: got %v, want ErrNotFound", err)
	}
}

func TestCollectionStoreMembership(t *testing.T) {
	db := testDB(t)
	s := NewCollectionStore(db)
	ctx := context.Background()
	a := newPost(t, db, models.PostStatusPublished)
	b := newPost(t, db, models.PostStatusPublished)

	col, err := s.Create(ctx, &models.Collection{Title: "Picks", Slug: "picks"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, id := range []string{a.ID, b.ID, a.ID} {
		if err := s.AddPost(ctx, col.ID, id); err != nil {
			t.Fatalf("AddPost: %v", err)
		}
	}

	got, err := s.FindBySlug(ctx, "picks")
	if err != nil {
		t.Fatalf("FindBySlug: %v", err)
	}
	if len(got.Posts) != 2 || got.Posts[0] != b.ID || got.Posts[1] != a.ID {
		t.Errorf("members: got %v, want newest first [%s %s]", got.Posts, b.ID, a.ID)
	}
	if !got.IsManual() {
		t.Error("expected manual collection by default")
	}

	cols, err := s.ListForPost(ctx, a.ID)
	if err != nil || len(cols) != 1 || cols[0].ID != col.ID {
		t.Errorf("ListForPost: %+v, %v", cols, err)
	}

	if err := s.RemovePost(ctx, col.ID, a.ID); err != nil {
		t.Fatalf("RemovePost: %v", err)
	}
	ids, err := s.PostIDs(ctx, col.ID)
	if err != nil || len(ids) != 1 || ids[0] != b.ID {
		t.Errorf("PostIDs after remove: %v, %v", ids, err)
	}
}

func TestActionStoreAppends(t *testing.T) {
	db := testDB(t)
	s := NewActionStore(db)
	ctx := context.Background()

	if err := s.AddActions(ctx, "edited", "post", []string{"p1", "p2"}, models.Actor{}); err != nil {
		t.Fatalf("AddActions: %v", err)
	}
	if err := s.AddActions(ctx, "deleted", "post", []string{"p1"}, models.Actor{ID: "u1", Type: "user"}); err != nil {
		t.Fatalf("AddActions: %v", err)
	}
	if err := s.AddActions(ctx, "edited", "post", nil, models.Actor{}); err != nil {
		t.Fatalf("AddActions with no ids: %v", err)
	}

	got, err := s.ListForResource(ctx, "post", "p1")
	if err != nil {
		t.Fatalf("ListForResource: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("actions: got %d, want 2", len(got))
	}
	if got[0].Event != "edited" || got[0].ActorType != "internal" {
		t.Errorf("first action: %+v", got[0])
	}
	if got[1].Event != "deleted" || got[1].ActorID != "u1" {
		t.Errorf("second action: %+v", got[1])
	}
}
