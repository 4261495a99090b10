package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"postengine/internal/models"
)

// foreignKeys reads the foreign key graph of the migrated schema:
// refs[t] lists the tables t references.
func foreignKeys(t *testing.T, db *sql.DB) map[string][]string {
	t.Helper()
	rows, err := db.Query(`
		SELECT m.name, f."table"
		FROM sqlite_master m, pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table'
	`)
	if err != nil {
		t.Fatalf("read foreign keys: %v", err)
	}
	defer rows.Close()

	refs := make(map[string][]string)
	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			t.Fatalf("scan foreign key: %v", err)
		}
		refs[child] = append(refs[child], parent)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("foreign keys: %v", err)
	}
	return refs
}

func TestPostCascadeMatchesSchema(t *testing.T) {
	db := testDB(t)
	refs := foreignKeys(t, db)
	if len(refs) == 0 {
		t.Fatal("expected foreign keys in the schema")
	}
	if err := PostCascade.Validate(refs); err != nil {
		t.Errorf("PostCascade does not match the schema: %v", err)
	}
}

func TestCascadePlanOrder(t *testing.T) {
	plan := PostCascade.Plan()

	var tables []string
	for _, s := range plan {
		tables = append(tables, s.Table)
	}
	pos := func(table string) int {
		for i, tb := range tables {
			if tb == table {
				return i
			}
		}
		t.Fatalf("table %s missing from plan %v", table, tables)
		return -1
	}

	if tables[len(tables)-1] != "posts" {
		t.Errorf("plan must end with posts: %v", tables)
	}
	for _, postTable := range []string{"posts_authors", "posts_tags", "posts_meta", "posts_products", "collections_posts"} {
		if pos(postTable) < pos("emails") {
			t.Errorf("%s must be handled after emails: %v", postTable, tables)
		}
	}
	for _, dependent := range []string{"email_recipient_failures", "email_recipients", "email_batches", "email_spam_complaint_events", "suppressions"} {
		if pos(dependent) > pos("emails") {
			t.Errorf("%s must be handled before emails", dependent)
		}
	}
	if pos("email_recipient_failures") > pos("email_recipients") || pos("email_recipients") > pos("email_batches") {
		t.Errorf("recipient tables out of order: %v", tables)
	}
	for _, s := range plan {
		if s.Table == "suppressions" && s.Action != CascadeSetNull {
			t.Error("suppressions must be detached, not deleted")
		}
	}
}

func TestCascadeValidateRejectsBadRegistries(t *testing.T) {
	refs := map[string][]string{
		"posts_tags":    {"posts", "tags"},
		"emails":        {"posts"},
		"email_batches": {"emails"},
	}

	ok := CascadeRegistry{
		{Table: "posts_tags", Column: "post_id", Parent: ParentPost},
		{Table: "email_batches", Column: "email_id", Parent: ParentEmail},
	}
	if err := ok.Validate(refs); err != nil {
		t.Errorf("valid registry rejected: %v", err)
	}

	missing := CascadeRegistry{
		{Table: "posts_tags", Column: "post_id", Parent: ParentPost},
	}
	err := missing.Validate(refs)
	if err == nil || !strings.Contains(err.Error(), "email_batches") {
		t.Errorf("missing edge: got %v", err)
	}

	duplicated := CascadeRegistry{
		{Table: "posts_tags", Column: "post_id", Parent: ParentPost},
		{Table: "posts_tags", Column: "post_id", Parent: ParentPost},
		{Table: "email_batches", Column: "email_id", Parent: ParentEmail},
	}
	if err := duplicated.Validate(refs); err == nil {
		t.Error("duplicated edge: expected error")
	}

	// A table referencing another dependent table must come first.
	nested := map[string][]string{
		"email_recipients": {"email_batches", "emails"},
		"email_batches":    {"emails"},
		"emails":           {"posts"},
	}
	wrongOrder := CascadeRegistry{
		{Table: "email_batches", Column: "email_id", Parent: ParentEmail},
		{Table: "email_recipients", Column: "email_id", Parent: ParentEmail},
	}
	if err := wrongOrder.Validate(nested); err == nil {
		t.Error("wrong order: expected error")
	}
}

// cascadeFixture is a post with a row in every dependent table.
type cascadeFixture struct {
	postID        string
	emailID       string
	suppressionID string
}

func seedCascade(t *testing.T, q Querier, status models.PostStatus) cascadeFixture {
	t.Helper()
	ctx := context.Background()
	p := newPost(t, q, status)

	userID := uuid.NewString()
	mustExec(t, q, `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)`, userID, "Author", userID+"@example.com")
	if err := NewPostStore(q).LinkAuthors(ctx, p.ID, []string{userID}); err != nil {
		t.Fatalf("LinkAuthors: %v", err)
	}
	tag, err := NewTagStore(q).FindOrCreateByName(ctx, "Cascade "+p.Slug)
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	if _, err := NewPostStore(q).LinkTags(ctx, []string{p.ID}, []string{tag.ID}); err != nil {
		t.Fatalf("LinkTags: %v", err)
	}
	title := "Meta"
	if err := NewPostStore(q).SetMeta(ctx, &models.PostMeta{PostID: p.ID, MetaTitle: &title}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	mustExec(t, q, `INSERT INTO mobiledoc_revisions (id, post_id, mobiledoc) VALUES ($1, $2, '{}')`, uuid.NewString(), p.ID)
	mustExec(t, q, `INSERT INTO post_revisions (id, post_id, title) VALUES ($1, $2, 'rev')`, uuid.NewString(), p.ID)
	tierID := newTier(t, q, "tier-"+p.Slug)
	if err := NewPostStore(q).ReplaceTiers(ctx, []string{p.ID}, []string{tierID}); err != nil {
		t.Fatalf("ReplaceTiers: %v", err)
	}
	col, err := NewCollectionStore(q).Create(ctx, &models.Collection{Title: "C", Slug: "c-" + p.Slug})
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if err := NewCollectionStore(q).AddPost(ctx, col.ID, p.ID); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	email, err := NewEmailStore(q).Create(ctx, &models.Email{PostID: p.ID})
	if err != nil {
		t.Fatalf("email: %v", err)
	}
	batchID, recipientID, suppressionID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	mustExec(t, q, `INSERT INTO email_batches (id, email_id) VALUES ($1, $2)`, batchID, email.ID)
	mustExec(t, q, `INSERT INTO email_recipients (id, email_id, batch_id, member_id, member_email) VALUES ($1, $2, $3, 'm1', 'm1@example.com')`,
		recipientID, email.ID, batchID)
	mustExec(t, q, `INSERT INTO email_recipient_failures (id, email_id, email_recipient_id, message) VALUES ($1, $2, $3, 'bounce')`,
		uuid.NewString(), email.ID, recipientID)
	mustExec(t, q, `INSERT INTO email_spam_complaint_events (id, email_id, email_address) VALUES ($1, $2, 'm1@example.com')`,
		uuid.NewString(), email.ID)
	mustExec(t, q, `INSERT INTO suppressions (id, email, email_id, reason) VALUES ($1, $2, $3, 'spam')`,
		suppressionID, p.Slug+"@example.com", email.ID)

	return cascadeFixture{postID: p.ID, emailID: email.ID, suppressionID: suppressionID}
}

var cascadeTables = []string{
	"posts", "posts_authors", "posts_tags", "posts_meta", "mobiledoc_revisions",
	"post_revisions", "posts_products", "collections_posts", "emails", "email_batches",
	"email_recipients", "email_recipient_failures", "email_spam_complaint_events",
}

func tableCounts(t *testing.T, q Querier) map[string]int {
	t.Helper()
	out := make(map[string]int, len(cascadeTables))
	for _, table := range cascadeTables {
		out[table] = count(t, q, table, "")
	}
	return out
}

func TestCascadeExecute(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	target := seedCascade(t, db, models.PostStatusDraft)
	keep := seedCascade(t, db, models.PostStatusPublished)

	c := NewCoordinator(db)
	deleted, err := Run(ctx, c, nil, func(tx *Tx) (int64, error) {
		return PostCascade.Execute(ctx, tx, CascadeTargets{
			PostIDs:  []string{target.postID},
			EmailIDs: []string{target.emailID},
		})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted: got %d, want 1", deleted)
	}

	for table, n := range tableCounts(t, db) {
		if n != 1 {
			t.Errorf("%s: got %d rows, want only the kept post's row", table, n)
		}
	}
	if got := count(t, db, "posts", "id = $1", keep.postID); got != 1 {
		t.Error("unrelated post was deleted")
	}

	var emailID sql.NullString
	if err := db.QueryRow(`SELECT email_id FROM suppressions WHERE id = $1`, target.suppressionID).Scan(&emailID); err != nil {
		t.Fatalf("suppression should survive: %v", err)
	}
	if emailID.Valid {
		t.Errorf("suppression still references email %s", emailID.String)
	}
}

func TestCascadeExecuteWithoutEmails(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := newPost(t, db, models.PostStatusDraft)

	c := NewCoordinator(db)
	deleted, err := Run(ctx, c, nil, func(tx *Tx) (int64, error) {
		return PostCascade.Execute(ctx, tx, CascadeTargets{PostIDs: []string{p.ID}})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted: got %d, want 1", deleted)
	}
}

// failingQuerier fails every statement touching table.
type failingQuerier struct {
	Querier
	table string
}

func (f failingQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if strings.Contains(query, " "+f.table+" ") {
		return nil, errors.New("injected failure on " + f.table)
	}
	return f.Querier.ExecContext(ctx, query, args...)
}

func TestCascadeRollsBackOnFailure(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	target := seedCascade(t, db, models.PostStatusPublished)
	before := tableCounts(t, db)

	c := NewCoordinator(db)
	err := c.WithTx(ctx, nil, func(tx *Tx) error {
		// collections_posts is the last edge, after the email rows are gone.
		_, err := PostCascade.Execute(ctx, failingQuerier{Querier: tx, table: "collections_posts"}, CascadeTargets{
			PostIDs:  []string{target.postID},
			EmailIDs: []string{target.emailID},
		})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "injected failure") {
		t.Fatalf("Execute: got %v, want injected failure", err)
	}

	after := tableCounts(t, db)
	for table, n := range before {
		if after[table] != n {
			t.Errorf("%s: %d rows before, %d after rollback", table, n, after[table])
		}
	}
	if got := count(t, db, "suppressions", "email_id = $1", target.emailID); got != 1 {
		t.Error("suppression was detached despite rollback")
	}
}
