package store

import (
	"context"
	"fmt"
	"log/slog"
)

// CascadeParent names the id list a cascade edge is keyed by.
type CascadeParent int

const (
	// ParentPost edges match the ids of the posts being destroyed.
	ParentPost CascadeParent = iota
	// ParentEmail edges match the ids of those posts' emails.
	ParentEmail
)

func (p CascadeParent) String() string {
	if p == ParentEmail {
		return "emails"
	}
	return "posts"
}

// CascadeAction is what happens to dependent rows.
type CascadeAction int

const (
	CascadeDelete CascadeAction = iota
	// CascadeSetNull detaches dependent rows that must outlive the parent.
	CascadeSetNull
)

// CascadeEdge declares one dependent table cleaned up on bulk destroy.
type CascadeEdge struct {
	Table  string
	Column string
	Parent CascadeParent
	Action CascadeAction
}

// CascadeRegistry is an ordered list of edges. Email-keyed edges run
// first, then the email rows, then post-keyed edges, then the post rows.
type CascadeRegistry []CascadeEdge

// PostCascade is the cleanup order for destroying posts. Each table is
// cleaned before any table it references. Adding a dependent table means
// adding a row here.
var PostCascade = CascadeRegistry{
	{Table: "email_recipient_failures", Column: "email_id", Parent: ParentEmail, Action: CascadeDelete},
	{Table: "email_recipients", Column: "email_id", Parent: ParentEmail, Action: CascadeDelete},
	{Table: "email_batches", Column: "email_id", Parent: ParentEmail, Action: CascadeDelete},
	{Table: "email_spam_complaint_events", Column: "email_id", Parent: ParentEmail, Action: CascadeDelete},
	{Table: "suppressions", Column: "email_id", Parent: ParentEmail, Action: CascadeSetNull},

	{Table: "posts_authors", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
	{Table: "posts_tags", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
	{Table: "posts_meta", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
	{Table: "mobiledoc_revisions", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
	{Table: "post_revisions", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
	{Table: "posts_products", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
	{Table: "collections_posts", Column: "post_id", Parent: ParentPost, Action: CascadeDelete},
}

// Step is one statement of a cascade plan.
type Step struct {
	CascadeEdge
	// Primary marks the final deletes of the parent rows themselves.
	Primary bool
}

// Plan returns the full ordered statement list: email-keyed deletes and
// set-null updates, the email rows, post-keyed deletes, then the posts.
func (r CascadeRegistry) Plan() []Step {
	var steps []Step
	add := func(keep func(CascadeEdge) bool) {
		for _, e := range r {
			if keep(e) {
				steps = append(steps, Step{CascadeEdge: e})
			}
		}
	}
	add(func(e CascadeEdge) bool { return e.Parent == ParentEmail && e.Action == CascadeDelete })
	add(func(e CascadeEdge) bool { return e.Parent == ParentEmail && e.Action == CascadeSetNull })
	steps = append(steps, Step{CascadeEdge: CascadeEdge{Table: "emails", Column: "id", Parent: ParentEmail, Action: CascadeDelete}, Primary: true})

	add(func(e CascadeEdge) bool { return e.Parent == ParentPost && e.Action == CascadeDelete })
	add(func(e CascadeEdge) bool { return e.Parent == ParentPost && e.Action == CascadeSetNull })
	steps = append(steps, Step{CascadeEdge: CascadeEdge{Table: "posts", Column: "id", Parent: ParentPost, Action: CascadeDelete}, Primary: true})
	return steps
}

// Validate checks the plan against a foreign key graph, where refs[t] lists
// the tables t references. Every table referencing a table the plan deletes
// from must itself be handled earlier in the plan.
func (r CascadeRegistry) Validate(refs map[string][]string) error {
	steps := r.Plan()
	position := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := position[s.Table]; dup {
			return fmt.Errorf("cascade: table %s appears twice", s.Table)
		}
		position[s.Table] = i
	}

	for i, s := range steps {
		if s.Action != CascadeDelete {
			continue
		}
		for child, parents := range refs {
			if child == s.Table {
				continue
			}
			for _, parent := range parents {
				if parent != s.Table {
					continue
				}
				at, ok := position[child]
				if !ok {
					return fmt.Errorf("cascade: %s references %s but has no edge", child, s.Table)
				}
				if at > i {
					return fmt.Errorf("cascade: %s must be cleaned before %s", child, s.Table)
				}
			}
		}
	}
	return nil
}

// CascadeTargets are the id lists a plan runs against.
type CascadeTargets struct {
	PostIDs  []string
	EmailIDs []string
}

// Execute runs the plan on q and returns the number of post rows deleted.
// It must run inside a transaction: a failed step leaves earlier steps
// applied until the caller rolls back.
func (r CascadeRegistry) Execute(ctx context.Context, q Querier, targets CascadeTargets) (int64, error) {
	var deleted int64
	for _, s := range r.Plan() {
		ids := targets.PostIDs
		if s.Parent == ParentEmail {
			ids = targets.EmailIDs
		}
		if len(ids) == 0 {
			continue
		}

		var n int64
		var err error
		switch s.Action {
		case CascadeSetNull:
			n, err = BulkSetNull(ctx, q, s.Table, s.Column, ids)
		default:
			n, err = BulkDelete(ctx, q, s.Table, s.Column, ids)
		}
		if err != nil {
			return 0, fmt.Errorf("cascade %s: %w", s.Table, err)
		}
		slog.Debug("cascade step applied", "table", s.Table, "keyed_by", s.Parent, "rows", n)

		if s.Primary && s.Table == "posts" {
			deleted = n
		}
	}
	return deleted, nil
}
