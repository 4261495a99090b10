package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"postengine/internal/filter"
)

// Scope restricts resolution by post status.
type Scope int

const (
	// ScopeDefault matches what a public listing shows: published posts.
	ScopeDefault Scope = iota
	// ScopeAll matches every status, including drafts and scheduled posts.
	ScopeAll
)

// ResolveRequest describes a row selection.
type ResolveRequest struct {
	// Filters come from the caller and are combined with AND.
	Filters []string
	// Implicit filters are added by the engine itself, for example
	// status:published when unpublishing. They never count as a target.
	Implicit []string
	Scope    Scope
	// RequireTarget rejects requests whose caller filters are all blank,
	// so a missing filter never turns into a whole-table mutation.
	RequireTarget bool
}

// Filter returns the merged filter expression the request resolves.
func (r ResolveRequest) Filter() string {
	return filter.Merge(append(append([]string{}, r.Implicit...), r.Filters...)...)
}

// ResolvedRow is one matched post and, if it has one, its email id.
type ResolvedRow struct {
	ID      string
	EmailID *string
}

// Resolver turns filter expressions into post ids.
type Resolver struct {
	tr filter.Translator
}

// NewResolver creates a Resolver using tr for the filter language.
func NewResolver(tr filter.Translator) *Resolver {
	return &Resolver{tr: tr}
}

// Where validates the request and renders its WHERE clause with "?"
// placeholders. Invalid or missing filters fail with filter.ErrInvalid.
func (r *Resolver) Where(req ResolveRequest) (string, []any, error) {
	if req.RequireTarget && filter.Blank(req.Filters...) {
		return "", nil, fmt.Errorf("%w: a filter is required to select posts", filter.ErrInvalid)
	}

	var conds []string
	var args []any
	if req.Scope == ScopeDefault {
		conds = append(conds, "posts.status = ?")
		args = append(args, "published")
	}
	if expr := req.Filter(); expr != "" {
		pred, err := r.tr.Translate(expr)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, pred.SQL)
		args = append(args, pred.Args...)
	}
	if len(conds) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// Resolve returns the ids of the posts matching req, ordered by id.
func (r *Resolver) Resolve(ctx context.Context, q Querier, req ResolveRequest) ([]string, error) {
	where, args, err := r.Where(req)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, rebind("SELECT posts.id FROM posts WHERE "+where+" ORDER BY posts.id"), args...)
	if err != nil {
		return nil, fmt.Errorf("resolve posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveWithEmails is Resolve plus a left join on emails, capturing the
// email id of each matched post when there is one.
func (r *Resolver) ResolveWithEmails(ctx context.Context, q Querier, req ResolveRequest) ([]ResolvedRow, error) {
	where, args, err := r.Where(req)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, rebind(`
		SELECT posts.id, emails.id
		FROM posts
		LEFT JOIN emails ON emails.post_id = posts.id
		WHERE `+where+`
		ORDER BY posts.id`), args...)
	if err != nil {
		return nil, fmt.Errorf("resolve posts with emails: %w", err)
	}
	defer rows.Close()

	var out []ResolvedRow
	for rows.Next() {
		var row ResolvedRow
		var emailID sql.NullString
		if err := rows.Scan(&row.ID, &emailID); err != nil {
			return nil, fmt.Errorf("scan resolved post: %w", err)
		}
		if emailID.Valid {
			row.EmailID = &emailID.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ProbeMembers runs a zero-row query over members with the given filter to
// check that it translates and executes.
func ProbeMembers(ctx context.Context, q Querier, tr filter.Translator, expr string) error {
	pred, err := tr.Translate(expr)
	if err != nil {
		return err
	}
	rows, err := q.QueryContext(ctx, rebind("SELECT members.id FROM members WHERE "+pred.SQL+" LIMIT 0"), pred.Args...)
	if err != nil {
		return fmt.Errorf("%w: %v", filter.ErrInvalid, err)
	}
	return rows.Close()
}

// IDs returns the ids of rows.
func IDs(rows []ResolvedRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// EmailIDs returns the non-nil email ids of rows.
func EmailIDs(rows []ResolvedRow) []string {
	var ids []string
	for _, r := range rows {
		if r.EmailID != nil {
			ids = append(ids, *r.EmailID)
		}
	}
	return ids
}
