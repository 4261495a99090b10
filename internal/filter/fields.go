package filter

import "strings"

// PostFields are the filterable fields of the posts table. Relation fields
// are matched through EXISTS subqueries so a post matches once no matter how
// many related rows it has.
var PostFields = Fields{
	"id":            {Column: "posts.id"},
	"uuid":          {Column: "posts.uuid"},
	"slug":          {Column: "posts.slug"},
	"title":         {Column: "posts.title"},
	"type":          {Column: "posts.type"},
	"status":        {Column: "posts.status"},
	"featured":      {Column: "posts.featured", Kind: KindBool},
	"visibility":    {Column: "posts.visibility"},
	"newsletter_id": {Column: "posts.newsletter_id"},
	"published_at":  {Column: "posts.published_at", Kind: KindTime},
	"created_at":    {Column: "posts.created_at", Kind: KindTime},
	"updated_at":    {Column: "posts.updated_at", Kind: KindTime},
	"tag": {
		Column: "t.slug",
		Exists: "EXISTS (SELECT 1 FROM posts_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = posts.id AND %s)",
	},
	"tier": {
		Column: "pr.slug",
		Exists: "EXISTS (SELECT 1 FROM posts_products pp JOIN products pr ON pr.id = pp.product_id WHERE pp.post_id = posts.id AND %s)",
	},
	"author": {
		Column: "u.id",
		Exists: "EXISTS (SELECT 1 FROM posts_authors pa JOIN users u ON u.id = pa.author_id WHERE pa.post_id = posts.id AND %s)",
	},
}

// MemberFields are the filterable fields of the members table, the target
// of newsletter email segments.
var MemberFields = Fields{
	"id":     {Column: "members.id"},
	"email":  {Column: "members.email"},
	"name":   {Column: "members.name"},
	"status": {Column: "members.status"},
}

func init() {
	PostFields["tags"] = PostFields["tag"]
	PostFields["tags.slug"] = PostFields["tag"]
	PostFields["tiers"] = PostFields["tier"]
	PostFields["authors"] = PostFields["author"]
}

// Merge combines filters with AND. Blank filters are dropped and every
// remaining filter is parenthesised, so "a,b" and "c" become "(a,b)+(c)".
func Merge(filters ...string) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, "("+f+")")
		}
	}
	return strings.Join(parts, "+")
}

// Blank reports whether every filter is empty or whitespace.
func Blank(filters ...string) bool {
	return Merge(filters...) == ""
}

// EqualValues collects the values of positive equality clauses on any of
// the given fields, walking through ORs and ANDs. It is used to read slug
// lists such as "tier:gold,tier:silver" out of a visibility filter.
func EqualValues(n Node, fields ...string) []string {
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case And:
			for _, t := range n.Terms {
				walk(t)
			}
		case Or:
			for _, t := range n.Terms {
				walk(t)
			}
		case Clause:
			if !want[n.Field] || n.Op != OpEq {
				return
			}
			for _, v := range n.Values {
				if !v.Null {
					out = append(out, v.Text)
				}
			}
		}
	}
	walk(n)
	return out
}
