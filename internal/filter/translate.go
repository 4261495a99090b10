package filter

import (
	"fmt"
	"strings"
)

// Kind is the value type of a filterable field.
type Kind int

const (
	KindText Kind = iota
	KindBool
	KindTime
)

// Field maps a filter field name onto SQL. Column is the compared
// expression. When Exists is set the comparison is wrapped in it: Exists is
// an EXISTS subquery with a single %s where the comparison goes, and a
// negated clause becomes NOT EXISTS over the positive comparison.
type Field struct {
	Column string
	Kind   Kind
	Exists string
}

// Fields is the set of filterable fields of one table.
type Fields map[string]Field

// Predicate is a SQL boolean expression with "?" placeholders.
type Predicate struct {
	SQL  string
	Args []any
}

// Translator turns a filter expression into a SQL predicate.
type Translator interface {
	Translate(expr string) (Predicate, error)
}

// NQL translates the filter subset parsed by Parse against a field map.
type NQL struct {
	Fields Fields
}

// NewNQL returns a translator over the given fields.
func NewNQL(fields Fields) *NQL {
	return &NQL{Fields: fields}
}

// Translate parses expr and renders it as a predicate.
func (t *NQL) Translate(expr string) (Predicate, error) {
	n, err := Parse(expr)
	if err != nil {
		return Predicate{}, err
	}
	var args []any
	sql, err := t.render(n, &args)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{SQL: sql, Args: args}, nil
}

func (t *NQL) render(n Node, args *[]any) (string, error) {
	switch n := n.(type) {
	case And:
		return t.join(n.Terms, " AND ", args)
	case Or:
		return t.join(n.Terms, " OR ", args)
	case Clause:
		return t.clause(n, args)
	}
	return "", fmt.Errorf("%w: unknown node %T", ErrInvalid, n)
}

func (t *NQL) join(terms []Node, sep string, args *[]any) (string, error) {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		s, err := t.render(term, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (t *NQL) clause(c Clause, args *[]any) (string, error) {
	f, ok := t.Fields[c.Field]
	if !ok {
		return "", fmt.Errorf("%w: unknown field %q", ErrInvalid, c.Field)
	}

	op := c.Op
	negateExists := false
	if f.Exists != "" && op == OpNe {
		// tag:-news means "has no tag news", not "has a tag other than news".
		op = OpEq
		negateExists = true
	}

	cmp, err := compare(f, c, op, args)
	if err != nil {
		return "", err
	}
	if f.Exists == "" {
		return cmp, nil
	}
	sql := fmt.Sprintf(f.Exists, cmp)
	if negateExists {
		sql = "NOT " + sql
	}
	return sql, nil
}

func compare(f Field, c Clause, op Op, args *[]any) (string, error) {
	if c.List {
		if len(c.Values) == 0 {
			return "", fmt.Errorf("%w: empty list for %q", ErrInvalid, c.Field)
		}
		marks := make([]string, len(c.Values))
		for i, v := range c.Values {
			arg, err := convert(f, c.Field, v)
			if err != nil {
				return "", err
			}
			*args = append(*args, arg)
			marks[i] = "?"
		}
		in := "IN"
		if op == OpNe {
			in = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", f.Column, in, strings.Join(marks, ", ")), nil
	}

	v := c.Values[0]
	if v.Null {
		switch op {
		case OpEq:
			return f.Column + " IS NULL", nil
		case OpNe:
			return f.Column + " IS NOT NULL", nil
		}
		return "", fmt.Errorf("%w: null only supports equality on %q", ErrInvalid, c.Field)
	}

	arg, err := convert(f, c.Field, v)
	if err != nil {
		return "", err
	}

	var sqlOp string
	switch op {
	case OpEq:
		sqlOp = "="
	case OpNe:
		sqlOp = "<>"
	case OpGt:
		sqlOp = ">"
	case OpGte:
		sqlOp = ">="
	case OpLt:
		sqlOp = "<"
	case OpLte:
		sqlOp = "<="
	case OpContains:
		if f.Kind != KindText {
			return "", fmt.Errorf("%w: ~ only applies to text field %q", ErrInvalid, c.Field)
		}
		*args = append(*args, "%"+escapeLike(v.Text)+"%")
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(?) ESCAPE '\\'", f.Column), nil
	}
	*args = append(*args, arg)
	return fmt.Sprintf("%s %s ?", f.Column, sqlOp), nil
}

func convert(f Field, name string, v Value) (any, error) {
	if v.Null {
		return nil, fmt.Errorf("%w: null is not allowed in a list for %q", ErrInvalid, name)
	}
	if f.Kind == KindBool {
		if !v.IsBool {
			return nil, fmt.Errorf("%w: %q expects true or false, got %q", ErrInvalid, name, v.Text)
		}
		return v.Bool, nil
	}
	return v.Text, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
