// Package filter parses the post filter language and translates it into SQL
// predicates.
//
// The language is a subset of NQL:
//
//	status:published+featured:true        AND
//	tag:news,tag:sport                    OR (binds looser than AND)
//	(tag:news,tag:sport)+visibility:paid  grouping
//	status:-draft                         not equal
//	id:[a,b,c]  id:-[a,b]                 IN / NOT IN
//	published_at:>'2026-01-01'            >, >=, <, <=
//	title:~'weekly'                       contains
//	newsletter_id:null                    IS NULL
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for filters that do not parse or that reference
// unknown fields.
var ErrInvalid = errors.New("invalid filter")

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpContains
)

// Node is a parsed filter expression: And, Or or Clause.
type Node interface {
	node()
}

// And matches when every term matches.
type And struct{ Terms []Node }

// Or matches when any term matches.
type Or struct{ Terms []Node }

// Clause compares one field against one value or a list of values.
type Clause struct {
	Field  string
	Op     Op
	Values []Value
	List   bool
}

// Value is a literal. Null and Bool literals come from the bare words
// null, true and false.
type Value struct {
	Text   string
	Null   bool
	IsBool bool
	Bool   bool
}

func (And) node()    {}
func (Or) node()     {}
func (Clause) node() {}

// Parse parses expr into a Node. An empty expression is an error; callers
// drop blank filters before parsing.
func Parse(expr string) (Node, error) {
	p := &parser{src: expr}
	if err := p.lex(); err != nil {
		return nil, err
	}
	if len(p.toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalid)
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalid, p.toks[p.pos].text, p.toks[p.pos].at)
	}
	return n, nil
}

type tokKind int

const (
	tokWord tokKind = iota
	tokQuoted
	tokPunct
)

type token struct {
	kind tokKind
	text string
	at   int
}

type parser struct {
	src  string
	toks []token
	pos  int
}

const punct = "()+,:[]"

func (p *parser) lex() error {
	s := p.src
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case strings.IndexByte(punct, c) >= 0:
			p.toks = append(p.toks, token{tokPunct, string(c), i})
			i++
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(s) && s[j] != c; j++ {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				b.WriteByte(s[j])
			}
			if j >= len(s) {
				return fmt.Errorf("%w: unterminated string at offset %d", ErrInvalid, i)
			}
			p.toks = append(p.toks, token{tokQuoted, b.String(), i})
			i = j + 1
		default:
			j := i
			for j < len(s) && strings.IndexByte(punct+" \t\n'\"", s[j]) < 0 {
				j++
			}
			p.toks = append(p.toks, token{tokWord, s[i:j], i})
			i = j
		}
	}
	return nil
}

func (p *parser) peek(text string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == tokPunct && p.toks[p.pos].text == text
}

func (p *parser) expect(text string) error {
	if !p.peek(text) {
		return p.unexpected(fmt.Sprintf("expected %q", text))
	}
	p.pos++
	return nil
}

func (p *parser) unexpected(msg string) error {
	if p.pos >= len(p.toks) {
		return fmt.Errorf("%w: %s, got end of input", ErrInvalid, msg)
	}
	t := p.toks[p.pos]
	return fmt.Errorf("%w: %s, got %q at offset %d", ErrInvalid, msg, t.text, t.at)
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek(",") {
		p.pos++
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.peek("+") {
		p.pos++
		n, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	if p.peek("(") {
		p.pos++
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return n, nil
	}
	return p.parseClause()
}

func (p *parser) parseClause() (Node, error) {
	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokWord {
		return nil, p.unexpected("expected field name")
	}
	c := Clause{Field: strings.ToLower(p.toks[p.pos].text)}
	p.pos++
	if err := p.expect(":"); err != nil {
		return nil, err
	}

	// Operators are glued to the value token: "-draft", ">=5", "-[a,b]".
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tokWord {
		word := p.toks[p.pos].text
		op, rest := splitOp(word)
		c.Op = op
		if rest == "" {
			p.pos++
		} else {
			p.toks[p.pos].text = rest
		}
	}

	if p.peek("[") {
		p.pos++
		c.List = true
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			c.Values = append(c.Values, v)
			if p.peek(",") {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		if c.Op != OpEq && c.Op != OpNe {
			return nil, fmt.Errorf("%w: list values only support equality on %q", ErrInvalid, c.Field)
		}
		return c, nil
	}

	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	c.Values = []Value{v}
	return c, nil
}

func (p *parser) parseValue() (Value, error) {
	if p.pos >= len(p.toks) {
		return Value{}, p.unexpected("expected value")
	}
	t := p.toks[p.pos]
	switch t.kind {
	case tokQuoted:
		p.pos++
		return Value{Text: t.text}, nil
	case tokWord:
		p.pos++
		switch strings.ToLower(t.text) {
		case "null":
			return Value{Null: true}, nil
		case "true":
			return Value{IsBool: true, Bool: true, Text: "true"}, nil
		case "false":
			return Value{IsBool: true, Bool: false, Text: "false"}, nil
		}
		return Value{Text: t.text}, nil
	}
	return Value{}, p.unexpected("expected value")
}

// splitOp strips a leading operator from a value word.
func splitOp(word string) (Op, string) {
	switch {
	case strings.HasPrefix(word, ">="):
		return OpGte, word[2:]
	case strings.HasPrefix(word, "<="):
		return OpLte, word[2:]
	case strings.HasPrefix(word, ">"):
		return OpGt, word[1:]
	case strings.HasPrefix(word, "<"):
		return OpLt, word[1:]
	case strings.HasPrefix(word, "-"):
		return OpNe, word[1:]
	case strings.HasPrefix(word, "~"):
		return OpContains, word[1:]
	}
	return OpEq, word
}
