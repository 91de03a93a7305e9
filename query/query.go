// Package query implements the token filter used by pools, setup commands and entity search.
//
// A query is a comma-separated list of terms, all of which must hold:
//
//	treasure            key is present
//	treasure=gold       scalar equals value, or list contains value
//	!cursed             key is absent
//	!side=dark          negation of the equality test
//	mark=!x             a value may itself start with '!'
//
// Keys are matched case-insensitively, values case-sensitively. The entity's own name is always
// queryable as name=<value>. An empty query matches everything.
package query

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/rotisserie/eris"
)

// DefaultBlock is the attribute block terms are evaluated against unless a query says otherwise.
const DefaultBlock = "this"

// NameKey is the pseudo-attribute that matches the entity name.
const NameKey = "name"

var ErrInvalidQuery = eris.New("invalid query")

var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Not", Pattern: `!`},
	{Name: "Eq", Pattern: `=`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Text", Pattern: `[^,=!\s][^,=\s]*(?:[ \t]+[^,=\s]+)*`},
})

type Term struct {
	Negate   bool   `parser:"@Not?"`
	Key      string `parser:"@Text"`
	HasValue bool   `parser:"( @Eq"`
	Value    string `parser:"  @( Not | Text )* )?"`
}

type grammar struct {
	Terms []*Term `parser:"( @@ ( Comma @@ )* )?"`
}

// Query is a parsed filter. The zero value matches everything.
type Query struct {
	Terms []*Term

	block string
}

var parser = participle.MustBuild[grammar](
	participle.Lexer(queryLexer),
	participle.Elide("Whitespace"),
)

// Subject is anything a query can be evaluated against.
type Subject interface {
	Name() string
	// Lookup returns the values stored under block/key. Scalars come back as a single element
	// with isList false.
	Lookup(block, key string) (values []string, isList bool, ok bool)
}

// Parse compiles s into a Query evaluated against DefaultBlock.
func Parse(s string) (*Query, error) {
	g, err := parser.ParseString("", s)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidQuery, "%q: %v", s, err)
	}
	for _, t := range g.Terms {
		t.Key = strings.ToLower(t.Key)
	}
	return &Query{Terms: g.Terms, block: DefaultBlock}, nil
}

// MustParse is Parse for queries known at compile time.
func MustParse(s string) *Query {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// InBlock returns a copy of q that evaluates its terms against block.
func (q *Query) InBlock(block string) *Query {
	c := *q
	c.block = block
	return &c
}

func (q *Query) Block() string {
	if q.block == "" {
		return DefaultBlock
	}
	return q.block
}

func (q *Query) Empty() bool {
	return len(q.Terms) == 0
}

// Matches reports whether every term holds for s.
func (q *Query) Matches(s Subject) bool {
	for _, t := range q.Terms {
		if t.matches(s, q.Block()) == t.Negate {
			return false
		}
	}
	return true
}

func (t *Term) matches(s Subject, block string) bool {
	values, _, ok := s.Lookup(block, t.Key)
	if t.Key == NameKey {
		if !t.HasValue && s.Name() != "" {
			return true
		}
		if t.HasValue && s.Name() == t.Value {
			return true
		}
	}
	if !ok {
		return false
	}
	if !t.HasValue {
		return true
	}
	for _, v := range values {
		if v == t.Value {
			return true
		}
	}
	return false
}

func (t *Term) String() string {
	var sb strings.Builder
	if t.Negate {
		sb.WriteByte('!')
	}
	sb.WriteString(t.Key)
	if t.HasValue {
		sb.WriteByte('=')
		sb.WriteString(t.Value)
	}
	return sb.String()
}

func (q *Query) String() string {
	parts := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}
