package helpdesk

import (
	"cmp"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

var ErrSearchSyntax = errors.New("invalid search query")

type SearchOperator string

const (
	SearchOperatorEqual          SearchOperator = ":"
	SearchOperatorGreater        SearchOperator = ">"
	SearchOperatorLess           SearchOperator = "<"
	SearchOperatorGreaterOrEqual SearchOperator = ">="
	SearchOperatorLessOrEqual    SearchOperator = "<="
)

// operators in the order they are tried while parsing.
var operators = []SearchOperator{
	SearchOperatorGreaterOrEqual,
	SearchOperatorLessOrEqual,
	SearchOperatorEqual,
	SearchOperatorGreater,
	SearchOperatorLess,
}

// SearchExpression is one node of a search query such as
// `email:"jo@example.com" -role:end-user`.
type SearchExpression interface {
	ToString() string
	Match(rec mockstore.Record) bool
}

// NullSearchExpression matches everything and renders as an empty query.
type NullSearchExpression struct{}

func (NullSearchExpression) ToString() string {
	return ""
}

func (NullSearchExpression) Match(mockstore.Record) bool {
	return true
}

// SearchComparison compares one attribute with a value. With the equality
// operator a trailing * matches by prefix.
type SearchComparison struct {
	Attribute string
	Operator  SearchOperator
	Value     string
}

func (s SearchComparison) ToString() string {
	return s.Attribute + string(s.Operator) + quote(s.Value)
}

func (s SearchComparison) Match(rec mockstore.Record) bool {
	raw, ok := rec[s.Attribute]
	if !ok || raw == nil {
		return s.Operator == SearchOperatorEqual && strings.EqualFold(s.Value, "none")
	}

	if s.Operator == SearchOperatorEqual {
		return matchValue(raw, s.Value)
	}

	order := compare(fmt.Sprint(raw), s.Value)

	switch s.Operator {
	case SearchOperatorGreater:
		return order > 0
	case SearchOperatorLess:
		return order < 0
	case SearchOperatorGreaterOrEqual:
		return order >= 0
	case SearchOperatorLessOrEqual:
		return order <= 0
	default:
		return false
	}
}

// SearchTerm is free text matched against every string attribute.
type SearchTerm struct {
	Text string
}

func (s SearchTerm) ToString() string {
	return quote(s.Text)
}

func (s SearchTerm) Match(rec mockstore.Record) bool {
	needle := strings.ToLower(s.Text)

	for _, v := range rec {
		if str, ok := v.(string); ok && strings.Contains(strings.ToLower(str), needle) {
			return true
		}
	}

	return false
}

// SearchAll requires every expression to match. Terms are separated by
// spaces on the wire.
type SearchAll struct {
	Expressions []SearchExpression
}

func (s SearchAll) ToString() string {
	parts := make([]string, 0, len(s.Expressions))
	for _, e := range s.Expressions {
		if str := e.ToString(); str != "" {
			parts = append(parts, str)
		}
	}

	return strings.Join(parts, " ")
}

func (s SearchAll) Match(rec mockstore.Record) bool {
	for _, e := range s.Expressions {
		if !e.Match(rec) {
			return false
		}
	}

	return true
}

// SearchNot negates an expression with a leading minus.
type SearchNot struct {
	Expression SearchExpression
}

func (s SearchNot) ToString() string {
	return "-" + s.Expression.ToString()
}

func (s SearchNot) Match(rec mockstore.Record) bool {
	return !s.Expression.Match(rec)
}

// SearchFor builds an equality query from attribute/value pairs, the way
// users.search(email: ...) is usually called.
func SearchFor(attrs map[string]any) SearchAll {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}

	sort.Strings(names)

	all := SearchAll{}
	for _, name := range names {
		all.Expressions = append(all.Expressions, SearchComparison{
			Attribute: name,
			Operator:  SearchOperatorEqual,
			Value:     fmt.Sprint(attrs[name]),
		})
	}

	return all
}

// ParseSearch reads a query string back into expressions.
func ParseSearch(query string) (SearchAll, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return SearchAll{}, err
	}

	all := SearchAll{}

	for _, text := range tokens {
		negate := false
		if len(text) > 1 && text[0] == '-' {
			negate = true
			text = text[1:]
		}

		var expr SearchExpression = SearchTerm{Text: text}
		if comparison, ok := parseComparison(text); ok {
			expr = comparison
		}

		if negate {
			expr = SearchNot{Expression: expr}
		}

		all.Expressions = append(all.Expressions, expr)
	}

	return all, nil
}

// tokenize splits on spaces outside double quotes. A quoted value directly
// after an operator stays in the same token: name:"Josh Lane".
func tokenize(query string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inQuote bool
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			current.WriteRune(r)
		}
	}

	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrSearchSyntax, query)
	}

	flush()

	return tokens, nil
}

func parseComparison(text string) (SearchComparison, bool) {
	for _, op := range operators {
		idx := strings.Index(text, string(op))
		if idx <= 0 {
			continue
		}

		name := text[:idx]
		if strings.ContainsAny(name, " <>:=") {
			continue
		}

		return SearchComparison{
			Attribute: name,
			Operator:  op,
			Value:     text[idx+len(op):],
		}, true
	}

	return SearchComparison{}, false
}

func quote(v string) string {
	if strings.ContainsAny(v, " \t") {
		return `"` + v + `"`
	}

	return v
}

func matchValue(raw any, want string) bool {
	got := fmt.Sprint(raw)

	if prefix, ok := strings.CutSuffix(want, "*"); ok {
		return strings.HasPrefix(strings.ToLower(got), strings.ToLower(prefix))
	}

	if items, ok := raw.([]any); ok {
		for _, item := range items {
			if matchValue(item, want) {
				return true
			}
		}

		return false
	}

	return strings.EqualFold(got, want)
}

// compare orders numbers numerically, timestamps chronologically and
// anything else lexically.
func compare(a, b string) int {
	if fa, err := strconv.ParseFloat(a, 64); err == nil {
		if fb, err := strconv.ParseFloat(b, 64); err == nil {
			return cmp.Compare(fa, fb)
		}
	}

	if ta, ok := parseSearchTime(a); ok {
		if tb, ok := parseSearchTime(b); ok {
			return ta.Compare(tb)
		}
	}

	return strings.Compare(a, b)
}

func parseSearchTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
