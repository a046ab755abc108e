package helpdesk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const (
	PageParam    = "page"
	PerPageParam = "per_page"
)

// Params are the inputs of one request: path placeholders, paging values
// and the wrapped resource body, e.g. {"id": 7, "ticket": {...}}.
type Params map[string]any

// Response is the envelope every strategy returns.
type Response struct {
	Status int
	Body   map[string]any
	Header http.Header
}

// MockFunc simulates a request against the mock store.
type MockFunc func(ctx context.Context, m *Mock, p Params) (*Response, error)

// Request describes one API operation once, for both strategies.
type Request struct {
	// Name identifies the operation, e.g. "create_ticket".
	Name   string
	Method string
	// Path is a pattern such as "/tickets/{id}.json".
	Path string
	// Paged requests forward page and per_page as query parameters.
	Paged bool
	// Query adds operation specific query parameters.
	Query func(p Params) url.Values
	// Body builds the JSON payload. Nil means no body.
	Body func(p Params) any
	Mock MockFunc
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Expand fills the placeholders of the path from params.
func (r *Request) Expand(p Params) (string, error) {
	var missing string

	path := placeholder.ReplaceAllStringFunc(r.Path, func(m string) string {
		name := m[1 : len(m)-1]

		v, ok := p[name]
		if !ok || v == nil {
			missing = name
			return m
		}

		return url.PathEscape(fmt.Sprint(v))
	})

	if missing != "" {
		return "", errs.Wrapf(ErrMissingParam, "%s needs %q", r.Name, missing)
	}

	return path, nil
}

// QueryValues renders the query string of the request.
func (r *Request) QueryValues(p Params) url.Values {
	q := url.Values{}

	if r.Paged {
		for _, name := range []string{PageParam, PerPageParam} {
			if n, ok := intParam(p, name); ok {
				q.Set(name, strconv.Itoa(n))
			}
		}
	}

	if r.Query != nil {
		for k, v := range r.Query(p) {
			q[k] = v
		}
	}

	return q
}

// Strategy executes requests. Real talks HTTP, Mock simulates.
type Strategy interface {
	Execute(ctx context.Context, req *Request, p Params) (*Response, error)
}

// wrapBody sends params[root] as {root: ...}.
func wrapBody(root string) func(Params) any {
	return func(p Params) any {
		return map[string]any{root: p[root]}
	}
}

func intParam(p Params, name string) (int, bool) {
	switch v := p[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	case fmt.Stringer:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	default:
		return 0, false
	}
}

func mergeParams(base, over Params) Params {
	out := make(Params, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}

	for k, v := range over {
		out[k] = v
	}

	return out
}
