package helpdesk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const mockAgentName = "Mock Agent"

// Mock executes requests against an in-process mock store. Every client
// built on the same Mock shares its data.
type Mock struct {
	store    *mockstore.Store
	username string

	mu    sync.Mutex
	calls map[string]int

	// seed serializes the lazy creation of the current user.
	seed sync.Mutex
}

// NewMock creates a Mock strategy on store, creating an empty store when nil.
// username is the email of the current user, seeded right away.
func NewMock(store *mockstore.Store, username string) *Mock {
	if store == nil {
		store = mockstore.New()
	}

	if username == "" {
		username = config.DefaultUsername
	}

	m := &Mock{
		store:    store,
		username: username,
		calls:    make(map[string]int),
	}

	// Only unencodable records fail to insert.
	_, _ = m.CurrentUser()

	return m
}

func (m *Mock) Execute(ctx context.Context, req *Request, p Params) (*Response, error) {
	if req.Mock == nil {
		return nil, errs.Wrapf(ErrNoMock, "%s", req.Name)
	}

	m.mu.Lock()
	m.calls[req.Name]++
	m.mu.Unlock()

	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	return req.Mock(ctx, m, p)
}

// Calls returns how many times the named request was executed.
func (m *Mock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[name]
}

func (m *Mock) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = make(map[string]int)
}

func (m *Mock) Store() *mockstore.Store {
	return m.store
}

func (m *Mock) Username() string {
	return m.username
}

// Reset empties the store. The current user is recreated on next use.
func (m *Mock) Reset() {
	m.store.Reset()
	m.ResetCalls()
}

// CurrentUser returns the record of the authenticated agent, creating it when
// the store does not hold it yet.
func (m *Mock) CurrentUser() (mockstore.Record, error) {
	m.seed.Lock()
	defer m.seed.Unlock()

	users := m.store.Select(usersTable, mockstore.FieldEquals("email", m.username))
	if len(users) > 0 {
		return users[0], nil
	}

	return m.insert(usersTable, "/users/%d.json", mockstore.Record{
		"name":     mockAgentName,
		"email":    m.username,
		"role":     "admin",
		"active":   true,
		"verified": true,
	})
}

// find fetches a record by a raw identity value.
func (m *Mock) find(kind string, id any) (mockstore.Record, error) {
	n, ok := mockstore.ToID(id)
	if !ok {
		return nil, &mockstore.NotFoundError{Kind: kind}
	}

	return m.store.Fetch(kind, n)
}

// identity reads the id path parameter of a request addressing kind.
func identity(kind string, p Params) (int64, error) {
	id, ok := mockstore.ToID(p["id"])
	if !ok {
		return 0, &mockstore.NotFoundError{Kind: kind}
	}

	return id, nil
}

// remove hard deletes the record addressed by the request.
func (m *Mock) remove(kind string, p Params) (*Response, error) {
	id, err := identity(kind, p)
	if err != nil {
		return nil, err
	}

	_, err = m.store.Delete(kind, id)
	if err != nil {
		return nil, err
	}

	return replyNoContent()
}

// insert reserves an identity so the record can embed its own url.
func (m *Mock) insert(kind, urlFormat string, record mockstore.Record) (mockstore.Record, error) {
	id := m.store.NextID(kind)
	record["url"] = m.store.URL(fmt.Sprintf(urlFormat, id))

	return m.store.InsertWithID(kind, id, record)
}

// page answers a listing request with one page of kind under root.
func (m *Mock) page(
	kind string,
	path string,
	root string,
	p Params,
	query url.Values,
	filter mockstore.Filter,
) *Response {
	page, _ := intParam(p, PageParam)
	perPage, _ := intParam(p, PerPageParam)

	res := m.store.Page(kind, mockstore.PageRequest{
		Path:    path,
		Page:    page,
		PerPage: perPage,
		Query:   query,
	}, filter)

	records := make([]any, len(res.Records))
	for i, rec := range res.Records {
		records[i] = rec
	}

	return &Response{
		Status: http.StatusOK,
		Body: map[string]any{
			root:            records,
			"count":         res.Count,
			"next_page":     cursorValue(res.NextPage),
			"previous_page": cursorValue(res.PreviousPage),
		},
	}
}

func respond(status int, root string, rec mockstore.Record) *Response {
	return &Response{
		Status: status,
		Body:   map[string]any{root: rec},
	}
}

// payload returns the wrapped resource body of a create or update, such as
// p["ticket"].
func payload(p Params, root string) mockstore.Record {
	if v, ok := p[root].(map[string]any); ok {
		return v
	}

	return mockstore.Record{}
}

// slice copies only the accepted keys of src.
func slice(src mockstore.Record, keys ...string) mockstore.Record {
	out := make(mockstore.Record, len(keys))

	for _, k := range keys {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}

	return out
}

// blank reports a value the service treats as not given.
func blank(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(tv) == ""
	default:
		return false
	}
}

// str renders a raw value as a string; nil renders empty.
func str(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}

// replyCreated answers a create with the new record.
func replyCreated(root string, rec mockstore.Record) (*Response, error) {
	return respond(http.StatusCreated, root, rec), nil
}

// reply answers a read or update with the record.
func reply(root string, rec mockstore.Record) (*Response, error) {
	return respond(http.StatusOK, root, rec), nil
}

func replyNoContent() (*Response, error) {
	return &Response{Status: http.StatusNoContent, Body: map[string]any{}}, nil
}

func cursorValue(s *string) any {
	if s == nil {
		return nil
	}

	return *s
}
