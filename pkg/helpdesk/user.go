package helpdesk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const usersTable = "users"

var userSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("name", attr.String, attr.Required()),
	attr.Attribute("email", attr.String),
	attr.Attribute("role", attr.String),
	attr.Attribute("organization_id", attr.Integer),
	attr.Attribute("active", attr.Boolean),
	attr.Attribute("verified", attr.Boolean),
	attr.Attribute("shared", attr.Boolean),
	attr.Attribute("phone", attr.String),
	attr.Attribute("time_zone", attr.String),
	attr.Attribute("locale", attr.String),
	attr.Attribute("external_id", attr.String),
	attr.Attribute("tags", attr.Array),
	attr.Attribute("notes", attr.String),
	attr.Attribute("details", attr.String),
	attr.Attribute("photo", attr.Any, attr.ReadOnly()),
	attr.Attribute("last_login_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

// userFields are the attributes create_user and update_user accept.
var userFields = []string{
	"name", "email", "role", "organization_id", "active", "verified", "shared",
	"phone", "time_zone", "locale", "external_id", "tags", "notes", "details",
}

var (
	createUser = &Request{
		Name:   "create_user",
		Method: http.MethodPost,
		Path:   "/users.json",
		Body:   wrapBody("user"),
		Mock:   mockCreateUser,
	}
	getUser = &Request{
		Name:   "get_user",
		Method: http.MethodGet,
		Path:   "/users/{id}.json",
		Mock:   mockGetUser,
	}
	updateUser = &Request{
		Name:   "update_user",
		Method: http.MethodPut,
		Path:   "/users/{id}.json",
		Body:   wrapBody("user"),
		Mock:   mockUpdateUser,
	}
	destroyUser = &Request{
		Name:   "destroy_user",
		Method: http.MethodDelete,
		Path:   "/users/{id}.json",
		Mock:   mockDestroyUser,
	}
	getUsers = &Request{
		Name:   "get_users",
		Method: http.MethodGet,
		Path:   "/users.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(usersTable, "/users.json", "users", p, nil, nil), nil
		},
	}
	getOrganizationUsers = &Request{
		Name:   "get_organization_users",
		Method: http.MethodGet,
		Path:   "/organizations/{organization_id}/users.json",
		Paged:  true,
		Mock:   mockGetOrganizationUsers,
	}
	searchUsers = &Request{
		Name:   "search_users",
		Method: http.MethodGet,
		Path:   "/users/search.json",
		Paged:  true,
		Query: func(p Params) url.Values {
			return url.Values{"query": {str(p["query"])}}
		},
		Mock: mockSearchUsers,
	}
	getCurrentUser = &Request{
		Name:   "get_current_user",
		Method: http.MethodGet,
		Path:   "/users/me.json",
		Mock: func(_ context.Context, m *Mock, _ Params) (*Response, error) {
			rec, err := m.CurrentUser()
			if err != nil {
				return nil, err
			}

			return reply("user", rec)
		},
	}
)

var userKind = &Kind{
	Name:    "users",
	Root:    "user",
	Schema:  userSchema,
	Create:  createUser,
	Get:     getUser,
	Update:  updateUser,
	Destroy: destroyUser,
	List: func(scope Params) (*Request, error) {
		switch {
		case scope["query"] != nil:
			return searchUsers, nil
		case scope["organization_id"] != nil:
			return getOrganizationUsers, nil
		default:
			return getUsers, nil
		}
	},
}

// User is a helpdesk end user or agent.
type User struct {
	*Model
}

func newUser(m *Model) *User {
	return &User{Model: m}
}

// Users lists every user.
func (c *Client) Users() *Collection[*User] {
	return newCollection(c, userKind, newUser, nil)
}

// SearchUsers lists the users matching a search expression, for example
// SearchFor(map[string]any{"email": "jo@example.com"}).
func (c *Client) SearchUsers(ctx context.Context, expr SearchExpression) (*Collection[*User], error) {
	return newCollection(c, userKind, newUser, Params{"query": expr.ToString()}).All(ctx, nil)
}

// CurrentUser returns the user the client is authenticated as.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.Execute(ctx, getCurrentUser, nil)
	if err != nil {
		return nil, err
	}

	m := newModel(c, userKind)

	err = m.load(resp)
	if err != nil {
		return nil, err
	}

	return newUser(m), nil
}

func (u *User) Name() string {
	return u.String("name")
}

func (u *User) Email() string {
	return u.String("email")
}

// Organization is the primary organization of the user.
func (u *User) Organization() *Association[*Organization] {
	return newAssociation(u.Model, "organization_id", u.client.Organizations)
}

// SetOrganization makes org the primary organization. The organization must
// already be saved.
func (u *User) SetOrganization(org *Organization) error {
	if org == nil {
		return u.Set("organization_id", nil)
	}

	return u.Set("organization_id", org.Get("id"))
}

// Memberships lists the organization memberships of the user.
func (u *User) Memberships() *Collection[*Membership] {
	return u.client.Memberships(Params{"user_id": u.Get("id")})
}

// GroupMemberships lists the groups the user belongs to.
func (u *User) GroupMemberships() *Collection[*GroupMembership] {
	return u.client.GroupMemberships(Params{"user_id": u.Get("id")})
}

// RequestedTickets lists the tickets the user is the requester of.
func (u *User) RequestedTickets() *Collection[*Ticket] {
	return newCollection(u.client, ticketKind, newTicket, Params{"requester_id": u.Get("id")})
}

func (u *User) assign(name string, value any) (bool, error) {
	if name != "organization" {
		return false, nil
	}

	org, ok := value.(*Organization)
	if !ok {
		return true, u.Set("organization_id", value)
	}

	return true, u.SetOrganization(org)
}

func mockCreateUser(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "user")

	rec, err := m.createUser(params)
	if err != nil {
		return nil, err
	}

	return replyCreated("user", rec)
}

// createUser validates and inserts a user record. A user created with the
// id of an existing organization gets its default membership there.
func (m *Mock) createUser(params mockstore.Record) (mockstore.Record, error) {
	if blank(params["name"]) {
		return nil, invalid("name", "Name: is too short (minimum is 1 character)")
	}

	email := str(params["email"])
	if email != "" && len(m.store.Select(usersTable, mockstore.FieldEquals("email", email))) > 0 {
		return nil, invalid("email", "Email: "+email+" is already being used by another user")
	}

	record := mockstore.Record{
		"role":     "end-user",
		"active":   true,
		"verified": false,
		"shared":   false,
		"tags":     []any{},
	}

	for k, v := range slice(params, userFields...) {
		record[k] = v
	}

	rec, err := m.insert(usersTable, "/users/%d.json", record)
	if err != nil {
		return nil, err
	}

	orgID := rec["organization_id"]
	if orgID == nil {
		return rec, nil
	}

	if _, err := m.find(organizationsTable, orgID); err == nil {
		_, err = m.createMembership(mockstore.Record{"user_id": rec["id"], "organization_id": orgID})
		if err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func mockGetUser(_ context.Context, m *Mock, p Params) (*Response, error) {
	rec, err := m.find(usersTable, p["id"])
	if err != nil {
		return nil, err
	}

	return reply("user", rec)
}

func mockUpdateUser(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(usersTable, p)
	if err != nil {
		return nil, err
	}

	_, err = m.store.Fetch(usersTable, id)
	if err != nil {
		return nil, err
	}

	params := payload(p, "user")

	if name, set := params["name"]; set && blank(name) {
		return nil, invalid("name", "Name: is too short (minimum is 1 character)")
	}

	if email := str(params["email"]); email != "" {
		taken := m.store.Select(usersTable, mockstore.All(
			mockstore.FieldEquals("email", email),
			func(rec mockstore.Record) bool { return !mockstore.Equal(rec["id"], id) },
		))
		if len(taken) > 0 {
			return nil, invalid("email", "Email: "+email+" is already being used by another user")
		}
	}

	rec, err := m.store.Update(usersTable, id, slice(params, userFields...))
	if err != nil {
		return nil, err
	}

	return reply("user", rec)
}

func mockDestroyUser(_ context.Context, m *Mock, p Params) (*Response, error) {
	return m.remove(usersTable, p)
}

func mockGetOrganizationUsers(_ context.Context, m *Mock, p Params) (*Response, error) {
	orgID := p["organization_id"]

	_, err := m.find(organizationsTable, orgID)
	if err != nil {
		return nil, err
	}

	path := "/organizations/" + str(orgID) + "/users.json"

	return m.page(usersTable, path, "users", p, nil, mockstore.FieldEquals("organization_id", orgID)), nil
}

func mockSearchUsers(_ context.Context, m *Mock, p Params) (*Response, error) {
	query := str(p["query"])

	expr, err := ParseSearch(query)
	if err != nil {
		return nil, invalid("query", err.Error())
	}

	return m.page(usersTable, "/users/search.json", "users", p, url.Values{"query": {query}}, expr.Match), nil
}
