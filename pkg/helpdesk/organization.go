package helpdesk

import (
	"context"
	"net/http"
	"strings"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const organizationsTable = "organizations"

var organizationSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("name", attr.String, attr.Required()),
	attr.Attribute("external_id", attr.String),
	attr.Attribute("details", attr.String),
	attr.Attribute("notes", attr.String),
	attr.Attribute("domain_names", attr.Array),
	attr.Attribute("group_id", attr.Integer),
	attr.Attribute("shared_tickets", attr.Boolean),
	attr.Attribute("shared_comments", attr.Boolean),
	attr.Attribute("tags", attr.Array),
	attr.Attribute("organization_fields", attr.Any),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

var organizationFields = []string{
	"name", "external_id", "details", "notes", "domain_names", "group_id",
	"shared_tickets", "shared_comments", "tags", "organization_fields",
}

var (
	createOrganization = &Request{
		Name:   "create_organization",
		Method: http.MethodPost,
		Path:   "/organizations.json",
		Body:   wrapBody("organization"),
		Mock:   mockCreateOrganization,
	}
	getOrganization = &Request{
		Name:   "get_organization",
		Method: http.MethodGet,
		Path:   "/organizations/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(organizationsTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("organization", rec)
		},
	}
	updateOrganization = &Request{
		Name:   "update_organization",
		Method: http.MethodPut,
		Path:   "/organizations/{id}.json",
		Body:   wrapBody("organization"),
		Mock:   mockUpdateOrganization,
	}
	destroyOrganization = &Request{
		Name:   "destroy_organization",
		Method: http.MethodDelete,
		Path:   "/organizations/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.remove(organizationsTable, p)
		},
	}
	getOrganizations = &Request{
		Name:   "get_organizations",
		Method: http.MethodGet,
		Path:   "/organizations.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(organizationsTable, "/organizations.json", "organizations", p, nil, nil), nil
		},
	}
)

var organizationKind = &Kind{
	Name:    "organizations",
	Root:    "organization",
	Schema:  organizationSchema,
	Create:  createOrganization,
	Get:     getOrganization,
	Update:  updateOrganization,
	Destroy: destroyOrganization,
	List: func(Params) (*Request, error) {
		return getOrganizations, nil
	},
}

// Organization groups users and their tickets.
type Organization struct {
	*Model
}

func newOrganization(m *Model) *Organization {
	return &Organization{Model: m}
}

func (c *Client) Organizations() *Collection[*Organization] {
	return newCollection(c, organizationKind, newOrganization, nil)
}

func (o *Organization) Name() string {
	return o.String("name")
}

// Tickets lists the tickets filed for the organization.
func (o *Organization) Tickets() *Collection[*Ticket] {
	return newCollection(o.client, ticketKind, newTicket, Params{"organization_id": o.Get("id")})
}

// Users lists the users whose primary organization this is.
func (o *Organization) Users() *Collection[*User] {
	return newCollection(o.client, userKind, newUser, Params{"organization_id": o.Get("id")})
}

// Memberships lists the organization memberships of all its users.
func (o *Organization) Memberships() *Collection[*Membership] {
	return o.client.Memberships(Params{"organization_id": o.Get("id")})
}

func mockCreateOrganization(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "organization")

	err := m.checkOrganizationName(params, 0)
	if err != nil {
		return nil, err
	}

	record := mockstore.Record{
		"domain_names":    []any{},
		"tags":            []any{},
		"shared_tickets":  false,
		"shared_comments": false,
	}

	for k, v := range slice(params, organizationFields...) {
		record[k] = v
	}

	rec, err := m.insert(organizationsTable, "/organizations/%d.json", record)
	if err != nil {
		return nil, err
	}

	return replyCreated("organization", rec)
}

func mockUpdateOrganization(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(organizationsTable, p)
	if err != nil {
		return nil, err
	}

	_, err = m.store.Fetch(organizationsTable, id)
	if err != nil {
		return nil, err
	}

	params := payload(p, "organization")

	if _, renamed := params["name"]; renamed {
		err = m.checkOrganizationName(params, id)
		if err != nil {
			return nil, err
		}
	}

	rec, err := m.store.Update(organizationsTable, id, slice(params, organizationFields...))
	if err != nil {
		return nil, err
	}

	return reply("organization", rec)
}

// checkOrganizationName rejects blank names and names used by another
// organization than self.
func (m *Mock) checkOrganizationName(params mockstore.Record, self int64) error {
	name := str(params["name"])
	if blank(name) {
		return invalid("name", "Name: cannot be blank")
	}

	taken := m.store.Select(organizationsTable, func(rec mockstore.Record) bool {
		return strings.EqualFold(str(rec["name"]), name) && !mockstore.Equal(rec["id"], self)
	})
	if len(taken) > 0 {
		return invalid("name", "Name: has already been taken")
	}

	return nil
}
