package helpdesk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const membershipsTable = "organization_memberships"

var membershipSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("user_id", attr.Integer, attr.Required()),
	attr.Attribute("organization_id", attr.Integer, attr.Required()),
	attr.Attribute("default", attr.Boolean),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

var (
	createMembership = &Request{
		Name:   "create_membership",
		Method: http.MethodPost,
		Path:   "/organization_memberships.json",
		Body:   wrapBody("organization_membership"),
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.createMembership(payload(p, "organization_membership"))
			if err != nil {
				return nil, err
			}

			return replyCreated("organization_membership", rec)
		},
	}
	getMembership = &Request{
		Name:   "get_membership",
		Method: http.MethodGet,
		Path:   "/organization_memberships/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(membershipsTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("organization_membership", rec)
		},
	}
	destroyMembership = &Request{
		Name:   "destroy_membership",
		Method: http.MethodDelete,
		Path:   "/organization_memberships/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.remove(membershipsTable, p)
		},
	}
	getUserMemberships = &Request{
		Name:   "get_user_memberships",
		Method: http.MethodGet,
		Path:   "/users/{user_id}/organization_memberships.json",
		Paged:  true,
		Query: func(p Params) url.Values {
			if p["organization_id"] == nil {
				return nil
			}

			return url.Values{"organization_id": {str(p["organization_id"])}}
		},
		Mock: mockGetUserMemberships,
	}
	getOrganizationMemberships = &Request{
		Name:   "get_organization_memberships",
		Method: http.MethodGet,
		Path:   "/organizations/{organization_id}/organization_memberships.json",
		Paged:  true,
		Mock:   mockGetOrganizationMemberships,
	}
)

var membershipKind = &Kind{
	Name:    "organization_memberships",
	Root:    "organization_membership",
	Schema:  membershipSchema,
	Create:  createMembership,
	Get:     getMembership,
	Destroy: destroyMembership,
	// With both scopes the user listing is narrowed to one organization,
	// answering with the single membership or none.
	List: func(scope Params) (*Request, error) {
		switch {
		case scope["user_id"] != nil:
			return getUserMemberships, nil
		case scope["organization_id"] != nil:
			return getOrganizationMemberships, nil
		default:
			return nil, errs.Wrapf(ErrScopeRequired, "memberships need user_id or organization_id")
		}
	},
}

// Membership links a user to an organization. It cannot be updated, only
// created and destroyed.
type Membership struct {
	*Model
}

func newMembership(m *Model) *Membership {
	return &Membership{Model: m}
}

// Memberships lists organization memberships. The scope must name a
// user_id, an organization_id, or both.
func (c *Client) Memberships(scope Params) *Collection[*Membership] {
	return newCollection(c, membershipKind, newMembership, scope)
}

func (m *Membership) User() *Association[*User] {
	return newAssociation(m.Model, "user_id", m.client.Users)
}

func (m *Membership) Organization() *Association[*Organization] {
	return newAssociation(m.Model, "organization_id", m.client.Organizations)
}

func (m *Membership) Default() bool {
	return m.Bool("default")
}

// createMembership links an existing user and organization once. The first
// membership of a user is its default.
func (m *Mock) createMembership(params mockstore.Record) (mockstore.Record, error) {
	userID, orgID := params["user_id"], params["organization_id"]

	if _, err := m.find(usersTable, userID); err != nil {
		return nil, invalid("user_id", "User: cannot be blank")
	}

	if _, err := m.find(organizationsTable, orgID); err != nil {
		return nil, invalid("organization_id", "Organization: cannot be blank")
	}

	existing := m.store.Select(membershipsTable, mockstore.FieldEquals("user_id", userID))

	for _, rec := range existing {
		if mockstore.Equal(rec["organization_id"], orgID) {
			return nil, invalid("user_id", "User: has already been taken")
		}
	}

	return m.insert(membershipsTable, "/organization_memberships/%d.json", mockstore.Record{
		"user_id":         userID,
		"organization_id": orgID,
		"default":         len(existing) == 0,
	})
}

func mockGetUserMemberships(_ context.Context, m *Mock, p Params) (*Response, error) {
	userID := p["user_id"]

	_, err := m.find(usersTable, userID)
	if err != nil {
		return nil, err
	}

	filter := mockstore.FieldEquals("user_id", userID)

	var query url.Values

	if orgID := p["organization_id"]; orgID != nil {
		filter = mockstore.All(filter, mockstore.FieldEquals("organization_id", orgID))
		query = url.Values{"organization_id": {str(orgID)}}
	}

	path := "/users/" + str(userID) + "/organization_memberships.json"

	return m.page(membershipsTable, path, "organization_memberships", p, query, filter), nil
}

func mockGetOrganizationMemberships(_ context.Context, m *Mock, p Params) (*Response, error) {
	orgID := p["organization_id"]

	_, err := m.find(organizationsTable, orgID)
	if err != nil {
		return nil, err
	}

	path := "/organizations/" + str(orgID) + "/organization_memberships.json"

	return m.page(membershipsTable, path, "organization_memberships", p, nil,
		mockstore.FieldEquals("organization_id", orgID)), nil
}
