package helpdesk

import (
	"context"
	"net/http"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const groupsTable = "groups"

var groupSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("name", attr.String, attr.Required()),
	attr.Attribute("description", attr.String),
	attr.Attribute("default", attr.Boolean, attr.ReadOnly()),
	attr.Attribute("deleted", attr.Boolean, attr.ReadOnly()),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

var groupFields = []string{"name", "description"}

var (
	createGroup = &Request{
		Name:   "create_group",
		Method: http.MethodPost,
		Path:   "/groups.json",
		Body:   wrapBody("group"),
		Mock:   mockCreateGroup,
	}
	getGroup = &Request{
		Name:   "get_group",
		Method: http.MethodGet,
		Path:   "/groups/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(groupsTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("group", rec)
		},
	}
	updateGroup = &Request{
		Name:   "update_group",
		Method: http.MethodPut,
		Path:   "/groups/{id}.json",
		Body:   wrapBody("group"),
		Mock:   mockUpdateGroup,
	}
	destroyGroup = &Request{
		Name:   "destroy_group",
		Method: http.MethodDelete,
		Path:   "/groups/{id}.json",
		Mock:   mockDestroyGroup,
	}
	getGroups = &Request{
		Name:   "get_groups",
		Method: http.MethodGet,
		Path:   "/groups.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(groupsTable, "/groups.json", "groups", p, nil, notDeleted), nil
		},
	}
)

var groupKind = &Kind{
	Name:       "groups",
	Root:       "group",
	Schema:     groupSchema,
	Create:     createGroup,
	Get:        getGroup,
	Update:     updateGroup,
	Destroy:    destroyGroup,
	SoftDelete: true,
	List: func(Params) (*Request, error) {
		return getGroups, nil
	},
}

// Group is a team of agents tickets can be assigned to. Destroyed groups are
// kept and flagged deleted.
type Group struct {
	*Model
}

func newGroup(m *Model) *Group {
	return &Group{Model: m}
}

// Groups lists the groups that are not deleted. Get still finds deleted ones.
func (c *Client) Groups() *Collection[*Group] {
	return newCollection(c, groupKind, newGroup, nil)
}

func (g *Group) Name() string {
	return g.String("name")
}

func (g *Group) Deleted() bool {
	return g.Bool("deleted")
}

// Memberships lists the agents of the group.
func (g *Group) Memberships() *Collection[*GroupMembership] {
	return g.client.GroupMemberships(Params{"group_id": g.Get("id")})
}

func notDeleted(rec mockstore.Record) bool {
	deleted, _ := rec["deleted"].(bool)
	return !deleted
}

func mockCreateGroup(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "group")

	if blank(params["name"]) {
		return nil, invalid("name", "Name: cannot be blank")
	}

	record := mockstore.Record{
		"default": m.store.Count(groupsTable) == 0,
		"deleted": false,
	}

	for k, v := range slice(params, groupFields...) {
		record[k] = v
	}

	rec, err := m.insert(groupsTable, "/groups/%d.json", record)
	if err != nil {
		return nil, err
	}

	return replyCreated("group", rec)
}

func mockUpdateGroup(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(groupsTable, p)
	if err != nil {
		return nil, err
	}

	params := payload(p, "group")

	if name, set := params["name"]; set && blank(name) {
		return nil, invalid("name", "Name: cannot be blank")
	}

	rec, err := m.store.Update(groupsTable, id, slice(params, groupFields...))
	if err != nil {
		return nil, err
	}

	return reply("group", rec)
}

// mockDestroyGroup flags the group deleted and drops its memberships.
func mockDestroyGroup(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(groupsTable, p)
	if err != nil {
		return nil, err
	}

	_, err = m.store.Update(groupsTable, id, mockstore.Record{"deleted": true})
	if err != nil {
		return nil, err
	}

	for _, gm := range m.store.Select(groupMembershipsTable, mockstore.FieldEquals("group_id", id)) {
		gmID, _ := mockstore.ToID(gm["id"])

		_, err = m.store.Delete(groupMembershipsTable, gmID)
		if err != nil {
			return nil, err
		}
	}

	return replyNoContent()
}
