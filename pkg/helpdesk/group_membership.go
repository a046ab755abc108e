package helpdesk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const groupMembershipsTable = "group_memberships"

var groupMembershipSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("user_id", attr.Integer, attr.Required()),
	attr.Attribute("group_id", attr.Integer, attr.Required()),
	attr.Attribute("default", attr.Boolean),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

var (
	createGroupMembership = &Request{
		Name:   "create_group_membership",
		Method: http.MethodPost,
		Path:   "/group_memberships.json",
		Body:   wrapBody("group_membership"),
		Mock:   mockCreateGroupMembership,
	}
	getGroupMembership = &Request{
		Name:   "get_group_membership",
		Method: http.MethodGet,
		Path:   "/group_memberships/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(groupMembershipsTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("group_membership", rec)
		},
	}
	destroyGroupMembership = &Request{
		Name:   "destroy_group_membership",
		Method: http.MethodDelete,
		Path:   "/group_memberships/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.remove(groupMembershipsTable, p)
		},
	}
	getGroupMemberships = &Request{
		Name:   "get_group_memberships",
		Method: http.MethodGet,
		Path:   "/group_memberships.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(groupMembershipsTable, "/group_memberships.json", "group_memberships", p, nil, nil), nil
		},
	}
	getUserGroupMemberships = &Request{
		Name:   "get_user_group_memberships",
		Method: http.MethodGet,
		Path:   "/users/{user_id}/group_memberships.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.scopedGroupMemberships(usersTable, "user_id", "/users/%s/group_memberships.json", p)
		},
	}
	getMembershipsOfGroup = &Request{
		Name:   "get_group_memberships_by_group",
		Method: http.MethodGet,
		Path:   "/groups/{group_id}/memberships.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.scopedGroupMemberships(groupsTable, "group_id", "/groups/%s/memberships.json", p)
		},
	}
)

var groupMembershipKind = &Kind{
	Name:    "group_memberships",
	Root:    "group_membership",
	Schema:  groupMembershipSchema,
	Create:  createGroupMembership,
	Get:     getGroupMembership,
	Destroy: destroyGroupMembership,
	List: func(scope Params) (*Request, error) {
		switch {
		case scope["user_id"] != nil:
			return getUserGroupMemberships, nil
		case scope["group_id"] != nil:
			return getMembershipsOfGroup, nil
		default:
			return getGroupMemberships, nil
		}
	},
}

// GroupMembership assigns an agent to a group.
type GroupMembership struct {
	*Model
}

func newGroupMembership(m *Model) *GroupMembership {
	return &GroupMembership{Model: m}
}

// GroupMemberships lists group memberships, optionally scoped by user_id or
// group_id.
func (c *Client) GroupMemberships(scope Params) *Collection[*GroupMembership] {
	return newCollection(c, groupMembershipKind, newGroupMembership, scope)
}

func (gm *GroupMembership) User() *Association[*User] {
	return newAssociation(gm.Model, "user_id", gm.client.Users)
}

func (gm *GroupMembership) Group() *Association[*Group] {
	return newAssociation(gm.Model, "group_id", gm.client.Groups)
}

func mockCreateGroupMembership(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "group_membership")
	userID, groupID := params["user_id"], params["group_id"]

	if _, err := m.find(usersTable, userID); err != nil {
		return nil, invalid("user_id", "User: cannot be blank")
	}

	group, err := m.find(groupsTable, groupID)
	if err != nil || !notDeleted(group) {
		return nil, invalid("group_id", "Group: cannot be blank")
	}

	existing := m.store.Select(groupMembershipsTable, mockstore.FieldEquals("user_id", userID))

	for _, rec := range existing {
		if mockstore.Equal(rec["group_id"], groupID) {
			return nil, invalid("user_id", "User: is already a member of this group")
		}
	}

	rec, err := m.insert(groupMembershipsTable, "/group_memberships/%d.json", mockstore.Record{
		"user_id":  userID,
		"group_id": groupID,
		"default":  len(existing) == 0,
	})
	if err != nil {
		return nil, err
	}

	return replyCreated("group_membership", rec)
}

// scopedGroupMemberships pages the memberships whose field points at an
// existing record of parentTable.
func (m *Mock) scopedGroupMemberships(parentTable, field, pathFormat string, p Params) (*Response, error) {
	parentID := p[field]

	_, err := m.find(parentTable, parentID)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf(pathFormat, str(parentID))

	return m.page(groupMembershipsTable, path, "group_memberships", p, nil, mockstore.FieldEquals(field, parentID)), nil
}
