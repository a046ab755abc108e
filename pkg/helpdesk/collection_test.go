package helpdesk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
)

func TestCollectionPaging(t *testing.T) {
	client, mock := newClient(t, helpdesk.WithPerPage(10))

	for range 25 {
		createOrganization(t, client)
	}

	orgs, err := client.Organizations().All(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, orgs.Len())
	assert.Equal(t, 25, orgs.Cursor().Count)
	require.NotNil(t, orgs.Cursor().NextPage)
	assert.Nil(t, orgs.Cursor().PreviousPage)
	assert.Equal(t, 1, mock.Calls("get_organizations"))

	all, err := orgs.Collect(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 25)
	assert.Equal(t, 3, mock.Calls("get_organizations"))
	assert.Nil(t, orgs.Cursor().NextPage)
	assert.NotNil(t, orgs.Cursor().PreviousPage)

	seen := make(map[int64]struct{}, len(all))
	for _, org := range all {
		seen[mustID(t, org)] = struct{}{}
	}

	assert.Len(t, seen, 25)

	again, err := orgs.Collect(t.Context())
	require.NoError(t, err)
	assert.Equal(t, all, again)
	assert.Equal(t, 3, mock.Calls("get_organizations"))
}

func TestCollectionIterStopsEarly(t *testing.T) {
	client, mock := newClient(t, helpdesk.WithPerPage(2))

	for range 5 {
		createOrganization(t, client)
	}

	count := 0

	for org, err := range client.Organizations().Iter(t.Context()) {
		require.NoError(t, err)
		require.NotNil(t, org)

		count++
		if count == 3 {
			break
		}
	}

	assert.Equal(t, 3, count)
	assert.Equal(t, 2, mock.Calls("get_organizations"))
}

func TestScopedCollection(t *testing.T) {
	client, _ := newClient(t)
	org := createOrganization(t, client)

	tickets, err := org.Tickets().Collect(t.Context())
	require.NoError(t, err)
	assert.Empty(t, tickets)

	createTicket(t, client, attr.Record{"organization_id": mustID(t, org)})
	createTicket(t, client, nil)

	tickets, err = org.Tickets().Collect(t.Context())
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	orgID, ok := tickets[0].Int("organization_id")
	require.True(t, ok)
	assert.Equal(t, mustID(t, org), orgID)
}

func TestScopeWinsOverParams(t *testing.T) {
	client, _ := newClient(t)
	org := createOrganization(t, client)
	other := createOrganization(t, client)

	createTicket(t, client, attr.Record{"organization_id": mustID(t, org)})
	createTicket(t, client, attr.Record{"organization_id": mustID(t, other)})

	tickets, err := org.Tickets().All(t.Context(), helpdesk.Params{"organization_id": mustID(t, other)})
	require.NoError(t, err)
	require.Equal(t, 1, tickets.Len())

	orgID, _ := tickets.Loaded()[0].Int("organization_id")
	assert.Equal(t, mustID(t, org), orgID)
	assert.Equal(t, mustID(t, org), tickets.Scope()["organization_id"])
}

func TestCollectionOfMissingParentIsEmpty(t *testing.T) {
	client, _ := newClient(t)
	org := createOrganization(t, client)
	require.NoError(t, org.Destroy(t.Context()))

	tickets, err := org.Tickets().All(t.Context(), nil)
	require.NoError(t, err)
	assert.Zero(t, tickets.Len())
	assert.Nil(t, tickets.Cursor().NextPage)
}

func TestCollectionNewAssignsScope(t *testing.T) {
	client, _ := newClient(t)
	org := createOrganization(t, client)
	user := createUser(t, client, nil)

	membership, err := org.Memberships().New(attr.Record{"user_id": mustID(t, user)})
	require.NoError(t, err)
	assert.True(t, membership.IsNew())

	orgID, ok := membership.Int("organization_id")
	require.True(t, ok)
	assert.Equal(t, mustID(t, org), orgID)

	require.NoError(t, membership.Save(t.Context()))
	assert.False(t, membership.IsNew())
	assert.True(t, membership.Default())
}

func TestMembershipScopes(t *testing.T) {
	client, _ := newClient(t)
	org := createOrganization(t, client)
	other := createOrganization(t, client)
	user := createUser(t, client, attr.Record{"organization": org})

	_, err := client.Memberships(helpdesk.Params{
		"user_id":         mustID(t, user),
		"organization_id": mustID(t, other),
	}).Create(t.Context(), nil)
	require.NoError(t, err)

	t.Run("no scope", func(t *testing.T) {
		_, err := client.Memberships(nil).All(t.Context(), nil)
		require.ErrorIs(t, err, helpdesk.ErrScopeRequired)
	})

	t.Run("user", func(t *testing.T) {
		memberships, err := user.Memberships().Collect(t.Context())
		require.NoError(t, err)
		assert.Len(t, memberships, 2)
	})

	t.Run("organization", func(t *testing.T) {
		memberships, err := other.Memberships().Collect(t.Context())
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		assert.False(t, memberships[0].Default())
	})

	t.Run("user and organization", func(t *testing.T) {
		memberships, err := client.Memberships(helpdesk.Params{
			"user_id":         mustID(t, user),
			"organization_id": mustID(t, org),
		}).Collect(t.Context())
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		assert.True(t, memberships[0].Default())

		resolved, err := memberships[0].Organization().Resolve(t.Context())
		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, org.Name(), resolved.Name())
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := client.Memberships(helpdesk.Params{
			"user_id":         mustID(t, user),
			"organization_id": mustID(t, org),
		}).Create(t.Context(), nil)
		require.ErrorIs(t, err, helpdesk.ErrValidation)
		assert.Contains(t, err.Error(), "User: has already been taken")
	})
}

func TestCollectionGetMissing(t *testing.T) {
	client, mock := newClient(t)

	tests := []struct {
		name  string
		id    any
		calls int
	}{
		{name: "nil id", id: nil, calls: 0},
		{name: "unknown id", id: int64(424242), calls: 1},
		{name: "unknown string id", id: "424242", calls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, err := client.Tickets().Get(t.Context(), tt.id)
			require.NoError(t, err)
			assert.Nil(t, ticket)
			assert.Equal(t, tt.calls, mock.Calls("get_ticket"))
		})
	}
}

func TestGroupMemberships(t *testing.T) {
	client, _ := newClient(t)
	user := createUser(t, client, nil)

	group, err := client.Groups().Create(t.Context(), attr.Record{"name": mockUUID()})
	require.NoError(t, err)

	gm, err := group.Memberships().Create(t.Context(), attr.Record{"user_id": mustID(t, user)})
	require.NoError(t, err)

	resolved, err := gm.User().Resolve(t.Context())
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.Email(), resolved.Email())

	_, err = user.GroupMemberships().Create(t.Context(), attr.Record{"group_id": mustID(t, group)})
	require.ErrorIs(t, err, helpdesk.ErrValidation)
	assert.Contains(t, err.Error(), "User: is already a member of this group")

	memberships, err := user.GroupMemberships().Collect(t.Context())
	require.NoError(t, err)
	assert.Len(t, memberships, 1)

	require.NoError(t, group.Destroy(t.Context()))

	memberships, err = user.GroupMemberships().Collect(t.Context())
	require.NoError(t, err)
	assert.Empty(t, memberships)
}
