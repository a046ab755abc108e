package helpdesk_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
)

const agentEmail = "agent@acme.test"

func newClient(t *testing.T, opts ...helpdesk.Option) (*helpdesk.Client, *helpdesk.Mock) {
	t.Helper()

	mock := helpdesk.NewMock(nil, agentEmail)

	return helpdesk.New(mock, opts...), mock
}

func mockUUID() string {
	return uuid.NewString()
}

func mockEmail() string {
	return "helpdesk+" + uuid.NewString() + "@example.com"
}

func request(t *testing.T, name string) *helpdesk.Request {
	t.Helper()

	for _, req := range helpdesk.Requests() {
		if req.Name == name {
			return req
		}
	}

	require.Failf(t, "unknown request", "%s", name)

	return nil
}

func mustID(t *testing.T, r interface{ ID() (int64, bool) }) int64 {
	t.Helper()

	id, ok := r.ID()
	require.True(t, ok, "resource has no identity")

	return id
}

func createTicket(t *testing.T, client *helpdesk.Client, extra attr.Record) *helpdesk.Ticket {
	t.Helper()

	attrs := attr.Record{"subject": mockUUID(), "description": mockUUID()}
	for k, v := range extra {
		attrs[k] = v
	}

	ticket, err := client.Tickets().Create(t.Context(), attrs)
	require.NoError(t, err)

	return ticket
}

func createUser(t *testing.T, client *helpdesk.Client, extra attr.Record) *helpdesk.User {
	t.Helper()

	attrs := attr.Record{"name": mockUUID(), "email": mockEmail()}
	for k, v := range extra {
		attrs[k] = v
	}

	user, err := client.Users().Create(t.Context(), attrs)
	require.NoError(t, err)

	return user
}

func createOrganization(t *testing.T, client *helpdesk.Client) *helpdesk.Organization {
	t.Helper()

	org, err := client.Organizations().Create(t.Context(), attr.Record{"name": mockUUID()})
	require.NoError(t, err)

	return org
}
