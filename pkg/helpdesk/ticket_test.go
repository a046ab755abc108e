package helpdesk_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
)

func TestTicketRequesterDefaultsToCurrentUser(t *testing.T) {
	client, _ := newClient(t)
	ticket := createTicket(t, client, nil)

	current, err := client.CurrentUser(t.Context())
	require.NoError(t, err)
	assert.Equal(t, agentEmail, current.Email())

	requesterID, _ := ticket.Int("requester_id")
	submitterID, _ := ticket.Int("submitter_id")

	assert.Equal(t, mustID(t, current), requesterID)
	assert.Equal(t, mustID(t, current), submitterID)
	assert.Equal(t, "new", ticket.Status())
	assert.Empty(t, ticket.Array("custom_fields"))
	assert.Empty(t, ticket.Array("collaborator_ids"))
}

func TestTicketRequesterByEmail(t *testing.T) {
	client, mock := newClient(t)
	email := mockEmail()
	users := mock.Store().Count("users")

	ticket := createTicket(t, client, attr.Record{
		"requester": map[string]any{"name": "Jo Requester", "email": email},
	})
	assert.Equal(t, users+1, mock.Store().Count("users"))
	assert.False(t, ticket.Has("requester"))

	requester, err := ticket.Requester().Resolve(t.Context())
	require.NoError(t, err)
	require.NotNil(t, requester)
	assert.Equal(t, "Jo Requester", requester.Name())
	assert.Equal(t, email, requester.Email())

	again := createTicket(t, client, attr.Record{
		"requester": map[string]any{"name": "Someone Else", "email": email},
	})
	assert.Equal(t, users+1, mock.Store().Count("users"))

	requesterID, _ := again.Int("requester_id")
	assert.Equal(t, mustID(t, requester), requesterID)
}

func TestTicketRequesterFromUser(t *testing.T) {
	client, _ := newClient(t)
	user := createUser(t, client, nil)

	ticket, err := client.Tickets().New(attr.Record{"subject": mockUUID(), "description": mockUUID()})
	require.NoError(t, err)
	require.NoError(t, ticket.SetRequester(user))
	require.NoError(t, ticket.Save(t.Context()))

	requesterID, _ := ticket.Int("requester_id")
	assert.Equal(t, mustID(t, user), requesterID)

	tickets, err := user.RequestedTickets().Collect(t.Context())
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, mustID(t, ticket), mustID(t, tickets[0]))
}

func TestTicketRequesterNameIsRequired(t *testing.T) {
	client, mock := newClient(t)

	_, err := client.Tickets().Create(t.Context(), attr.Record{
		"subject":     mockUUID(),
		"description": mockUUID(),
		"requester":   map[string]any{"email": mockEmail()},
	})
	require.ErrorIs(t, err, helpdesk.ErrValidation)
	assert.Contains(t, err.Error(), "Requester Name: is too short (minimum is 1 character)")
	assert.Zero(t, mock.Store().Count("tickets"))
}

func TestTicketCollaborators(t *testing.T) {
	existing := mockEmail()

	tests := []struct {
		name          string
		collaborators func(user *helpdesk.User) any
		wantEmails    func(user *helpdesk.User) []string
	}{
		{
			name: "name and email",
			collaborators: func(*helpdesk.User) any {
				return []any{map[string]any{"name": "Jo Collaborator", "email": existing}}
			},
			wantEmails: func(*helpdesk.User) []string { return []string{existing} },
		},
		{
			name: "name without email is skipped",
			collaborators: func(*helpdesk.User) any {
				return []any{map[string]any{"name": "Nobody", "email": nil}}
			},
			wantEmails: func(*helpdesk.User) []string { return nil },
		},
		{
			name: "email without name",
			collaborators: func(*helpdesk.User) any {
				return map[string]any{"name": nil, "email": existing}
			},
			wantEmails: func(*helpdesk.User) []string { return []string{existing} },
		},
		{
			name: "users and ids",
			collaborators: func(user *helpdesk.User) any {
				return []any{user, user.Get("id")}
			},
			wantEmails: func(user *helpdesk.User) []string { return []string{user.Email()} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClient(t)
			user := createUser(t, client, nil)

			ticket := createTicket(t, client, attr.Record{"collaborators": tt.collaborators(user)})

			collaborators, err := ticket.Collaborators(t.Context())
			require.NoError(t, err)

			var emails []string
			for _, c := range collaborators {
				emails = append(emails, c.Email())
			}

			assert.Equal(t, tt.wantEmails(user), emails)
		})
	}
}

func TestTicketCollaboratorNamedByEmail(t *testing.T) {
	client, _ := newClient(t)
	email := mockEmail()

	ticket := createTicket(t, client, attr.Record{
		"collaborators": []any{map[string]any{"email": email}},
	})

	collaborators, err := ticket.Collaborators(t.Context())
	require.NoError(t, err)
	require.Len(t, collaborators, 1)
	assert.Equal(t, email, collaborators[0].Name())
}

func TestTicketOrganization(t *testing.T) {
	client, _ := newClient(t)
	org := createOrganization(t, client)
	user := createUser(t, client, attr.Record{"organization": org})

	t.Run("defaults to the requester organization", func(t *testing.T) {
		ticket := createTicket(t, client, attr.Record{"requester_id": mustID(t, user)})

		resolved, err := ticket.Organization().Resolve(t.Context())
		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, mustID(t, org), mustID(t, resolved))

		tickets, err := org.Tickets().Collect(t.Context())
		require.NoError(t, err)
		require.Len(t, tickets, 1)
		assert.Equal(t, mustID(t, ticket), mustID(t, tickets[0]))
	})

	t.Run("explicit organization", func(t *testing.T) {
		other := createOrganization(t, client)
		ticket := createTicket(t, client, attr.Record{"requester_id": mustID(t, user), "organization": other})

		orgID, ok := ticket.Int("organization_id")
		require.True(t, ok)
		assert.Equal(t, mustID(t, other), orgID)
	})
}

func TestTicketTypedAttributes(t *testing.T) {
	client, _ := newClient(t)

	ticket := createTicket(t, client, attr.Record{
		"priority":       "urgent",
		"ticket_form_id": "7",
		"brand_id":       9.0,
		"tags":           []string{"billing"},
	})

	assert.Equal(t, "urgent", ticket.Priority())

	formID, ok := ticket.Int("ticket_form_id")
	require.True(t, ok)
	assert.Equal(t, int64(7), formID)

	brandID, ok := ticket.Int("brand_id")
	require.True(t, ok)
	assert.Equal(t, int64(9), brandID)

	assert.Equal(t, []any{"billing"}, ticket.Array("tags"))

	fetched, err := client.Tickets().Get(t.Context(), mustID(t, ticket))
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "urgent", fetched.Priority())

	formID, _ = fetched.Int("ticket_form_id")
	assert.Equal(t, int64(7), formID)
}

func TestTicketCustomFields(t *testing.T) {
	client, _ := newClient(t)

	color, err := client.TicketFields().Create(t.Context(), attr.Record{"title": "Color", "type": "text"})
	require.NoError(t, err)

	size, err := client.TicketFields().Create(t.Context(), attr.Record{"title": "Size", "type": "text"})
	require.NoError(t, err)

	ticket := createTicket(t, client, attr.Record{
		"custom_fields": []any{
			map[string]any{"id": mustID(t, color), "value": "blue"},
			map[string]any{"id": 123456789, "value": "dropped"},
		},
	})

	require.Len(t, ticket.Array("custom_fields"), 2)

	value, ok := ticket.CustomField(mustID(t, color))
	require.True(t, ok)
	assert.Equal(t, "blue", value)

	value, ok = ticket.CustomField(mustID(t, size))
	require.True(t, ok)
	assert.Nil(t, value)

	_, ok = ticket.CustomField(123456789)
	assert.False(t, ok)

	require.NoError(t, ticket.Set("custom_fields", []any{
		map[string]any{"id": mustID(t, size), "value": "XL"},
	}))
	require.NoError(t, ticket.Save(t.Context()))

	value, _ = ticket.CustomField(mustID(t, color))
	assert.Equal(t, "blue", value)

	value, _ = ticket.CustomField(mustID(t, size))
	assert.Equal(t, "XL", value)
}

func TestTicketComments(t *testing.T) {
	client, mock := newClient(t)
	ticket := createTicket(t, client, nil)
	other := createTicket(t, client, nil)
	author := createUser(t, client, nil)

	comment, err := ticket.Comment(t.Context(), "Have you tried <b>turning it off</b>?")
	require.NoError(t, err)
	assert.Equal(t, "Have you tried <b>turning it off</b>?", comment.Body())
	assert.Equal(t, "<p>Have you tried &lt;b&gt;turning it off&lt;/b&gt;?</p>", comment.String("html_body"))
	assert.True(t, comment.Public())

	private, err := ticket.Comment(t.Context(), "internal note", helpdesk.PrivateComment(), helpdesk.CommentAuthor(mustID(t, author)))
	require.NoError(t, err)
	assert.False(t, private.Public())

	written, err := private.Author().Resolve(t.Context())
	require.NoError(t, err)
	require.NotNil(t, written)
	assert.Equal(t, author.Email(), written.Email())

	comments, err := ticket.Comments().Collect(t.Context())
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, comment.Body(), comments[0].Body())
	assert.Equal(t, "internal note", comments[1].Body())

	comments, err = other.Comments().Collect(t.Context())
	require.NoError(t, err)
	assert.Empty(t, comments)

	audits, err := ticket.Audits().Collect(t.Context())
	require.NoError(t, err)
	require.Len(t, audits, 2)

	last := audits[len(audits)-1]

	events, err := last.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "internal note", events[0].Body())

	metadata, _ := last.Get("metadata").(map[string]any)
	system, _ := metadata["system"].(map[string]any)
	requestID, _ := system["request_id"].(string)
	_, err = uuid.Parse(requestID)
	require.NoError(t, err)

	audit, err := private.Audit().Resolve(t.Context())
	require.NoError(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, mustID(t, last), mustID(t, audit))
	assert.Equal(t, 1, mock.Calls("get_ticket_audit"))

	_, err = ticket.Comment(t.Context(), " ")
	require.ErrorIs(t, err, helpdesk.ErrValidation)
}

func TestCommentOnNewTicket(t *testing.T) {
	client, mock := newClient(t)

	ticket, err := client.Tickets().New(attr.Record{"subject": mockUUID()})
	require.NoError(t, err)

	_, err = ticket.Comment(t.Context(), "hello")
	require.ErrorIs(t, err, helpdesk.ErrRequiredAttribute)
	assert.Zero(t, mock.Calls("update_ticket"))
}

func TestCommentsRequireTicket(t *testing.T) {
	client, _ := newClient(t)

	ticket, err := client.Tickets().New(nil)
	require.NoError(t, err)

	_, err = ticket.Comments().All(t.Context(), nil)
	require.ErrorIs(t, err, helpdesk.ErrScopeRequired)
}

func TestUpdateTicketRejectedBeforeCreatingUsers(t *testing.T) {
	tests := []struct {
		name    string
		ticket  map[string]any
		field   string
		message string
	}{
		{
			name: "blank comment body",
			ticket: map[string]any{
				"requester":     map[string]any{"name": "Jo Requester", "email": mockEmail()},
				"collaborators": []any{map[string]any{"name": "Jo Collaborator", "email": mockEmail()}},
				"comment":       map[string]any{"body": ""},
			},
			field:   "comment",
			message: "Comment: body cannot be blank",
		},
		{
			name: "blank requester name",
			ticket: map[string]any{
				"requester":     map[string]any{"name": "", "email": mockEmail()},
				"collaborators": []any{map[string]any{"name": "Jo Collaborator", "email": mockEmail()}},
			},
			field:   "requester",
			message: "Requester Name: is too short (minimum is 1 character)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newClient(t)
			ticket := createTicket(t, client, nil)
			users := mock.Store().Count("users")

			_, err := client.Execute(t.Context(), request(t, "update_ticket"), helpdesk.Params{
				"id":     mustID(t, ticket),
				"ticket": tt.ticket,
			})
			require.ErrorIs(t, err, helpdesk.ErrValidation)

			var verr *helpdesk.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, []string{tt.message}, verr.Field(tt.field))
			assert.Equal(t, users, mock.Store().Count("users"))
		})
	}
}
