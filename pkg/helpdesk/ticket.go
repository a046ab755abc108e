package helpdesk

import (
	"context"
	"net/http"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const ticketsTable = "tickets"

var ticketSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("external_id", attr.String),
	attr.Attribute("type", attr.String),
	attr.Attribute("subject", attr.String, attr.Required()),
	attr.Attribute("description", attr.String, attr.Required()),
	attr.Attribute("priority", attr.String),
	attr.Attribute("status", attr.String),
	attr.Attribute("recipient", attr.String),
	attr.Attribute("requester_id", attr.Integer),
	attr.Attribute("submitter_id", attr.Integer),
	attr.Attribute("assignee_id", attr.Integer),
	attr.Attribute("organization_id", attr.Integer),
	attr.Attribute("group_id", attr.Integer),
	attr.Attribute("collaborator_ids", attr.Array),
	attr.Attribute("forum_topic_id", attr.Integer),
	attr.Attribute("problem_id", attr.Integer),
	attr.Attribute("has_incidents", attr.Boolean),
	attr.Attribute("due_at", attr.Time),
	attr.Attribute("tags", attr.Array),
	attr.Attribute("custom_fields", attr.Array),
	attr.Attribute("sharing_agreement_ids", attr.Array),
	attr.Attribute("satisfaction_rating", attr.Any),
	attr.Attribute("via", attr.Any),
	attr.Attribute("ticket_form_id", attr.Integer),
	attr.Attribute("brand_id", attr.Integer),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

// ticketFields are the attributes stored as given on create and update.
// requester, collaborators, custom_fields and comment get special handling.
var ticketFields = []string{
	"external_id", "type", "subject", "description", "priority", "status",
	"recipient", "requester_id", "submitter_id", "assignee_id", "organization_id",
	"group_id", "collaborator_ids", "forum_topic_id", "problem_id", "has_incidents",
	"due_at", "tags", "sharing_agreement_ids", "satisfaction_rating", "ticket_form_id",
	"brand_id",
}

var (
	createTicket = &Request{
		Name:   "create_ticket",
		Method: http.MethodPost,
		Path:   "/tickets.json",
		Body:   wrapBody("ticket"),
		Mock:   mockCreateTicket,
	}
	getTicket = &Request{
		Name:   "get_ticket",
		Method: http.MethodGet,
		Path:   "/tickets/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(ticketsTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("ticket", rec)
		},
	}
	updateTicket = &Request{
		Name:   "update_ticket",
		Method: http.MethodPut,
		Path:   "/tickets/{id}.json",
		Body:   wrapBody("ticket"),
		Mock:   mockUpdateTicket,
	}
	destroyTicket = &Request{
		Name:   "destroy_ticket",
		Method: http.MethodDelete,
		Path:   "/tickets/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.remove(ticketsTable, p)
		},
	}
	getTickets = &Request{
		Name:   "get_tickets",
		Method: http.MethodGet,
		Path:   "/tickets.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(ticketsTable, "/tickets.json", "tickets", p, nil, nil), nil
		},
	}
	getOrganizationTickets = &Request{
		Name:   "get_organization_tickets",
		Method: http.MethodGet,
		Path:   "/organizations/{organization_id}/tickets.json",
		Paged:  true,
		Mock:   mockGetOrganizationTickets,
	}
	getRequestedTickets = &Request{
		Name:   "get_requested_tickets",
		Method: http.MethodGet,
		Path:   "/users/{requester_id}/tickets/requested.json",
		Paged:  true,
		Mock:   mockGetRequestedTickets,
	}
)

var ticketKind = &Kind{
	Name:    "tickets",
	Root:    "ticket",
	Schema:  ticketSchema,
	Create:  createTicket,
	Get:     getTicket,
	Update:  updateTicket,
	Destroy: destroyTicket,
	List: func(scope Params) (*Request, error) {
		switch {
		case scope["organization_id"] != nil:
			return getOrganizationTickets, nil
		case scope["requester_id"] != nil:
			return getRequestedTickets, nil
		default:
			return getTickets, nil
		}
	},
}

// Ticket is a support request.
type Ticket struct {
	*Model
}

func newTicket(m *Model) *Ticket {
	return &Ticket{Model: m}
}

func (c *Client) Tickets() *Collection[*Ticket] {
	return newCollection(c, ticketKind, newTicket, nil)
}

func (t *Ticket) Subject() string {
	return t.String("subject")
}

func (t *Ticket) Description() string {
	return t.String("description")
}

func (t *Ticket) Status() string {
	return t.String("status")
}

func (t *Ticket) Priority() string {
	return t.String("priority")
}

func (t *Ticket) Requester() *Association[*User] {
	return newAssociation(t.Model, "requester_id", t.client.Users)
}

func (t *Ticket) Submitter() *Association[*User] {
	return newAssociation(t.Model, "submitter_id", t.client.Users)
}

func (t *Ticket) Assignee() *Association[*User] {
	return newAssociation(t.Model, "assignee_id", t.client.Users)
}

func (t *Ticket) Organization() *Association[*Organization] {
	return newAssociation(t.Model, "organization_id", t.client.Organizations)
}

func (t *Ticket) Group() *Association[*Group] {
	return newAssociation(t.Model, "group_id", t.client.Groups)
}

// SetRequester accepts a saved *User, a user id, or a {"name", "email"} map
// describing a requester the service looks up by email or creates.
func (t *Ticket) SetRequester(requester any) error {
	switch v := requester.(type) {
	case *User:
		if v == nil {
			return t.Set("requester_id", nil)
		}

		if v.IsNew() {
			return t.Set("requester", attr.Record{"name": v.Name(), "email": v.Email()})
		}

		return t.Set("requester_id", v.Get("id"))
	case map[string]any:
		return t.Set("requester", v)
	default:
		return t.Set("requester_id", v)
	}
}

// SetCollaborators replaces the users copied on the ticket. Each element is
// a *User, a user id, or a {"name", "email"} map; a single value is accepted
// as a list of one.
func (t *Ticket) SetCollaborators(collaborators any) error {
	var items []any

	switch v := collaborators.(type) {
	case []any:
		items = v
	case []*User:
		for _, u := range v {
			items = append(items, u)
		}
	case nil:
	default:
		items = []any{v}
	}

	out := make([]any, 0, len(items))

	for _, item := range items {
		u, isUser := item.(*User)
		if !isUser {
			out = append(out, item)
			continue
		}

		if u != nil && !u.IsNew() {
			out = append(out, u.Get("id"))
		}
	}

	return t.Set("collaborators", out)
}

func (t *Ticket) SetOrganization(org *Organization) error {
	if org == nil {
		return t.Set("organization_id", nil)
	}

	return t.Set("organization_id", org.Get("id"))
}

func (t *Ticket) assign(name string, value any) (bool, error) {
	switch name {
	case "requester":
		return true, t.SetRequester(value)
	case "collaborators":
		return true, t.SetCollaborators(value)
	case "organization":
		if org, isOrg := value.(*Organization); isOrg {
			return true, t.SetOrganization(org)
		}

		return true, t.Set("organization_id", value)
	case "submitter", "assignee":
		if u, isUser := value.(*User); isUser {
			if u == nil {
				return true, t.Set(name+"_id", nil)
			}

			return true, t.Set(name+"_id", u.Get("id"))
		}

		return true, t.Set(name+"_id", value)
	default:
		return false, nil
	}
}

// Collaborators resolves the collaborator ids. Users that no longer exist
// are skipped.
func (t *Ticket) Collaborators(ctx context.Context) ([]*User, error) {
	var users []*User

	for _, id := range t.Array("collaborator_ids") {
		u, err := t.client.Users().Get(ctx, id)
		if err != nil {
			return nil, err
		}

		if u != nil {
			users = append(users, u)
		}
	}

	return users, nil
}

// CustomField returns the value of the custom field with the given ticket
// field id.
func (t *Ticket) CustomField(fieldID any) (any, bool) {
	for _, raw := range t.Array("custom_fields") {
		cf, isMap := raw.(map[string]any)
		if isMap && mockstore.Equal(cf["id"], fieldID) {
			return cf["value"], true
		}
	}

	return nil, false
}

// CommentOption adjusts a comment before it is sent.
type CommentOption func(comment attr.Record)

// PrivateComment hides the comment from the requester.
func PrivateComment() CommentOption {
	return func(comment attr.Record) {
		comment["public"] = false
	}
}

// CommentAuthor posts the comment on behalf of another user.
func CommentAuthor(userID any) CommentOption {
	return func(comment attr.Record) {
		comment["author_id"] = userID
	}
}

// Comment adds a public comment to the ticket and returns it. The service
// records it in a new audit.
func (t *Ticket) Comment(ctx context.Context, body string, opts ...CommentOption) (*TicketComment, error) {
	id, persisted := t.ID()
	if !persisted {
		return nil, &MissingIdentityError{Kind: ticketKind.Root}
	}

	comment := attr.Record{"body": body, "public": true}
	for _, opt := range opts {
		opt(comment)
	}

	resp, err := t.client.Execute(ctx, updateTicket, Params{
		"id":     id,
		"ticket": attr.Record{"id": id, "comment": comment},
	})
	if err != nil {
		return nil, err
	}

	audit, _ := resp.Body["audit"].(map[string]any)
	events, _ := audit["events"].([]any)

	if len(events) == 0 {
		return nil, errs.Wrapf(ErrUnexpectedBody, "update_ticket returned no audit events")
	}

	event, isMap := events[0].(map[string]any)
	if !isMap {
		return nil, errs.Wrapf(ErrUnexpectedBody, "audit event is %T", events[0])
	}

	m, err := newFromRecord(t.client, ticketCommentKind, event)
	if err != nil {
		return nil, err
	}

	return newTicketComment(m), nil
}

// Comments lists the comments of the ticket, oldest first.
func (t *Ticket) Comments() *Collection[*TicketComment] {
	return t.client.ticketComments(t.Get("id"))
}

// Audits lists the audits of the ticket, oldest first.
func (t *Ticket) Audits() *Collection[*TicketAudit] {
	return t.client.ticketAudits(t.Get("id"))
}

func mockCreateTicket(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "ticket")

	if blank(params["description"]) {
		return nil, invalid("description", "Description: cannot be blank")
	}

	err := validateTicketChanges(params)
	if err != nil {
		return nil, err
	}

	current, err := m.CurrentUser()
	if err != nil {
		return nil, err
	}

	requesterID, err := m.requesterID(params)
	if err != nil {
		return nil, err
	}

	record := mockstore.Record{
		"status":                "new",
		"has_incidents":         false,
		"tags":                  []any{},
		"sharing_agreement_ids": []any{},
		"via":                   map[string]any{"channel": "api"},
	}

	for k, v := range slice(params, ticketFields...) {
		record[k] = v
	}

	if requesterID == nil {
		requesterID = current["id"]
	}

	record["requester_id"] = requesterID

	if blank(record["submitter_id"]) {
		record["submitter_id"] = current["id"]
	}

	if blank(record["organization_id"]) {
		delete(record, "organization_id")

		// a requester that does not exist leaves the organization unset
		if requester, err := m.find(usersTable, requesterID); err == nil && requester["organization_id"] != nil {
			record["organization_id"] = requester["organization_id"]
		}
	}

	collaborators, err := m.collaboratorIDs(params["collaborators"], params["collaborator_ids"])
	if err != nil {
		return nil, err
	}

	record["collaborator_ids"] = collaborators
	record["custom_fields"] = m.customFields(nil, params["custom_fields"])

	rec, err := m.insert(ticketsTable, "/tickets/%d.json", record)
	if err != nil {
		return nil, err
	}

	return replyCreated("ticket", rec)
}

func mockUpdateTicket(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(ticketsTable, p)
	if err != nil {
		return nil, err
	}

	current, err := m.store.Fetch(ticketsTable, id)
	if err != nil {
		return nil, err
	}

	params := payload(p, "ticket")
	patch := slice(params, ticketFields...)

	if description, set := patch["description"]; set && blank(description) {
		return nil, invalid("description", "Description: cannot be blank")
	}

	err = validateTicketChanges(params)
	if err != nil {
		return nil, err
	}

	requesterID, err := m.requesterID(params)
	if err != nil {
		return nil, err
	}

	if requesterID != nil {
		patch["requester_id"] = requesterID
	}

	_, hasCollaborators := params["collaborators"]
	_, hasCollaboratorIDs := params["collaborator_ids"]

	if hasCollaborators || hasCollaboratorIDs {
		ids, err := m.collaboratorIDs(params["collaborators"], params["collaborator_ids"])
		if err != nil {
			return nil, err
		}

		patch["collaborator_ids"] = ids
	}

	if given, set := params["custom_fields"]; set {
		patch["custom_fields"] = m.customFields(current["custom_fields"], given)
	}

	body := map[string]any{}

	if comment, isMap := params["comment"].(map[string]any); isMap {
		audit, err := m.addComment(id, comment)
		if err != nil {
			return nil, err
		}

		body["audit"] = audit
	}

	rec, err := m.store.Update(ticketsTable, id, patch)
	if err != nil {
		return nil, err
	}

	body["ticket"] = rec

	return &Response{Status: http.StatusOK, Body: body}, nil
}

// validateTicketChanges rejects a payload whose requester or comment is
// invalid. It runs before any user, audit or ticket record is written.
func validateTicketChanges(params mockstore.Record) error {
	if requester, isMap := params["requester"].(map[string]any); isMap && blank(requester["name"]) {
		return invalid("requester", "Requester Name: is too short (minimum is 1 character)")
	}

	if comment, isMap := params["comment"].(map[string]any); isMap && blank(str(comment["body"])) {
		return invalid("comment", "Comment: body cannot be blank")
	}

	return nil
}

// requesterID resolves a {"name", "email"} requester to a user id, creating
// the user when no user has that email. It returns nil when the request
// carries no requester hash.
func (m *Mock) requesterID(params mockstore.Record) (any, error) {
	requester, isMap := params["requester"].(map[string]any)
	if !isMap {
		return params["requester_id"], nil
	}

	if blank(requester["name"]) {
		return nil, invalid("requester", "Requester Name: is too short (minimum is 1 character)")
	}

	return m.userIDByEmail(requester)
}

// userIDByEmail finds the user with the email of person, or creates one.
func (m *Mock) userIDByEmail(person map[string]any) (any, error) {
	email := str(person["email"])

	if email != "" {
		users := m.store.Select(usersTable, mockstore.FieldEquals("email", email))
		if len(users) > 0 {
			return users[0]["id"], nil
		}
	}

	name := person["name"]
	if blank(name) {
		name = email
	}

	rec, err := m.createUser(mockstore.Record{"name": name, "email": person["email"]})
	if err != nil {
		return nil, err
	}

	return rec["id"], nil
}

// collaboratorIDs turns collaborators given as ids or {"name", "email"} maps
// into user ids. Maps without an email are skipped.
func (m *Mock) collaboratorIDs(collaborators, explicit any) ([]any, error) {
	var items []any

	for _, raw := range []any{explicit, collaborators} {
		switch v := raw.(type) {
		case nil:
		case []any:
			items = append(items, v...)
		default:
			items = append(items, v)
		}
	}

	ids := make([]any, 0, len(items))
	seen := make(map[int64]struct{}, len(items))

	for _, item := range items {
		var raw any = item

		if person, isMap := item.(map[string]any); isMap {
			if blank(person["email"]) {
				continue
			}

			id, err := m.userIDByEmail(person)
			if err != nil {
				return nil, err
			}

			raw = id
		}

		id, valid := mockstore.ToID(raw)
		if !valid {
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

// customFields lays out one {"id", "value"} entry per ticket field. Values
// come from given, then from existing; ids of unknown ticket fields are
// dropped.
func (m *Mock) customFields(existing, given any) []any {
	values := make(map[string]any)

	for _, src := range []any{existing, given} {
		entries, _ := src.([]any)
		for _, raw := range entries {
			if entry, isMap := raw.(map[string]any); isMap {
				values[str(entry["id"])] = entry["value"]
			}
		}
	}

	fields := m.store.Select(ticketFieldsTable, nil)
	out := make([]any, 0, len(fields))

	for _, f := range fields {
		out = append(out, map[string]any{
			"id":    f["id"],
			"value": values[str(f["id"])],
		})
	}

	return out
}

func mockGetOrganizationTickets(_ context.Context, m *Mock, p Params) (*Response, error) {
	orgID := p["organization_id"]

	_, err := m.find(organizationsTable, orgID)
	if err != nil {
		return nil, err
	}

	path := "/organizations/" + str(orgID) + "/tickets.json"

	return m.page(ticketsTable, path, "tickets", p, nil, mockstore.FieldEquals("organization_id", orgID)), nil
}

func mockGetRequestedTickets(_ context.Context, m *Mock, p Params) (*Response, error) {
	userID := p["requester_id"]

	_, err := m.find(usersTable, userID)
	if err != nil {
		return nil, err
	}

	path := "/users/" + str(userID) + "/tickets/requested.json"

	return m.page(ticketsTable, path, "tickets", p, nil, mockstore.FieldEquals("requester_id", userID)), nil
}
