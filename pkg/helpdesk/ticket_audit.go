package helpdesk

import (
	"context"
	"html"
	"net/http"

	"github.com/google/uuid"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

const (
	ticketCommentsTable = "ticket_comments"
	ticketAuditsTable   = "ticket_audits"
)

var ticketCommentSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("type", attr.String, attr.ReadOnly()),
	attr.Attribute("body", attr.String, attr.ReadOnly()),
	attr.Attribute("html_body", attr.String, attr.ReadOnly()),
	attr.Attribute("plain_body", attr.String, attr.ReadOnly()),
	attr.Attribute("public", attr.Boolean, attr.ReadOnly()),
	attr.Attribute("author_id", attr.Integer, attr.ReadOnly()),
	attr.Attribute("attachments", attr.Array, attr.ReadOnly()),
	attr.Attribute("via", attr.Any, attr.ReadOnly()),
	attr.Attribute("metadata", attr.Any, attr.ReadOnly()),
	attr.Attribute("ticket_id", attr.Integer, attr.ReadOnly()),
	attr.Attribute("audit_id", attr.Integer, attr.ReadOnly()),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
)

var ticketAuditSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("ticket_id", attr.Integer, attr.ReadOnly()),
	attr.Attribute("author_id", attr.Integer, attr.ReadOnly()),
	attr.Attribute("via", attr.Any, attr.ReadOnly()),
	attr.Attribute("metadata", attr.Any, attr.ReadOnly()),
	attr.Attribute("events", attr.Array, attr.ReadOnly()),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
)

var (
	getTicketComments = &Request{
		Name:   "get_ticket_comments",
		Method: http.MethodGet,
		Path:   "/tickets/{ticket_id}/comments.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.ticketChildren(ticketCommentsTable, "comments", p)
		},
	}
	getTicketAudits = &Request{
		Name:   "get_ticket_audits",
		Method: http.MethodGet,
		Path:   "/tickets/{ticket_id}/audits.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.ticketChildren(ticketAuditsTable, "audits", p)
		},
	}
	getTicketAudit = &Request{
		Name:   "get_ticket_audit",
		Method: http.MethodGet,
		Path:   "/tickets/{ticket_id}/audits/{id}.json",
		Mock:   mockGetTicketAudit,
	}
)

var ticketCommentKind = &Kind{
	Name:   "comments",
	Root:   "comment",
	Schema: ticketCommentSchema,
	List:   ticketScoped(getTicketComments),
}

var ticketAuditKind = &Kind{
	Name:   "audits",
	Root:   "audit",
	Schema: ticketAuditSchema,
	Get:    getTicketAudit,
	List:   ticketScoped(getTicketAudits),
}

func ticketScoped(req *Request) func(Params) (*Request, error) {
	return func(scope Params) (*Request, error) {
		if scope["ticket_id"] == nil {
			return nil, errs.Wrapf(ErrScopeRequired, "%s needs ticket_id", req.Name)
		}

		return req, nil
	}
}

// TicketComment is a comment event of a ticket audit. Comments are created
// through Ticket.Comment and never changed afterwards.
type TicketComment struct {
	*Model
}

func newTicketComment(m *Model) *TicketComment {
	return &TicketComment{Model: m}
}

func (c *Client) ticketComments(ticketID any) *Collection[*TicketComment] {
	return newCollection(c, ticketCommentKind, newTicketComment, Params{"ticket_id": ticketID})
}

func (c *TicketComment) Body() string {
	return c.String("body")
}

func (c *TicketComment) Public() bool {
	return c.Bool("public")
}

func (c *TicketComment) Author() *Association[*User] {
	return newAssociation(c.Model, "author_id", c.client.Users)
}

func (c *TicketComment) Ticket() *Association[*Ticket] {
	return newAssociation(c.Model, "ticket_id", c.client.Tickets)
}

// Audit is the audit that recorded the comment.
func (c *TicketComment) Audit() *Association[*TicketAudit] {
	return newAssociation(c.Model, "audit_id", func() *Collection[*TicketAudit] {
		return c.client.ticketAudits(c.Get("ticket_id"))
	})
}

// TicketAudit records one change of a ticket as a list of events.
type TicketAudit struct {
	*Model
}

func newTicketAudit(m *Model) *TicketAudit {
	return &TicketAudit{Model: m}
}

func (c *Client) ticketAudits(ticketID any) *Collection[*TicketAudit] {
	return newCollection(c, ticketAuditKind, newTicketAudit, Params{"ticket_id": ticketID})
}

func (a *TicketAudit) Ticket() *Association[*Ticket] {
	return newAssociation(a.Model, "ticket_id", a.client.Tickets)
}

// Events returns the comment events of the audit. Other event types are not
// modelled.
func (a *TicketAudit) Events() ([]*TicketComment, error) {
	var out []*TicketComment

	for _, raw := range a.Array("events") {
		event, isMap := raw.(map[string]any)
		if !isMap || event["type"] != "Comment" {
			continue
		}

		m, err := newFromRecord(a.client, ticketCommentKind, event)
		if err != nil {
			return nil, err
		}

		out = append(out, newTicketComment(m))
	}

	return out, nil
}

// addComment records a comment on a ticket in a new audit and returns the
// audit. The comment is the only event of that audit.
func (m *Mock) addComment(ticketID int64, comment mockstore.Record) (mockstore.Record, error) {
	body := str(comment["body"])
	if blank(body) {
		return nil, invalid("comment", "Comment: body cannot be blank")
	}

	author := comment["author_id"]
	if author == nil {
		current, err := m.CurrentUser()
		if err != nil {
			return nil, err
		}

		author = current["id"]
	}

	public := comment["public"]
	if public == nil {
		public = true
	}

	via := map[string]any{"channel": "api"}
	auditID := m.store.NextID(ticketAuditsTable)

	event, err := m.store.Insert(ticketCommentsTable, mockstore.Record{
		"type":        "Comment",
		"body":        body,
		"html_body":   "<p>" + html.EscapeString(body) + "</p>",
		"plain_body":  body,
		"public":      public,
		"author_id":   author,
		"attachments": []any{},
		"via":         via,
		"ticket_id":   ticketID,
		"audit_id":    auditID,
	})
	if err != nil {
		return nil, err
	}

	return m.store.InsertWithID(ticketAuditsTable, auditID, mockstore.Record{
		"ticket_id": ticketID,
		"author_id": author,
		"via":       via,
		"metadata": map[string]any{
			"system": map[string]any{"request_id": uuid.NewString()},
		},
		"events": []any{event},
	})
}

// ticketChildren pages the comments or audits of one ticket.
func (m *Mock) ticketChildren(table, root string, p Params) (*Response, error) {
	ticketID := p["ticket_id"]

	_, err := m.find(ticketsTable, ticketID)
	if err != nil {
		return nil, err
	}

	path := "/tickets/" + str(ticketID) + "/" + root + ".json"

	return m.page(table, path, root, p, nil, mockstore.FieldEquals("ticket_id", ticketID)), nil
}

func mockGetTicketAudit(_ context.Context, m *Mock, p Params) (*Response, error) {
	rec, err := m.find(ticketAuditsTable, p["id"])
	if err != nil {
		return nil, err
	}

	if !mockstore.Equal(rec["ticket_id"], p["ticket_id"]) {
		id, _ := mockstore.ToID(rec["id"])
		return nil, &mockstore.NotFoundError{Kind: ticketAuditsTable, ID: id}
	}

	return reply("audit", rec)
}
