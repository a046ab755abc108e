package helpdesk

import (
	"context"
	"net/http"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const ticketFieldsTable = "ticket_fields"

var ticketFieldSchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("type", attr.String, attr.Required()),
	attr.Attribute("title", attr.String, attr.Required()),
	attr.Attribute("description", attr.String),
	attr.Attribute("position", attr.Integer),
	attr.Attribute("active", attr.Boolean),
	attr.Attribute("required", attr.Boolean),
	attr.Attribute("collapsed_for_agents", attr.Boolean),
	attr.Attribute("regexp_for_validation", attr.String),
	attr.Attribute("title_in_portal", attr.String),
	attr.Attribute("visible_in_portal", attr.Boolean),
	attr.Attribute("editable_in_portal", attr.Boolean),
	attr.Attribute("required_in_portal", attr.Boolean),
	attr.Attribute("tag", attr.String),
	attr.Attribute("custom_field_options", attr.Array),
	attr.Attribute("agent_description", attr.String),
	attr.Attribute("removable", attr.Boolean, attr.ReadOnly()),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

var ticketFieldFields = []string{
	"type", "title", "description", "position", "active", "required",
	"collapsed_for_agents", "regexp_for_validation", "title_in_portal",
	"visible_in_portal", "editable_in_portal", "required_in_portal", "tag",
	"custom_field_options", "agent_description",
}

var (
	createTicketField = &Request{
		Name:   "create_ticket_field",
		Method: http.MethodPost,
		Path:   "/ticket_fields.json",
		Body:   wrapBody("ticket_field"),
		Mock:   mockCreateTicketField,
	}
	getTicketField = &Request{
		Name:   "get_ticket_field",
		Method: http.MethodGet,
		Path:   "/ticket_fields/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(ticketFieldsTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("ticket_field", rec)
		},
	}
	updateTicketField = &Request{
		Name:   "update_ticket_field",
		Method: http.MethodPut,
		Path:   "/ticket_fields/{id}.json",
		Body:   wrapBody("ticket_field"),
		Mock:   mockUpdateTicketField,
	}
	destroyTicketField = &Request{
		Name:   "destroy_ticket_field",
		Method: http.MethodDelete,
		Path:   "/ticket_fields/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.remove(ticketFieldsTable, p)
		},
	}
	getTicketFields = &Request{
		Name:   "get_ticket_fields",
		Method: http.MethodGet,
		Path:   "/ticket_fields.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(ticketFieldsTable, "/ticket_fields.json", "ticket_fields", p, nil, nil), nil
		},
	}
)

var ticketFieldKind = &Kind{
	Name:    "ticket_fields",
	Root:    "ticket_field",
	Schema:  ticketFieldSchema,
	Create:  createTicketField,
	Get:     getTicketField,
	Update:  updateTicketField,
	Destroy: destroyTicketField,
	List: func(Params) (*Request, error) {
		return getTicketFields, nil
	},
}

// TicketField is a custom field every ticket carries a value for.
type TicketField struct {
	*Model
}

func newTicketField(m *Model) *TicketField {
	return &TicketField{Model: m}
}

func (c *Client) TicketFields() *Collection[*TicketField] {
	return newCollection(c, ticketFieldKind, newTicketField, nil)
}

func (f *TicketField) Title() string {
	return f.String("title")
}

func (f *TicketField) Type() string {
	return f.String("type")
}

func mockCreateTicketField(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "ticket_field")

	if blank(params["type"]) {
		return nil, invalid("type", "Type: cannot be blank")
	}

	if blank(params["title"]) {
		return nil, invalid("title", "Title: cannot be blank")
	}

	record := mockstore.Record{
		"active":                true,
		"collapsed_for_agents":  false,
		"description":           "",
		"editable_in_portal":    false,
		"position":              9999,
		"regexp_for_validation": "",
		"removable":             true,
		"required":              false,
		"required_in_portal":    false,
		"tag":                   "",
		"title_in_portal":       params["title"],
		"visible_in_portal":     false,
		"agent_description":     "",
	}

	for k, v := range slice(params, ticketFieldFields...) {
		record[k] = v
	}

	rec, err := m.insert(ticketFieldsTable, "/ticket_fields/%d.json", record)
	if err != nil {
		return nil, err
	}

	return replyCreated("ticket_field", rec)
}

func mockUpdateTicketField(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(ticketFieldsTable, p)
	if err != nil {
		return nil, err
	}

	params := payload(p, "ticket_field")

	if title, set := params["title"]; set && blank(title) {
		return nil, invalid("title", "Title: cannot be blank")
	}

	rec, err := m.store.Update(ticketFieldsTable, id, slice(params, ticketFieldFields...))
	if err != nil {
		return nil, err
	}

	return reply("ticket_field", rec)
}
