package helpdesk

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const categoriesTable = "help_center_categories"

var categorySchema = attr.NewSchema(
	attr.Identity("id", attr.Integer),
	attr.Attribute("url", attr.String, attr.ReadOnly()),
	attr.Attribute("html_url", attr.String, attr.ReadOnly()),
	attr.Attribute("name", attr.String, attr.Required()),
	attr.Attribute("locale", attr.String, attr.Required()),
	attr.Attribute("description", attr.String),
	attr.Attribute("position", attr.Integer),
	attr.Attribute("outdated", attr.Boolean, attr.ReadOnly()),
	attr.Attribute("source_locale", attr.String, attr.ReadOnly()),
	attr.Attribute("translation_ids", attr.Array, attr.ReadOnly()),
	attr.Attribute("created_at", attr.Time, attr.ReadOnly()),
	attr.Attribute("updated_at", attr.Time, attr.ReadOnly()),
)

var categoryFields = []string{"name", "locale", "description", "position"}

var (
	createCategory = &Request{
		Name:   "create_help_center_category",
		Method: http.MethodPost,
		Path:   "/help_center/categories.json",
		Body:   wrapBody("category"),
		Mock:   mockCreateCategory,
	}
	getCategory = &Request{
		Name:   "get_help_center_category",
		Method: http.MethodGet,
		Path:   "/help_center/categories/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			rec, err := m.find(categoriesTable, p["id"])
			if err != nil {
				return nil, err
			}

			return reply("category", rec)
		},
	}
	updateCategory = &Request{
		Name:   "update_help_center_category",
		Method: http.MethodPut,
		Path:   "/help_center/categories/{id}.json",
		Body:   wrapBody("category"),
		Mock:   mockUpdateCategory,
	}
	destroyCategory = &Request{
		Name:   "destroy_help_center_category",
		Method: http.MethodDelete,
		Path:   "/help_center/categories/{id}.json",
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.remove(categoriesTable, p)
		},
	}
	getCategories = &Request{
		Name:   "get_help_center_categories",
		Method: http.MethodGet,
		Path:   "/help_center/categories.json",
		Paged:  true,
		Mock: func(_ context.Context, m *Mock, p Params) (*Response, error) {
			return m.page(categoriesTable, "/help_center/categories.json", "categories", p, nil, nil), nil
		},
	}
)

var categoryKind = &Kind{
	Name:    "categories",
	Root:    "category",
	Schema:  categorySchema,
	Create:  createCategory,
	Get:     getCategory,
	Update:  updateCategory,
	Destroy: destroyCategory,
	List: func(Params) (*Request, error) {
		return getCategories, nil
	},
}

// Category is a top level help center section of articles.
type Category struct {
	*Model
}

func newCategory(m *Model) *Category {
	return &Category{Model: m}
}

func (c *Client) Categories() *Collection[*Category] {
	return newCollection(c, categoryKind, newCategory, nil)
}

func (c *Category) Name() string {
	return c.String("name")
}

func (c *Category) Locale() string {
	return c.String("locale")
}

func mockCreateCategory(_ context.Context, m *Mock, p Params) (*Response, error) {
	params := payload(p, "category")

	if blank(params["name"]) {
		return nil, invalid("name", "Name: cannot be blank")
	}

	if blank(params["locale"]) {
		return nil, invalid("locale", "Locale: cannot be blank")
	}

	id := m.store.NextID(categoriesTable)
	locale := str(params["locale"])

	record := mockstore.Record{
		"position":        0,
		"outdated":        false,
		"source_locale":   locale,
		"translation_ids": []any{},
		"url":             m.store.URL(fmt.Sprintf("/help_center/%s/categories/%d.json", locale, id)),
		"html_url":        helpCenterURL(m.store.URL(""), locale, id),
	}

	for k, v := range slice(params, categoryFields...) {
		record[k] = v
	}

	rec, err := m.store.InsertWithID(categoriesTable, id, record)
	if err != nil {
		return nil, err
	}

	return replyCreated("category", rec)
}

func mockUpdateCategory(_ context.Context, m *Mock, p Params) (*Response, error) {
	id, err := identity(categoriesTable, p)
	if err != nil {
		return nil, err
	}

	params := payload(p, "category")

	for _, name := range []string{"name", "locale"} {
		if v, set := params[name]; set && blank(v) {
			return nil, invalid(name, strings.ToUpper(name[:1])+name[1:]+": cannot be blank")
		}
	}

	rec, err := m.store.Update(categoriesTable, id, slice(params, categoryFields...))
	if err != nil {
		return nil, err
	}

	return reply("category", rec)
}

// helpCenterURL renders the public page of a category from the API base
// URL, e.g. https://example.zendesk.com/hc/en-us/categories/3.
func helpCenterURL(apiBase, locale string, id int64) string {
	site := strings.TrimSuffix(apiBase, "/api/v2")

	return fmt.Sprintf("%s/hc/%s/categories/%d", site, strings.ToLower(locale), id)
}
