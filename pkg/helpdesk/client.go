// Package helpdesk is a client for a Zendesk style helpdesk REST API.
//
// Every operation is described once as a Request and executed through a
// Strategy: Real sends it over HTTP, Mock simulates it against an in-process
// mockstore.Store. Resources are loaded into models backed by a declared
// attribute schema and listed through paged, scoped Collections.
//
//	client := helpdesk.New(helpdesk.NewMock(nil, "agent@example.com"))
//	ticket, err := client.Tickets().Create(ctx, attr.Record{
//		"subject":     "Printer on fire",
//		"description": "Third floor",
//	})
package helpdesk

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/transport"
)

// Client is safe for concurrent use. The collections and models it hands
// out are not.
type Client struct {
	strategy Strategy
	logger   hclog.Logger
	perPage  int
}

type Option func(*Client)

func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPerPage sets the page size requested by collections that are not
// given an explicit per_page.
func WithPerPage(perPage int) Option {
	return func(c *Client) {
		c.perPage = perPage
	}
}

func New(strategy Strategy, opts ...Option) *Client {
	c := &Client{
		strategy: strategy,
		logger:   hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewFromConfig picks the strategy from cfg.Mock.
func NewFromConfig(cfg *config.Config, logger hclog.Logger) (*Client, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	opts := []Option{WithLogger(logger), WithPerPage(cfg.PerPage)}

	if cfg.Mock {
		store := mockstore.New(mockstore.WithLogger(logger.Named("mockstore")))
		return New(NewMock(store, cfg.Username), opts...), nil
	}

	t, err := transport.NewFromConfig(cfg, logger.Named("transport"))
	if err != nil {
		return nil, err
	}

	return New(NewReal(t), opts...), nil
}

func (c *Client) Strategy() Strategy {
	return c.strategy
}

// Mock returns the Mock strategy when the client is mocking.
func (c *Client) Mock() (*Mock, bool) {
	m, ok := c.strategy.(*Mock)
	return m, ok
}

func (c *Client) Mocking() bool {
	_, ok := c.Mock()
	return ok
}

// Execute runs one request through the configured strategy.
func (c *Client) Execute(ctx context.Context, req *Request, p Params) (*Response, error) {
	if req == nil {
		return nil, ErrUnsupported
	}

	start := time.Now()

	resp, err := c.strategy.Execute(ctx, req, p)
	if err != nil {
		c.logger.Debug("helpdesk request failed", "request", req.Name, "error", err)
		return nil, err
	}

	c.logger.Debug("helpdesk request", "request", req.Name, "method", req.Method,
		"status", resp.Status, "duration", time.Since(start))

	return resp, nil
}
