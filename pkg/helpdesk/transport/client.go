// Package transport performs the HTTP calls of the Real execution strategy.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/httpclient"
)

const (
	ApplicationJSON = "application/json"

	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"

	apiName      = "helpdesk"
	maxErrorBody = 1 << 20
)

var successStatuses = []int{
	http.StatusOK,
	http.StatusCreated,
	http.StatusAccepted,
	http.StatusNoContent,
}

// Response is a decoded 2xx answer.
type Response struct {
	Status int
	Header http.Header
	Body   map[string]any
}

type Client struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string

	basicAuth *basicAuth
}

type basicAuth struct {
	username string
	password string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBasicAuth authenticates every request. For API tokens the username is
// "<email>/token" and the password the token itself.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.basicAuth = &basicAuth{username: username, password: password}
	}
}

// New creates a client for the API rooted at baseURL, for example
// https://acme.zendesk.com/api/v2.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		logger:     hclog.NewNullLogger(),
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewFromConfig resolves host and credentials from their configured sources.
func NewFromConfig(cfg *config.Config, logger hclog.Logger) (*Client, error) {
	host, err := cfg.ResolveHost()
	if err != nil {
		return nil, errs.Wrap(ErrHost, err)
	}

	switch cfg.Auth.Type {
	case commoncfg.BasicSecretType:
		username, err := commoncfg.LoadValueFromSourceRef(cfg.Auth.Basic.Username)
		if err != nil {
			return nil, errs.Wrap(ErrUsername, err)
		}

		password, err := commoncfg.LoadValueFromSourceRef(cfg.Auth.Basic.Password)
		if err != nil {
			return nil, errs.Wrap(ErrPassword, err)
		}

		return New(host,
			WithLogger(logger),
			WithBasicAuth(string(username), string(password)),
		), nil
	case commoncfg.MTLSSecretType:
		mtls, err := commoncfg.LoadMTLSConfig(&cfg.Auth.MTLS)
		if err != nil {
			return nil, errs.Wrap(ErrParsingClientCertificate, err)
		}

		return New(host,
			WithLogger(logger),
			WithHTTPClient(&http.Client{
				Transport: &http.Transport{
					TLSClientConfig: mtls,
				},
			}),
		), nil
	default:
		return nil, ErrAuthNotImplemented
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends one request. path is either relative to the base URL or an
// absolute URL such as a next_page cursor. A non-nil body is sent as JSON.
// Non-2xx answers are returned as *RemoteError.
func (c *Client) Do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, errs.Wrap(ErrBuildRequest, err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, errs.Wrap(ErrDoRequest, err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.Error("failed to close helpdesk response body", "error", err)
		}
	}()

	c.logger.Debug("helpdesk request", "method", method, "path", req.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, remoteError(req, resp)
	}

	decoded, err := httpclient.DecodeResponse[map[string]any](ctx, apiName, resp, successStatuses...)
	if err != nil {
		return nil, errs.Wrap(ErrDecodeResponse, err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   *decoded,
	}, nil
}

func (c *Client) newRequest(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
) (*http.Request, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q[k] = v
		}

		req.URL.RawQuery = q.Encode()
	}

	if body != nil {
		req.Header.Set(HeaderContentType, ApplicationJSON)
	}

	return req, nil
}

func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set(HeaderAccept, ApplicationJSON)

	if c.basicAuth != nil {
		basicCreds := []byte(c.basicAuth.username + ":" + c.basicAuth.password)
		req.Header.Set(HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString(basicCreds))
	}

	return c.httpClient.Do(req)
}

func remoteError(req *http.Request, resp *http.Response) *RemoteError {
	remote := &RemoteError{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return remote
	}

	remote.Raw = string(raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if dec.Decode(&body) == nil {
		remote.Body = body
	}

	return remote
}
