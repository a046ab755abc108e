package transport_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/transport"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

func TestDoGet(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v2/tickets/11111111111199.json", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, transport.ApplicationJSON, r.Header.Get(transport.HeaderAccept))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "agent@acme.test/token", user)
		assert.Equal(t, "secret", pass)

		_, err := w.Write([]byte(`{"ticket":{"id":11111111111199,"subject":"hi"}}`))
		assert.NoError(t, err)
	})

	client := transport.New(server.URL+"/api/v2/", transport.WithBasicAuth("agent@acme.test/token", "secret"))

	resp, err := client.Do(t.Context(), http.MethodGet, "/tickets/11111111111199.json", url.Values{"page": {"2"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)

	ticket, ok := resp.Body["ticket"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("11111111111199"), ticket["id"])
	assert.Equal(t, "hi", ticket["subject"])
}

func TestDoPostSendsJSON(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transport.ApplicationJSON, r.Header.Get(transport.HeaderContentType))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"group":{"name":"Support"}}`, string(raw))

		w.WriteHeader(http.StatusCreated)
		_, err = w.Write([]byte(`{"group":{"id":1,"name":"Support"}}`))
		assert.NoError(t, err)
	})

	client := transport.New(server.URL)

	resp, err := client.Do(t.Context(), http.MethodPost, "/groups.json", nil,
		map[string]any{"group": map[string]any{"name": "Support"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestDoNoContent(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := transport.New(server.URL).Do(t.Context(), http.MethodDelete, "/tickets/1.json", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Empty(t, resp.Body)
}

func TestDoAbsoluteURL(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/users.json", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))

		_, err := w.Write([]byte(`{"users":[],"next_page":null}`))
		assert.NoError(t, err)
	})

	client := transport.New("https://unused.invalid/api/v2")

	_, err := client.Do(t.Context(), http.MethodGet, server.URL+"/api/v2/users.json?page=3&per_page=10", nil, nil)
	require.NoError(t, err)
}

func TestDoRemoteErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		notFound    bool
		expectField string
	}{
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"error":"RecordNotFound","description":"Not found"}`,
			notFound: true,
		},
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			body: `{"error":"RecordInvalid","description":"Record validation errors",` +
				`"details":{"name":[{"description":"Name: cannot be blank","error":"BlankValue"}]}}`,
			expectField: "name",
		},
		{
			name:   "not json",
			status: http.StatusBadGateway,
			body:   "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, err := w.Write([]byte(tt.body))
				assert.NoError(t, err)
			})

			_, err := transport.New(server.URL).Do(t.Context(), http.MethodGet, "/x.json", nil, nil)
			require.ErrorIs(t, err, transport.ErrRemote)
			assert.Equal(t, tt.notFound, errors.Is(err, transport.ErrNotFound))

			var remote *transport.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.status, remote.Status)
			assert.Equal(t, tt.body, remote.Raw)

			if tt.expectField != "" {
				details, ok := remote.Body["details"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, details, tt.expectField)
			}
		})
	}
}

func TestDoUnreachable(t *testing.T) {
	_, err := transport.New("badurl").Do(t.Context(), http.MethodGet, "/x.json", nil, nil)
	assert.ErrorIs(t, err, transport.ErrDoRequest)
}

func TestNewFromConfig(t *testing.T) {
	host := commoncfg.SourceRef{
		Source: commoncfg.EmbeddedSourceValue,
		Value:  `"https://acme.zendesk.com/api/v2"`,
	}

	tests := []struct {
		name        string
		cfg         *config.Config
		expectError error
	}{
		{
			name: "basic auth",
			cfg: &config.Config{
				Host: host,
				Auth: commoncfg.SecretRef{
					Type: commoncfg.BasicSecretType,
					Basic: commoncfg.BasicAuth{
						Username: commoncfg.SourceRef{Source: commoncfg.EmbeddedSourceValue, Value: "agent"},
						Password: commoncfg.SourceRef{Source: commoncfg.EmbeddedSourceValue, Value: "secret"},
					},
				},
			},
		},
		{
			name:        "no auth type",
			cfg:         &config.Config{Host: host},
			expectError: transport.ErrAuthNotImplemented,
		},
		{
			name:        "no host",
			cfg:         &config.Config{},
			expectError: transport.ErrHost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := transport.NewFromConfig(tt.cfg, nil)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, client)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "https://acme.zendesk.com/api/v2", client.BaseURL())
		})
	}
}
