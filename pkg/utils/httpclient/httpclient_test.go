package httpclient_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/httpclient"
)

func TestDecodeResponse(t *testing.T) {
	type Response struct {
		ID      json.Number `json:"id"`
		Message string      `json:"message"`
	}

	tests := []struct {
		name           string
		statusCode     int
		responseBody   string
		expectedStatus []int
		expectedResult *Response
		expectError    bool
		errorContains  string
	}{
		{
			name:           "Success",
			statusCode:     http.StatusOK,
			responseBody:   `{"id": 11111111111199, "message": "success"}`,
			expectedStatus: []int{http.StatusOK},
			expectedResult: &Response{ID: "11111111111199", Message: "success"},
		},
		{
			name:           "One of several statuses",
			statusCode:     http.StatusCreated,
			responseBody:   `{"message": "created"}`,
			expectedStatus: []int{http.StatusOK, http.StatusCreated},
			expectedResult: &Response{Message: "created"},
		},
		{
			name:           "Empty body",
			statusCode:     http.StatusNoContent,
			expectedStatus: []int{http.StatusNoContent},
			expectedResult: &Response{},
		},
		{
			name:           "Unexpected Status Code",
			statusCode:     http.StatusInternalServerError,
			responseBody:   `{"message": "error"}`,
			expectedStatus: []int{http.StatusOK},
			expectError:    true,
			errorContains:  "unexpected status code",
		},
		{
			name:           "Invalid JSON",
			statusCode:     http.StatusOK,
			responseBody:   `invalid-json`,
			expectedStatus: []int{http.StatusOK},
			expectError:    true,
			errorContains:  "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)

				if tt.responseBody == "" {
					return
				}

				_, err := w.Write([]byte(tt.responseBody))
				assert.NoError(t, err)
			}))
			defer server.Close()

			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)

			defer resp.Body.Close()

			result, err := httpclient.DecodeResponse[Response](t.Context(), "TestAPI", resp, tt.expectedStatus...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedResult, result)
			}
		})
	}
}
