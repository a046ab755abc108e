package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
)

var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
)

// DecodeResponse decodes the HTTP response body into the provided type T.
// Numbers are kept as json.Number so large identities survive the round trip.
// An empty body yields the zero T.
func DecodeResponse[T any](
	ctx context.Context,
	apiName string,
	resp *http.Response,
	expectedStatus ...int,
) (*T, error) {
	var (
		respErr error
		result  T
	)

	if slices.Contains(expectedStatus, resp.StatusCode) {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()

		respErr = dec.Decode(&result)
		if errors.Is(respErr, io.EOF) {
			respErr = nil
		}
	} else {
		respErr = fmt.Errorf("%w %s", ErrUnexpectedStatusCode, resp.Status)
	}

	if respErr != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", apiName, respErr)
	}

	return &result, nil
}
