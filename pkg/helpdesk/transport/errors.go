package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthNotImplemented       = errors.New("API Auth not implemented")
	ErrHost                     = errors.New("failed to load the host")
	ErrUsername                 = errors.New("failed to load the username")
	ErrPassword                 = errors.New("failed to load the password")
	ErrParsingClientCertificate = errors.New("failed to parse client certificate x509 pair")
	ErrBuildRequest             = errors.New("failed to build request")
	ErrDoRequest                = errors.New("failed to make request")
	ErrDecodeResponse           = errors.New("failed to decode response")
	ErrRemote                   = errors.New("helpdesk API returned an error")
	ErrNotFound                 = errors.New("helpdesk resource not found")
)

// RemoteError is a non-2xx answer from the service. Body holds the decoded
// JSON error document when there is one, Raw the body as received.
type RemoteError struct {
	Method string
	URL    string
	Status int
	Body   map[string]any
	Raw    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemote:
		return true
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	default:
		return false
	}
}
