package helpdesk

import (
	"context"
	"errors"
	"net/http"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/transport"
)

// Real executes requests over HTTP. It performs exactly one call per request
// and never retries.
type Real struct {
	transport *transport.Client
}

func NewReal(t *transport.Client) *Real {
	return &Real{transport: t}
}

func (r *Real) Execute(ctx context.Context, req *Request, p Params) (*Response, error) {
	path, err := req.Expand(p)
	if err != nil {
		return nil, err
	}

	var body any
	if req.Body != nil {
		body = req.Body(p)
	}

	resp, err := r.transport.Do(ctx, req.Method, path, req.QueryValues(p), body)
	if err != nil {
		var remote *transport.RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusUnprocessableEntity {
			return nil, validationFromRemote(remote)
		}

		return nil, err
	}

	return &Response{
		Status: resp.Status,
		Body:   resp.Body,
		Header: resp.Header,
	}, nil
}
