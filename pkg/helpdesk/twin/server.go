// Package twin serves the helpdesk REST API over HTTP from a Mock, so the
// Real strategy and other HTTP clients can run against the simulation.
//
// Every helpdesk.Request is mounted under /api/v2 at its own method and path.
// The admin routes manage the simulated data:
//
//	POST /admin/reset   empty the store
//	GET  /admin/state   dump every table
//	POST /admin/state   replace every table
package twin

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
)

const APIPrefix = "/api/v2"

const maxBodyBytes = 1 << 20

// Server answers helpdesk API calls from a Mock.
type Server struct {
	mock     *helpdesk.Mock
	logger   hclog.Logger
	router   chi.Router
	username string
	password string
}

type Option func(*Server)

func WithLogger(logger hclog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBasicAuth rejects API calls that do not carry these credentials.
// Admin routes stay open.
func WithBasicAuth(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

func New(mock *helpdesk.Mock, opts ...Option) *Server {
	s := &Server{
		mock:   mock,
		logger: hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(s.authenticate)

		for _, req := range helpdesk.Requests() {
			api.Method(req.Method, req.Path, s.handle(req))
		}
	})

	r.Post("/admin/reset", s.reset)
	r.Get("/admin/state", s.state)
	r.Post("/admin/state", s.loadState)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, notFoundDocument)
	})

	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

var notFoundDocument = map[string]any{
	"error":       "RecordNotFound",
	"description": "Not found",
}

// handle turns the query, the path placeholders and the JSON body into
// request params, in that order of precedence, and runs the mock.
func (s *Server) handle(req *helpdesk.Request) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := helpdesk.Params{}

		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				p[k] = v[0]
			}
		}

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				p[key] = rctx.URLParams.Values[i]
			}
		}

		body, err := decodeBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":       "InvalidJSON",
				"description": err.Error(),
			})

			return
		}

		for k, v := range body {
			p[k] = v
		}

		resp, err := s.mock.Execute(r.Context(), req, p)
		if err != nil {
			s.fail(w, req, err)
			return
		}

		if resp.Status == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, resp.Status, resp.Body)
	}
}

func (s *Server) fail(w http.ResponseWriter, req *helpdesk.Request, err error) {
	var verr *helpdesk.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, verr.Document())
	case helpdesk.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, notFoundDocument)
	case errors.Is(err, helpdesk.ErrMissingParam), errors.Is(err, helpdesk.ErrScopeRequired):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "InvalidParams",
			"description": err.Error(),
		})
	default:
		s.logger.Error("mock request failed", "request", req.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":       "InternalError",
			"description": err.Error(),
		})
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.username == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != s.username || pass != s.password {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Couldn't authenticate you"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("twin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	s.mock.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mock.Store().Snapshot())
}

func (s *Server) loadState(w http.ResponseWriter, r *http.Request) {
	var snapshot map[string][]mockstore.Record

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()

	err := dec.Decode(&snapshot)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "InvalidJSON",
			"description": err.Error(),
		})

		return
	}

	err = s.mock.Store().LoadSnapshot(snapshot)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "InvalidState",
			"description": err.Error(),
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "loaded"})
}

func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any

	err = dec.Decode(&body)
	if err != nil {
		return nil, err
	}

	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
