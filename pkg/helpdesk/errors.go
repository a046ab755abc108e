package helpdesk

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/transport"
)

var (
	ErrRequiredAttribute = errors.New("required attribute missing")
	ErrValidation        = errors.New("record validation failed")
	ErrDestroyed         = errors.New("resource has been destroyed")
	ErrNotFound          = errors.New("resource not found")
	ErrNoMock            = errors.New("request has no mock implementation")
	ErrScopeRequired     = errors.New("collection requires a scope")
	ErrMissingParam      = errors.New("request parameter missing")
	ErrUnexpectedBody    = errors.New("unexpected response body")
	ErrUnsupported       = errors.New("operation not supported by this resource")
)

// FieldError is one failed validation. Message is rendered the way the
// service renders it, for example "Description: cannot be blank".
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when the service (or the mock) rejects a
// create or update. Remote is set when it came from an HTTP 422.
type ValidationError struct {
	Errors []FieldError
	Remote error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Message
	}

	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Remote
}

// Field returns the messages reported for one field.
func (e *ValidationError) Field(name string) []string {
	var out []string

	for _, fe := range e.Errors {
		if fe.Field == name {
			out = append(out, fe.Message)
		}
	}

	return out
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// RequiredAttributeError is raised locally, before any request, when a new
// resource lacks attributes it cannot be created without.
type RequiredAttributeError struct {
	Kind       string
	Attributes []string
}

func (e *RequiredAttributeError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Kind, strings.Join(e.Attributes, ", "))
}

func (e *RequiredAttributeError) Is(target error) bool {
	return target == ErrRequiredAttribute
}

// MissingIdentityError is raised when an operation needs a persisted resource.
type MissingIdentityError struct {
	Kind string
}

func (e *MissingIdentityError) Error() string {
	return e.Kind + ": identity is required"
}

func (e *MissingIdentityError) Is(target error) bool {
	return target == ErrRequiredAttribute
}

// IsNotFound reports whether err means the addressed resource does not exist,
// whichever strategy produced it.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, mockstore.ErrNotFound) ||
		errors.Is(err, transport.ErrNotFound)
}

// validationFromRemote turns a 422 error document into a ValidationError:
//
//	{"error":"RecordInvalid","details":{"name":[{"description":"Name: cannot be blank"}]}}
func validationFromRemote(remote *transport.RemoteError) *ValidationError {
	verr := &ValidationError{Remote: remote}

	details, _ := remote.Body["details"].(map[string]any)

	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	for _, field := range fields {
		entries, _ := details[field].([]any)
		for _, entry := range entries {
			m, _ := entry.(map[string]any)

			msg, _ := m["description"].(string)
			if msg == "" {
				msg = fmt.Sprint(m["error"])
			}

			verr.Errors = append(verr.Errors, FieldError{Field: field, Message: msg})
		}
	}

	if len(verr.Errors) == 0 {
		msg, _ := remote.Body["description"].(string)
		if msg == "" {
			msg = remote.Raw
		}

		verr.Errors = []FieldError{{Field: "base", Message: msg}}
	}

	return verr
}

// Document renders the error in the service's 422 format.
func (e *ValidationError) Document() map[string]any {
	details := make(map[string]any)

	for _, fe := range e.Errors {
		entries, _ := details[fe.Field].([]any)
		details[fe.Field] = append(entries, map[string]any{
			"description": fe.Message,
			"error":       "InvalidValue",
		})
	}

	return map[string]any{
		"error":       "RecordInvalid",
		"description": "Record validation errors",
		"details":     details,
	}
}
