package service

import (
	"errors"
	"sort"
	"strings"
)

// Errors returned by the services. The HTTP and gRPC layers map them to status codes.
var (
	ErrUnauthenticated    = errors.New("service: authentication required")
	ErrForbidden          = errors.New("service: you do not have permission to perform this action")
	ErrNotFound           = errors.New("service: not found")
	ErrPageOutOfRange     = errors.New("service: invalid page")
	ErrInvalidCredentials = errors.New("service: invalid credentials")
)

// InvalidCredentialsMessage is shown to the user for ErrInvalidCredentials.
const InvalidCredentialsMessage = "Please enter a correct username and password. Note that both fields may be case-sensitive."

// ValidationError collects field-level and form-level messages for one submission.
type ValidationError struct {
	Fields   map[string][]string `json:"fields,omitempty"`
	NonField []string            `json:"non_field_errors,omitempty"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+1)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	if len(e.NonField) > 0 {
		parts = append(parts, strings.Join(e.NonField, " "))
	}
	return "service: validation failed: " + strings.Join(parts, "; ")
}

// Add appends msg to field. An empty field records a form-level error.
func (e *ValidationError) Add(field, msg string) {
	if field == "" {
		e.NonField = append(e.NonField, msg)
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0 && len(e.NonField) == 0
}

// orNil returns e as an error, or nil when nothing was recorded.
func (e *ValidationError) orNil() error {
	if e.empty() {
		return nil
	}
	return e
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
