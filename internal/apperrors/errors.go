package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrExternalService = errors.New("external service error")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// Refinements of the kinds above.
var (
	ErrEmptyContent      = fmt.Errorf("empty content: %w", ErrValidation)
	ErrUnsupportedFormat = fmt.Errorf("unsupported format: %w", ErrValidation)
	ErrEmbeddingService  = fmt.Errorf("embedding service: %w", ErrExternalService)
	ErrTransient         = fmt.Errorf("transient: %w", ErrExternalService)
)

// Error carries a kind, the failing operation and the underlying cause.
// Message is internal detail and is never shown to API clients.
type Error struct {
	Kind      error
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Operation
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if msg == "" && e.Kind != nil {
		return e.Kind.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New creates an Error of the given kind.
func New(kind error, operation, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func Validation(operation, message string) error {
	return New(ErrValidation, operation, message, nil)
}

func NotFound(operation, message string) error {
	return New(ErrNotFound, operation, message, nil)
}

func Conflict(operation, message string) error {
	return New(ErrConflict, operation, message, nil)
}

func PayloadTooLarge(operation, message string) error {
	return New(ErrPayloadTooLarge, operation, message, nil)
}

func ExternalService(operation string, err error) error {
	return New(ErrExternalService, operation, "", err)
}

func InvalidFilter(operation, message string) error {
	return New(ErrInvalidFilter, operation, message, nil)
}

// HTTPStatus maps an error to the status code returned to API clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a generic message that is safe to show to clients.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyContent):
		return "The document contains no extractable text"
	case errors.Is(err, ErrUnsupportedFormat):
		return "Unsupported document format"
	case errors.Is(err, ErrInvalidFilter):
		return "Invalid search filter"
	case errors.Is(err, ErrValidation):
		return "Invalid request"
	case errors.Is(err, ErrNotFound):
		return "Resource not found"
	case errors.Is(err, ErrConflict):
		return "Request conflicts with the current state of the resource"
	case errors.Is(err, ErrPayloadTooLarge):
		return "Attached documents are too large to process"
	case errors.Is(err, ErrExternalService):
		return "An upstream service is unavailable, please try again later"
	default:
		return "Internal server error"
	}
}
