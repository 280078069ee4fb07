// Package errors defines the error taxonomy shared by the CLI and HTTP server.
//
// Domain packages under pkg/ return their own sentinels (unknown flow, invalid
// job id, store unavailable). Classify folds those into one of the kinds below
// so callers branch on a single value instead of inspecting each package.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/3leaps/jobscope/pkg/jobflow"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

// Kind identifies an error category. Values double as envelope codes.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindNotFound           Kind = "NOT_FOUND"
	KindStoreUnavailable   Kind = "STORE_UNAVAILABLE"
	KindExternalService    Kind = "EXTERNAL_SERVICE_UNAVAILABLE"
	KindInternal           Kind = "INTERNAL_ERROR"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindMethodNotAllowed   Kind = "METHOD_NOT_ALLOWED"
	KindRequestTimeout     Kind = "REQUEST_TIMEOUT"
	KindConfigurationError Kind = "CONFIGURATION_ERROR"
)

// Error is a categorized error with a client-safe message.
//
// Message is safe to show to API callers. Err carries the detail that is only
// logged server-side.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so sentinels below match any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrInternal         = &Error{Kind: KindInternal}
)

func NewInvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewExternalServiceError reports a dependency outside this process as down.
func NewExternalServiceError(message string) *Error {
	return &Error{Kind: KindExternalService, Message: message}
}

// NewConfigurationError reports unusable configuration.
func NewConfigurationError(err error, message string) *Error {
	return &Error{Kind: KindConfigurationError, Message: message, Err: err}
}

// WrapStore marks err as a record-store failure. Nil passes through.
func WrapStore(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStoreUnavailable, Message: message, Err: err}
}

// WrapInternal marks err as an unexpected internal failure. Nil passes through.
func WrapInternal(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Classify maps any error onto the taxonomy.
//
// Already-categorized errors keep their kind. Domain sentinels are folded in;
// everything else is treated as a store failure because every read path in
// this service ends at the record store.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	switch {
	case stderrors.Is(err, jobstatus.ErrInvalidJobID),
		stderrors.Is(err, jobstatus.ErrUnknownStatus):
		return &Error{Kind: KindInvalidInput, Message: err.Error(), Err: err}
	case stderrors.Is(err, jobflow.ErrUnknownFlow),
		stderrors.Is(err, jobstore.ErrNoRows):
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindRequestTimeout, Message: "request timed out", Err: err}
	default:
		return &Error{Kind: KindStoreUnavailable, Message: "record store unavailable", Err: err}
	}
}

// KindOf returns the kind of err after classification, or "" for nil.
func KindOf(err error) Kind {
	if c := Classify(err); c != nil {
		return c.Kind
	}
	return ""
}

// HTTPStatus is the response status for a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindRequestTimeout:
		return http.StatusGatewayTimeout
	case KindExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
