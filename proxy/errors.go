package proxy

import (
	"errors"
	"fmt"

	"github.com/ghettovoice/sipproxy/internal/errorutil"
)

// Common errors.
const (
	ErrInvalidArgument       = errorutil.ErrInvalidArgument
	ErrProxyClosed     Error = "proxy closed"
	ErrBranchNotFound  Error = "branch not found"
)

// Request processing errors.
// Each of them maps to one final response, see [ResponseForError].
const (
	ErrMalformedRequest  Error = "malformed request"
	ErrUnauthenticated   Error = "unauthenticated"
	ErrAuthRejected      Error = "credentials rejected"
	ErrStaleNonce        Error = "stale nonce"
	ErrNoRoute           Error = "no route"
	ErrLoopDetected      Error = "loop detected"
	ErrTooManyHops       Error = "too many hops"
	ErrTimeout           Error = "request timed out"
	ErrTransportFailure  Error = "transport failure"
	ErrAORNotFound       Error = "address of record not found"
	ErrUnsupportedScheme Error = "unsupported URI scheme"
)

// Error represents a proxy error.
// See [errorutil.Error].
type Error = errorutil.Error

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}

// RequestError is an error resolved into a specific final response.
type RequestError struct {
	Status ResponseStatus
	Reason string
	Err    error
}

// NewRequestError creates a [RequestError] with the given status.
// Reason may be empty, the default reason phrase of the status is used then.
func NewRequestError(sts ResponseStatus, reason string, err error) *RequestError {
	return &RequestError{Status: sts, Reason: reason, Err: err}
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("request rejected with %v", e.Status)
	}
	return fmt.Sprintf("request rejected with %v: %v", e.Status, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

var errStatuses = []struct {
	err error
	sts ResponseStatus
}{
	{ErrMalformedRequest, ResponseStatusBadRequest},
	{ErrInvalidArgument, ResponseStatusBadRequest},
	{ErrUnauthenticated, ResponseStatusProxyAuthenticationRequired},
	{ErrAuthRejected, ResponseStatusForbidden},
	{ErrAORNotFound, ResponseStatusNotFound},
	{ErrNoRoute, ResponseStatusNotFound},
	{ErrLoopDetected, ResponseStatusLoopDetected},
	{ErrTooManyHops, ResponseStatusTooManyHops},
	{ErrTimeout, ResponseStatusRequestTimeout},
	{ErrTransportFailure, ResponseStatusServiceUnavailable},
	{ErrUnsupportedScheme, ResponseStatusUnsupportedURIScheme},
	{ErrProxyClosed, ResponseStatusServiceUnavailable},
}

// ResponseForError maps an error returned by a processor to the final response
// sent upstream. Unknown errors map to 500.
func ResponseForError(err error) *Response {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return NewResponse(reqErr.Status, reqErr.Reason)
	}
	for _, e := range errStatuses {
		if errors.Is(err, e.err) {
			return NewResponse(e.sts, "")
		}
	}
	return NewResponse(ResponseStatusServerInternalError, "")
}
