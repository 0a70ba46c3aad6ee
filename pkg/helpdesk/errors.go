package helpdesk

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// FallbackErrorMessage is used when a failed response carries neither detail nor error.
	FallbackErrorMessage = "Failed to get response"
	// TransportErrorMessage is shown when the backend could not be reached at all.
	TransportErrorMessage = "Unable to reach the helpdesk service"
	// MalformedResponseMessage is shown when a 2xx body could not be understood.
	MalformedResponseMessage = "Received an invalid response from the helpdesk service"
)

// UserFacingError is implemented by every error the client returns for a chat query.
type UserFacingError interface {
	error
	UserMessage() string
}

// ConnectivityError reports a failed health probe.
type ConnectivityError struct {
	StatusCode int
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("helpdesk health probe failed: %v", e.Err)
	}
	return fmt.Sprintf("helpdesk health probe failed: status %d", e.StatusCode)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// TransportError covers network failures, timeouts and cancellation during a query.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("helpdesk query transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) UserMessage() string { return TransportErrorMessage }

// ApplicationError is a non-2xx answer from the backend.
type ApplicationError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("helpdesk query failed with status %d: %s", e.StatusCode, e.UserMessage())
}

func (e *ApplicationError) UserMessage() string {
	if msg := e.Body.Message(); msg != "" {
		return msg
	}
	return FallbackErrorMessage
}

// MalformedResponseError is a 2xx answer whose body could not be decoded.
type MalformedResponseError struct {
	StatusCode int
	Err        error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("helpdesk returned malformed response (status %d): %v", e.StatusCode, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) UserMessage() string { return MalformedResponseMessage }

// UserMessage extracts the text to show for a failed query.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ufe UserFacingError
	if errors.As(err, &ufe) {
		return ufe.UserMessage()
	}
	return FallbackErrorMessage
}
