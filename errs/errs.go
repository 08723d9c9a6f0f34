// Package errs defines the error kinds of spec.md §7 and the propagation
// helpers used across the module: exceptions for misuse of the API by the
// caller's own goroutine, and RuntimeErrors for anything originating from
// the server or a timer.
package errs

import (
	"errors"
	"fmt"

	"github.com/deepstream-client/go-deepstream/protocol"
)

// Kind is one of the fixed error kinds of spec.md §7.
type Kind string

const (
	ConnectionError     Kind = "CONNECTION_ERROR"
	MessageParseError   Kind = "MESSAGE_PARSE_ERROR"
	UnsolicitedMessage  Kind = "UNSOLICITED_MESSAGE"
	AckTimeout          Kind = "ACK_TIMEOUT"
	ResponseTimeout     Kind = "RESPONSE_TIMEOUT"
	DeleteTimeout       Kind = "DELETE_TIMEOUT"
	VersionExists       Kind = "VERSION_EXISTS"
	NotSubscribed       Kind = "NOT_SUBSCRIBED"
	ListenerExists      Kind = "LISTENER_EXISTS"
	NotListening        Kind = "NOT_LISTENING"
	MessageDenied       Kind = "MESSAGE_DENIED"
	NotAuthenticated    Kind = "NOT_AUTHENTICATED"
	TooManyAuthAttempts Kind = "TOO_MANY_AUTH_ATTEMPTS"
	IsClosed            Kind = "IS_CLOSED"
)

// RuntimeError is an error that originated from the server or an
// internal timer rather than from misuse of the calling API (spec.md §7:
// "delivered to the runtime error handler ... otherwise ... raised on the
// dispatcher thread").
type RuntimeError struct {
	Topic   protocol.Topic
	Kind    Kind
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s|%s: %s", e.Topic, e.Kind, e.Message)
}

// Handler is the application-supplied sink for RuntimeErrors (spec.md
// §4.12, §7). If nil, errors are logged at Error level and go no further:
// the Connection recovers the panic it raises for them.
type Handler func(topic protocol.Topic, kind Kind, message string)

// Exception is raised (as a Go error return, never a panic) for calls the
// caller's own goroutine made against invalid client state — e.g. set()
// on a destroyed record.
type Exception struct {
	Kind    Kind
	Message string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewException constructs an *Exception.
func NewException(kind Kind, message string) *Exception {
	return &Exception{Kind: kind, Message: message}
}

// RemapAuthTimeout applies the §7 rule that any timeout witnessed while
// the connection is AWAITING_AUTHENTICATION is reported as
// NOT_AUTHENTICATED instead of its original kind.
func RemapAuthTimeout(awaitingAuth bool, kind Kind, message string) (Kind, string) {
	if !awaitingAuth {
		return kind, message
	}
	switch kind {
	case AckTimeout, ResponseTimeout, DeleteTimeout:
		return NotAuthenticated, "not authenticated: " + message
	default:
		return kind, message
	}
}

// As is a thin re-export of errors.As for convenience in callers that
// otherwise only import this package.
func As(err error, target interface{}) bool { return errors.As(err, target) }
