// Package syncapi is the sole network boundary for progress mutations.
// It talks to the server of record over REST and normalizes every failure
// into a fixed error taxonomy before anything reaches the progress store.
package syncapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a request that is missing required identifiers.
// It fails fast and is never queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid progress update: %s %s", e.Field, e.Reason)
}

// NetworkError wraps a transport failure or timeout: the request never
// reached the server. Recovered automatically via the outbox.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError means the referenced lesson does not exist server-side yet.
// Server-side content provisioning may simply be lagging, so the event is
// queued for later retry and optimistic state is preserved.
type NotFoundError struct {
	LessonID string
	Message  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lesson %q not found on server: %s", e.LessonID, e.Message)
}

// RecoverableServerError is a 5xx-class response. Queued and retried like a
// network failure; optimistic state is preserved.
type RecoverableServerError struct {
	StatusCode int
	Message    string
}

func (e *RecoverableServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// ClientError is a non-recoverable 4xx-class response (other than 404).
// The optimistic update is reverted and the error surfaces to the caller.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("request rejected with %d: %s", e.StatusCode, e.Message)
}

// IsRecoverable reports whether an error is expected to succeed on retry
// and therefore belongs in the outbox.
func IsRecoverable(err error) bool {
	var networkErr *NetworkError
	var notFoundErr *NotFoundError
	var serverErr *RecoverableServerError
	return errors.As(err, &networkErr) || errors.As(err, &notFoundErr) || errors.As(err, &serverErr)
}

// errorEnvelope covers both error payload shapes the server of record is
// known to produce: {"error":{"message","code"}} and a plain {"message"}.
type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

func (e errorEnvelope) message(fallback string) string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// classifyStatus maps a non-2xx response to the error taxonomy.
func classifyStatus(statusCode int, lessonID, message string) error {
	switch {
	case statusCode == http.StatusNotFound:
		return &NotFoundError{LessonID: lessonID, Message: message}
	case statusCode >= 500:
		return &RecoverableServerError{StatusCode: statusCode, Message: message}
	default:
		return &ClientError{StatusCode: statusCode, Message: message}
	}
}
