package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a model invocation failure. The orchestrator uses
// the classification only for user-facing messaging, never for control
// flow.
type ErrorKind string

const (
	KindAuth      ErrorKind = "authentication"
	KindRateLimit ErrorKind = "rate_limit"
	KindServer    ErrorKind = "server"
	KindTransport ErrorKind = "transport"
)

// ClientError is the classified failure every backend returns for a
// failed invocation.
type ClientError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("model backend %s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("model backend %s error: %s", e.Kind, e.Message)
}

// classifyStatus maps an HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindTransport
	}
}

func statusError(status int, message string) *ClientError {
	return &ClientError{Kind: classifyStatus(status), Status: status, Message: message}
}

func transportError(err error) *ClientError {
	return &ClientError{Kind: KindTransport, Message: err.Error()}
}

// Classify extracts the kind from any error, defaulting to transport.
func Classify(err error) ErrorKind {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}
