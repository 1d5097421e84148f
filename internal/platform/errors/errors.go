package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindTransport Kind = "transport"
	KindPlatform  Kind = "platform"
	KindBootstrap Kind = "bootstrap"
	KindStorage   Kind = "storage"
	KindUnknown   Kind = "unknown"

	// Recognition pipeline taxonomy.
	KindInvalidInput      Kind = "invalid_input"
	KindUpstream          Kind = "upstream"
	KindUpstreamTransport Kind = "upstream_transport"
	KindRateLimited       Kind = "rate_limited"
	KindProcessing        Kind = "processing"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	// Status is the upstream HTTP status for KindUpstream errors.
	Status int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches kind/op context to err. An error that is already typed is returned as is.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Upstream builds a KindUpstream error carrying the remote status and body.
func Upstream(op string, status int, body string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Op:      op,
		Message: fmt.Sprintf("API request failed: %d %s", status, body),
		Status:  status,
	}
}

// IsKind checks whether the first typed error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first typed error in the chain, KindUnknown otherwise.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// Detail returns the human readable message of a typed error, falling back to err.Error().
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var target *Error
	if errors.As(err, &target) {
		if target.Cause != nil && target.Kind == KindInvalidInput {
			return fmt.Sprintf("%s: %v", target.Message, target.Cause)
		}
		if target.Cause != nil && target.Kind == KindUpstreamTransport {
			return fmt.Sprintf("%s: %v", target.Message, target.Cause)
		}
		return target.Message
	}
	return err.Error()
}
