package errs

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindWindowExpired
	KindTransientRetryable
	KindRateLimited
)

var kindCodes = map[Kind]string{
	KindInternal:           "INTERNAL",
	KindInvalidInput:       "INVALID_INPUT",
	KindUnauthorized:       "UNAUTHORIZED",
	KindForbidden:          "FORBIDDEN",
	KindNotFound:           "NOT_FOUND",
	KindConflict:           "CONFLICT",
	KindWindowExpired:      "WINDOW_EXPIRED",
	KindTransientRetryable: "RETRY_LATER",
	KindRateLimited:        "RATE_LIMITED",
}

func (k Kind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return "INTERNAL"
}

// Error is a classified error. Code is an optional stable machine-readable
// identifier; when empty the kind's code is used.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCode creates a classified error with a specific code.
func WithCode(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return e.Kind.String()
	}
	return KindInternal.String()
}

// Retryable reports whether the caller should retry later.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindTransientRetryable || k == KindRateLimited
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindWindowExpired:
		return http.StatusConflict
	case KindTransientRetryable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
