package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureKind classifies why a request did not produce a usable result.
type FailureKind int

const (
	// KindTransport covers connection, DNS, TLS and body read failures.
	KindTransport FailureKind = iota + 1
	// KindHTTPStatus is any response status other than 200.
	KindHTTPStatus
	// KindDecode is a body that does not have the expected JSON shape.
	KindDecode
)

func (k FailureKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by SendChat and FetchUsage.
type Error struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		msg := fmt.Sprintf("http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err, or 0 when err is not an *Error.
func KindOf(err error) FailureKind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return 0
}

// StatusCode returns the HTTP status of a KindHTTPStatus failure.
func StatusCode(err error) (int, bool) {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Kind == KindHTTPStatus {
		return cerr.StatusCode, true
	}
	return 0, false
}

func transportError(err error) error {
	return &Error{Kind: KindTransport, Err: err}
}

func statusError(code int, err error) error {
	return &Error{Kind: KindHTTPStatus, StatusCode: code, Err: err}
}

func decodeError(err error) error {
	return &Error{Kind: KindDecode, Err: err}
}
