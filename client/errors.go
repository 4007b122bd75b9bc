package client

import (
	"errors"
	"net/http"
	"strconv"
)

// Errors for configuration validation.
var (
	ErrConfigRequired    = errors.New("config is required")
	ErrBaseURLRequired   = errors.New("bucket base URL is required")
	ErrInvalidBaseURL    = errors.New("bucket base URL must be an absolute http or https URL")
	ErrRegionRequired    = errors.New("region is required")
	ErrAccessKeyRequired = errors.New("access key is required")
	ErrSecretKeyRequired = errors.New("secret key is required")
)

// Errors for response validation.
var (
	// ErrMissingBody is returned when a successful GET carries no body.
	ErrMissingBody = errors.New("response has no body")
	// ErrMissingLastModified is returned when a successful HEAD has no usable Last-Modified header.
	ErrMissingLastModified = errors.New("response has no valid Last-Modified header")
	// ErrEmptyPath is returned when the object path is empty.
	ErrEmptyPath = errors.New("path is required")
)

// APIError represents a non-2xx response from the bucket.
type APIError struct {
	StatusCode int
	Body       string
	Header     http.Header
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return "bucket error: " + strconv.Itoa(e.StatusCode)
	}
	return "bucket error: " + strconv.Itoa(e.StatusCode) + " - " + e.Body
}

// Is reports whether target matches this error.
// It matches if target is an *APIError with the same StatusCode.
func (e *APIError) Is(target error) bool {
	var t *APIError
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return t.StatusCode == e.StatusCode
}

// IsNotFound returns true if the error is a 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Sentinel errors for common API error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound is returned when the object does not exist (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrUnauthorized is returned when authentication fails (401).
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized}

	// ErrForbidden is returned when the bucket rejects the signature (403).
	// With S3 this is usually a signing bug or a skewed clock, not a permission problem.
	ErrForbidden = &APIError{StatusCode: http.StatusForbidden}
)

// TransportError wraps a failure to complete the HTTP exchange:
// connection, DNS, TLS, timeout or body read errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FailureKind classifies why a fetch produced no result.
type FailureKind int

const (
	NoFailure FailureKind = iota
	TransportFailure
	AuthFailure
	NotFound
	OtherHTTPFailure
	MissingBody
)

func (k FailureKind) String() string {
	switch k {
	case NoFailure:
		return "ok"
	case TransportFailure:
		return "transport_failure"
	case AuthFailure:
		return "auth_failure"
	case NotFound:
		return "not_found"
	case OtherHTTPFailure:
		return "http_failure"
	case MissingBody:
		return "missing_body"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by Get or Head to a FailureKind.
// A missing Last-Modified header counts as MissingBody: the response was
// successful but lacked the value the caller asked for.
func Classify(err error) FailureKind {
	if err == nil {
		return NoFailure
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return AuthFailure
		case http.StatusNotFound:
			return NotFound
		default:
			return OtherHTTPFailure
		}
	}

	if errors.Is(err, ErrMissingBody) || errors.Is(err, ErrMissingLastModified) {
		return MissingBody
	}

	return TransportFailure
}
