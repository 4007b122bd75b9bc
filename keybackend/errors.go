package keybackend

import "errors"

var (
	// ErrKeyNotFound is returned when the access key does not exist in the store.
	ErrKeyNotFound = errors.New("access key not found")
	// ErrNoCredentials is returned when no access key and secret key pair is configured.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrSessionTokenUnsupported is returned for temporary credentials. The
	// signed header list is fixed and has no room for x-amz-security-token.
	ErrSessionTokenUnsupported = errors.New("session tokens are not supported")
)
