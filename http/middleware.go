package http

import (
	"net/http"
)

// RequestVerifier authenticates an incoming request.
// guildsync.SignatureVerifier implements it.
type RequestVerifier interface {
	Verify(r *http.Request) error
}

// AuthMiddleware creates middleware that enforces header-signed AWS
// Signature V4 authentication. Pass nil to disable authentication.
func AuthMiddleware(verifier RequestVerifier) func(http.Handler) http.Handler {
	if verifier == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := verifier.Verify(r); err != nil {
				HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
