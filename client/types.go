package client

import "time"

// Object is the result of a successful GET.
type Object struct {
	Path         string    `json:"path"`
	Body         string    `json:"body"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`
	Size         int64     `json:"size_bytes"`
}

// ObjectInfo is the result of a successful HEAD.
type ObjectInfo struct {
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	Size         int64     `json:"size_bytes"`
}
