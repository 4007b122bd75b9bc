package guildsync

import (
	"context"
	"io"
)

// StateRepo defines the interface for sync state persistence.
// Implementations must handle concurrent access safely.
//
// All methods accept a context for cancellation and timeout control.
type StateRepo interface {
	// Get retrieves the recorded state of a resource.
	//
	// Returns:
	//   - SyncState: The recorded state if found
	//   - error: ErrNotFound if the resource has never been synced, or other database errors
	Get(ctx context.Context, resource Resource) (SyncState, error)

	// Upsert records the state of a resource, replacing any earlier record.
	//
	// Returns:
	//   - SyncState: The stored state
	//   - bool: true if a new record was created, false if an existing record was updated
	//   - error: Any database or validation error
	Upsert(ctx context.Context, state SyncState) (SyncState, bool, error)

	// List returns every recorded state ordered by resource name.
	// Returns an empty slice (not nil) when nothing has been synced.
	List(ctx context.Context) ([]SyncState, error)
}

// PayloadStorage defines the interface for the local copy of resource payloads.
type PayloadStorage interface {
	// Get opens a stored payload for reading.
	// The caller is responsible for closing the returned ReadSeekCloser.
	//
	// Returns ErrNotFound if the payload has not been stored.
	Get(ctx context.Context, path string) (io.ReadSeekCloser, error)

	// Write replaces the payload at path.
	//
	// Implementations should:
	//   - Write atomically (temp file then rename) so readers never see a partial payload
	//   - Compute an ETag during the write
	//   - Clean up partial writes on error or context cancellation
	Write(ctx context.Context, path string, content io.Reader) (SaveResult, error)

	// Stat reports the size and modification time of a stored payload.
	//
	// Returns ErrNotFound if the payload has not been stored.
	Stat(ctx context.Context, path string) (PayloadInfo, error)
}
