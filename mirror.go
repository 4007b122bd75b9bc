package guildsync

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Mirror serves the locally stored copy of each resource together with the
// state recorded when it was fetched.
type Mirror struct {
	repo    StateRepo
	storage PayloadStorage
}

// NewMirror creates a Mirror over the same repo and storage a SyncService
// writes to.
func NewMirror(repo StateRepo, storage PayloadStorage) *Mirror {
	return &Mirror{repo: repo, storage: storage}
}

// Get returns the recorded state of resource and opens its payload. The
// caller must close the payload. Returns ErrNotFound if the resource has not
// been synced yet or its payload is missing.
//
// A payload is replaced before its state is recorded. When the opened
// payload does not match the recorded size, the state belongs to an older
// copy and its ETag and LastModified are cleared so no stale validators are
// served with the newer body.
func (m *Mirror) Get(ctx context.Context, resource Resource) (SyncState, io.ReadSeekCloser, error) {
	if !resource.IsValid() {
		return SyncState{}, nil, fmt.Errorf("mirror get %q: %w", resource, ErrUnknownResource)
	}

	state, err := m.repo.Get(ctx, resource)
	if err != nil {
		return SyncState{}, nil, fmt.Errorf("mirror get %s: %w", resource, err)
	}

	content, err := m.storage.Get(ctx, resource.String())
	if err != nil {
		return SyncState{}, nil, fmt.Errorf("mirror get %s: %w", resource, err)
	}

	size, err := payloadSize(content)
	if err != nil {
		_ = content.Close()
		return SyncState{}, nil, fmt.Errorf("mirror get %s: %w", resource, err)
	}
	if size != state.SizeBytes {
		state.ETag = ""
		state.LastModified = time.Time{}
	}

	return state, content, nil
}

func payloadSize(content io.Seeker) (int64, error) {
	size, err := content.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure payload: %w", err)
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind payload: %w", err)
	}
	return size, nil
}

// List returns the recorded state of every synced resource.
func (m *Mirror) List(ctx context.Context) ([]SyncState, error) {
	states, err := m.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("mirror list: %w", err)
	}
	return states, nil
}
