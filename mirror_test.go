package guildsync_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/galexite/guildsync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type nopReadSeekCloser struct {
	io.ReadSeeker
}

func (nopReadSeekCloser) Close() error { return nil }

func TestMirror_Get(t *testing.T) {
	t.Parallel()

	state := guildsync.SyncState{
		Resource:     guildsync.ResourceEvents,
		LastModified: remoteTime,
		ETag:         "abc",
		SizeBytes:    13,
		SyncedAt:     fixedNow,
		RunID:        uuid.New(),
	}

	t.Run("synced resource", func(t *testing.T) {
		t.Parallel()

		repo := new(SpyStateRepo)
		storage := new(SpyPayloadStorage)
		repo.On("Get", mock.Anything, guildsync.ResourceEvents).Return(state, nil)
		storage.On("Get", mock.Anything, "events.json").
			Return(nopReadSeekCloser{bytes.NewReader([]byte(`{"events":[]}`))}, nil)

		got, content, err := guildsync.NewMirror(repo, storage).Get(context.Background(), guildsync.ResourceEvents)
		require.NoError(t, err)
		t.Cleanup(func() { _ = content.Close() })

		body, err := io.ReadAll(content)
		require.NoError(t, err)
		assert.Equal(t, state, got)
		assert.Equal(t, `{"events":[]}`, string(body))
	})

	t.Run("payload newer than recorded state", func(t *testing.T) {
		t.Parallel()

		repo := new(SpyStateRepo)
		storage := new(SpyPayloadStorage)
		repo.On("Get", mock.Anything, guildsync.ResourceEvents).Return(state, nil)
		storage.On("Get", mock.Anything, "events.json").
			Return(nopReadSeekCloser{bytes.NewReader([]byte(`{"events":[{"id":1}]}`))}, nil)

		got, content, err := guildsync.NewMirror(repo, storage).Get(context.Background(), guildsync.ResourceEvents)
		require.NoError(t, err)
		t.Cleanup(func() { _ = content.Close() })

		body, err := io.ReadAll(content)
		require.NoError(t, err)
		assert.Equal(t, `{"events":[{"id":1}]}`, string(body))
		assert.Empty(t, got.ETag)
		assert.True(t, got.LastModified.IsZero())
		assert.Equal(t, state.Resource, got.Resource)
		assert.Equal(t, state.SyncedAt, got.SyncedAt)
	})

	t.Run("never synced", func(t *testing.T) {
		t.Parallel()

		repo := new(SpyStateRepo)
		storage := new(SpyPayloadStorage)
		repo.On("Get", mock.Anything, guildsync.ResourceOrganisations).Return(guildsync.SyncState{}, guildsync.ErrNotFound)

		_, content, err := guildsync.NewMirror(repo, storage).Get(context.Background(), guildsync.ResourceOrganisations)
		assert.ErrorIs(t, err, guildsync.ErrNotFound)
		assert.Nil(t, content)
		storage.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("payload missing", func(t *testing.T) {
		t.Parallel()

		repo := new(SpyStateRepo)
		storage := new(SpyPayloadStorage)
		repo.On("Get", mock.Anything, guildsync.ResourceEvents).Return(state, nil)
		storage.On("Get", mock.Anything, "events.json").Return(nil, guildsync.ErrNotFound)

		_, _, err := guildsync.NewMirror(repo, storage).Get(context.Background(), guildsync.ResourceEvents)
		assert.ErrorIs(t, err, guildsync.ErrNotFound)
	})

	t.Run("unknown resource", func(t *testing.T) {
		t.Parallel()

		repo := new(SpyStateRepo)
		storage := new(SpyPayloadStorage)

		_, _, err := guildsync.NewMirror(repo, storage).Get(context.Background(), "users.json")
		assert.ErrorIs(t, err, guildsync.ErrUnknownResource)
		repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestMirror_List(t *testing.T) {
	t.Parallel()

	repo := new(SpyStateRepo)
	states := []guildsync.SyncState{{Resource: guildsync.ResourceEvents}}
	repo.On("List", mock.Anything).Return(states, nil).Once()
	repo.On("List", mock.Anything).Return([]guildsync.SyncState(nil), errDBOffline).Once()

	m := guildsync.NewMirror(repo, new(SpyPayloadStorage))

	got, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, states, got)

	_, err = m.List(context.Background())
	assert.ErrorIs(t, err, errDBOffline)
}
