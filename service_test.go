package guildsync_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/galexite/guildsync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type SpyFetcher struct {
	mock.Mock
}

func (s *SpyFetcher) FetchLastModified(ctx context.Context, path string) (time.Time, bool) {
	args := s.Called(ctx, path)
	return args.Get(0).(time.Time), args.Bool(1)
}

func (s *SpyFetcher) FetchObject(ctx context.Context, path string) (string, bool) {
	args := s.Called(ctx, path)
	return args.String(0), args.Bool(1)
}

type SpyStateRepo struct {
	mock.Mock
}

func (s *SpyStateRepo) Get(ctx context.Context, resource guildsync.Resource) (guildsync.SyncState, error) {
	args := s.Called(ctx, resource)
	return args.Get(0).(guildsync.SyncState), args.Error(1)
}

func (s *SpyStateRepo) Upsert(ctx context.Context, state guildsync.SyncState) (guildsync.SyncState, bool, error) {
	args := s.Called(ctx, state)
	return args.Get(0).(guildsync.SyncState), args.Bool(1), args.Error(2)
}

func (s *SpyStateRepo) List(ctx context.Context) ([]guildsync.SyncState, error) {
	args := s.Called(ctx)
	return args.Get(0).([]guildsync.SyncState), args.Error(1)
}

type SpyPayloadStorage struct {
	mock.Mock
}

func (s *SpyPayloadStorage) Get(ctx context.Context, path string) (io.ReadSeekCloser, error) {
	args := s.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadSeekCloser), args.Error(1)
}

func (s *SpyPayloadStorage) Write(ctx context.Context, path string, content io.Reader) (guildsync.SaveResult, error) {
	args := s.Called(ctx, path, content)
	return args.Get(0).(guildsync.SaveResult), args.Error(1)
}

func (s *SpyPayloadStorage) Stat(ctx context.Context, path string) (guildsync.PayloadInfo, error) {
	args := s.Called(ctx, path)
	return args.Get(0).(guildsync.PayloadInfo), args.Error(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[guildsync.Resource]guildsync.SyncOutcome
}

func (o *recordingObserver) ObserveSync(resource guildsync.Resource, outcome guildsync.SyncOutcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[guildsync.Resource]guildsync.SyncOutcome)
	}
	o.outcomes[resource] = outcome
}

var (
	fixedNow     = time.Date(2020, 2, 22, 9, 0, 0, 0, time.UTC)
	remoteTime   = time.Date(2020, 2, 21, 12, 0, 0, 0, time.UTC)
	discardLog   = slog.New(slog.NewTextHandler(io.Discard, nil))
	errDiskFull  = errors.New("disk full")
	errDBOffline = errors.New("database offline")
)

func newSyncService(t *testing.T, cfg guildsync.SyncConfig) (*guildsync.SyncService, *SpyFetcher, *SpyStateRepo, *SpyPayloadStorage) {
	t.Helper()

	fetcher := new(SpyFetcher)
	repo := new(SpyStateRepo)
	storage := new(SpyPayloadStorage)

	if cfg.Logger == nil {
		cfg.Logger = discardLog
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}

	s, err := guildsync.NewSyncService(fetcher, repo, storage, cfg)
	require.NoError(t, err, "new sync service")
	return s, fetcher, repo, storage
}

func bodyEquals(want string) any {
	return mock.MatchedBy(func(r io.Reader) bool {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return false
		}
		return buf.String() == want
	})
}

func TestNewSyncService_Validation(t *testing.T) {
	t.Parallel()

	_, err := guildsync.NewSyncService(nil, new(SpyStateRepo), new(SpyPayloadStorage), guildsync.SyncConfig{})
	assert.ErrorIs(t, err, guildsync.ErrInvalidInput)

	_, err = guildsync.NewSyncService(new(SpyFetcher), new(SpyStateRepo), new(SpyPayloadStorage), guildsync.SyncConfig{
		Resources: []guildsync.Resource{"users.json"},
	})
	assert.ErrorIs(t, err, guildsync.ErrUnknownResource)
}

func TestSyncService_SyncResource(t *testing.T) {
	ctx := context.Background()
	events := guildsync.ResourceEvents

	t.Run("first sync downloads and records state", func(t *testing.T) {
		var hooked guildsync.SyncState
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{
			OnUpdate: func(_ context.Context, s guildsync.SyncState) { hooked = s },
		})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(remoteTime, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{}, guildsync.ErrNotFound)
		fetcher.On("FetchObject", ctx, "events.json").Return(`{"events":[]}`, true)
		storage.On("Write", ctx, "events.json", bodyEquals(`{"events":[]}`)).
			Return(guildsync.SaveResult{BytesWritten: 13, Etag: "abc"}, nil)

		matchState := mock.MatchedBy(func(s guildsync.SyncState) bool {
			return s.Resource == events &&
				s.LastModified.Equal(remoteTime) &&
				s.ETag == "abc" &&
				s.SizeBytes == 13 &&
				s.SyncedAt.Equal(fixedNow) &&
				s.RunID != uuid.Nil
		})
		repo.On("Upsert", ctx, matchState).Return(guildsync.SyncState{
			Resource: events, LastModified: remoteTime, ETag: "abc", SizeBytes: 13, SyncedAt: fixedNow,
		}, true, nil)

		report, err := service.SyncResource(ctx, events)
		require.NoError(t, err)

		assert.Equal(t, guildsync.OutcomeUpdated, report.Outcome)
		assert.Equal(t, remoteTime, report.LastModified)
		assert.Equal(t, int64(13), report.SizeBytes)
		assert.Equal(t, "abc", hooked.ETag)

		fetcher.AssertExpectations(t)
		repo.AssertExpectations(t)
		storage.AssertExpectations(t)
	})

	t.Run("unchanged when remote is not newer", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(remoteTime, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{Resource: events, LastModified: remoteTime}, nil)
		storage.On("Stat", ctx, "events.json").Return(guildsync.PayloadInfo{SizeBytes: 13}, nil)

		report, err := service.SyncResource(ctx, events)
		require.NoError(t, err)

		assert.Equal(t, guildsync.OutcomeUnchanged, report.Outcome)
		fetcher.AssertNotCalled(t, "FetchObject", mock.Anything, mock.Anything)
		storage.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("newer remote is downloaded", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		newer := remoteTime.Add(time.Hour)
		fetcher.On("FetchLastModified", ctx, "events.json").Return(newer, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{Resource: events, LastModified: remoteTime}, nil)
		fetcher.On("FetchObject", ctx, "events.json").Return(`{"events":[1]}`, true)
		storage.On("Write", ctx, "events.json", mock.Anything).Return(guildsync.SaveResult{BytesWritten: 14, Etag: "def"}, nil)
		repo.On("Upsert", ctx, mock.MatchedBy(func(s guildsync.SyncState) bool {
			return s.LastModified.Equal(newer)
		})).Return(guildsync.SyncState{Resource: events, LastModified: newer, SizeBytes: 14}, false, nil)

		report, err := service.SyncResource(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, guildsync.OutcomeUpdated, report.Outcome)
		storage.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything)
	})

	t.Run("missing payload is downloaded again", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(remoteTime, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{Resource: events, LastModified: remoteTime}, nil)
		storage.On("Stat", ctx, "events.json").Return(guildsync.PayloadInfo{}, guildsync.ErrNotFound)
		fetcher.On("FetchObject", ctx, "events.json").Return(`{}`, true)
		storage.On("Write", ctx, "events.json", mock.Anything).Return(guildsync.SaveResult{BytesWritten: 2}, nil)
		repo.On("Upsert", ctx, mock.Anything).Return(guildsync.SyncState{Resource: events}, false, nil)

		report, err := service.SyncResource(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, guildsync.OutcomeUpdated, report.Outcome)
	})

	t.Run("absent last-modified skips", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(time.Time{}, false)

		report, err := service.SyncResource(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, guildsync.OutcomeSkipped, report.Outcome)

		repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
		storage.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("absent body skips", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(remoteTime, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{}, guildsync.ErrNotFound)
		fetcher.On("FetchObject", ctx, "events.json").Return("", false)

		report, err := service.SyncResource(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, guildsync.OutcomeSkipped, report.Outcome)
		storage.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("storage write error", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(remoteTime, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{}, guildsync.ErrNotFound)
		fetcher.On("FetchObject", ctx, "events.json").Return(`{}`, true)
		storage.On("Write", ctx, "events.json", mock.Anything).Return(guildsync.SaveResult{}, errDiskFull)

		report, err := service.SyncResource(ctx, events)
		assert.ErrorIs(t, err, errDiskFull)
		assert.Equal(t, guildsync.OutcomeFailed, report.Outcome)
		assert.Contains(t, report.Error, "write payload")
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("failed state record is retried next cycle", func(t *testing.T) {
		var updates int
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{
			OnUpdate: func(context.Context, guildsync.SyncState) { updates++ },
		})

		newer := remoteTime.Add(time.Hour)
		fetcher.On("FetchLastModified", ctx, "events.json").Return(newer, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{Resource: events, LastModified: remoteTime, SizeBytes: 13}, nil)
		fetcher.On("FetchObject", ctx, "events.json").Return(`{"events":[1]}`, true)
		storage.On("Write", ctx, "events.json", mock.Anything).Return(guildsync.SaveResult{BytesWritten: 14, Etag: "def"}, nil)
		repo.On("Upsert", ctx, mock.Anything).Return(guildsync.SyncState{}, false, errDBOffline).Once()
		repo.On("Upsert", ctx, mock.MatchedBy(func(s guildsync.SyncState) bool {
			return s.LastModified.Equal(newer) && s.ETag == "def"
		})).Return(guildsync.SyncState{Resource: events, LastModified: newer, ETag: "def", SizeBytes: 14}, false, nil).Once()

		report, err := service.SyncResource(ctx, events)
		assert.ErrorIs(t, err, errDBOffline)
		assert.Equal(t, guildsync.OutcomeFailed, report.Outcome)
		assert.Contains(t, report.Error, "record state")
		assert.Zero(t, updates)

		report, err = service.SyncResource(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, guildsync.OutcomeUpdated, report.Outcome)
		assert.Equal(t, int64(14), report.SizeBytes)
		assert.Equal(t, 1, updates)

		fetcher.AssertNumberOfCalls(t, "FetchObject", 2)
		storage.AssertNumberOfCalls(t, "Write", 2)
		storage.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("state lookup error", func(t *testing.T) {
		service, fetcher, repo, _ := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(remoteTime, true)
		repo.On("Get", ctx, events).Return(guildsync.SyncState{}, errDBOffline)

		report, err := service.SyncResource(ctx, events)
		assert.ErrorIs(t, err, errDBOffline)
		assert.Equal(t, guildsync.OutcomeFailed, report.Outcome)
		fetcher.AssertNotCalled(t, "FetchObject", mock.Anything, mock.Anything)
	})

	t.Run("unknown resource", func(t *testing.T) {
		service, fetcher, _, _ := newSyncService(t, guildsync.SyncConfig{})

		_, err := service.SyncResource(ctx, "users.json")
		assert.ErrorIs(t, err, guildsync.ErrUnknownResource)
		fetcher.AssertNotCalled(t, "FetchLastModified", mock.Anything, mock.Anything)
	})

	t.Run("cancelled context", func(t *testing.T) {
		service, fetcher, _, _ := newSyncService(t, guildsync.SyncConfig{})

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := service.SyncResource(cctx, events)
		assert.ErrorIs(t, err, context.Canceled)
		fetcher.AssertNotCalled(t, "FetchLastModified", mock.Anything, mock.Anything)
	})
}

func TestSyncService_SyncAll(t *testing.T) {
	ctx := context.Background()

	t.Run("one run id across resources", func(t *testing.T) {
		observer := &recordingObserver{}
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{Observer: observer})

		var runIDs []uuid.UUID
		fetcher.On("FetchLastModified", ctx, mock.Anything).Return(remoteTime, true)
		repo.On("Get", ctx, mock.Anything).Return(guildsync.SyncState{}, guildsync.ErrNotFound)
		fetcher.On("FetchObject", ctx, mock.Anything).Return(`[]`, true)
		storage.On("Write", ctx, mock.Anything, mock.Anything).Return(guildsync.SaveResult{BytesWritten: 2}, nil)
		repo.On("Upsert", ctx, mock.Anything).Run(func(args mock.Arguments) {
			runIDs = append(runIDs, args.Get(1).(guildsync.SyncState).RunID)
		}).Return(guildsync.SyncState{}, true, nil)

		report, err := service.SyncAll(ctx)
		require.NoError(t, err)

		require.Len(t, report.Resources, 2)
		assert.Equal(t, guildsync.ResourceEvents, report.Resources[0].Resource)
		assert.Equal(t, guildsync.ResourceOrganisations, report.Resources[1].Resource)
		assert.True(t, report.Updated())

		require.Len(t, runIDs, 2)
		assert.Equal(t, report.RunID, runIDs[0])
		assert.Equal(t, report.RunID, runIDs[1])

		assert.Equal(t, guildsync.OutcomeUpdated, observer.outcomes[guildsync.ResourceEvents])
		assert.Equal(t, guildsync.OutcomeUpdated, observer.outcomes[guildsync.ResourceOrganisations])
	})

	t.Run("failure on one resource does not stop the other", func(t *testing.T) {
		service, fetcher, repo, storage := newSyncService(t, guildsync.SyncConfig{})

		fetcher.On("FetchLastModified", ctx, "events.json").Return(time.Time{}, false)
		fetcher.On("FetchLastModified", ctx, "organisations.json").Return(remoteTime, true)
		repo.On("Get", ctx, guildsync.ResourceOrganisations).Return(guildsync.SyncState{}, guildsync.ErrNotFound)
		fetcher.On("FetchObject", ctx, "organisations.json").Return(`[]`, true)
		storage.On("Write", ctx, "organisations.json", mock.Anything).Return(guildsync.SaveResult{}, errDiskFull)

		report, err := service.SyncAll(ctx)
		assert.ErrorIs(t, err, errDiskFull)

		require.Len(t, report.Resources, 2)
		assert.Equal(t, guildsync.OutcomeSkipped, report.Resources[0].Outcome)
		assert.Equal(t, guildsync.OutcomeFailed, report.Resources[1].Outcome)
		assert.False(t, report.Updated())
	})
}

func TestSyncService_Run(t *testing.T) {
	t.Run("rejects non-positive interval", func(t *testing.T) {
		service, _, _, _ := newSyncService(t, guildsync.SyncConfig{})

		err := service.Run(context.Background(), 0)
		assert.ErrorIs(t, err, guildsync.ErrInvalidInput)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		service, fetcher, _, _ := newSyncService(t, guildsync.SyncConfig{
			Resources: []guildsync.Resource{guildsync.ResourceEvents},
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		called := make(chan struct{}, 1)
		fetcher.On("FetchLastModified", mock.Anything, "events.json").Run(func(mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		}).Return(time.Time{}, false)

		done := make(chan error, 1)
		go func() { done <- service.Run(ctx, time.Hour) }()

		select {
		case <-called:
		case <-time.After(5 * time.Second):
			t.Fatal("first cycle did not run")
		}
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})
}
