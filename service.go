package guildsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fetcher reads resources from the bucket. Every failure is reported as
// absence; the client package provides the implementation.
type Fetcher interface {
	FetchLastModified(ctx context.Context, path string) (time.Time, bool)
	FetchObject(ctx context.Context, path string) (string, bool)
}

// SyncObserver is notified once per resource per cycle.
type SyncObserver interface {
	ObserveSync(resource Resource, outcome SyncOutcome, d time.Duration)
}

// UpdateHook is called after a resource has been downloaded and recorded.
// It is where the application re-parses the payload.
type UpdateHook func(ctx context.Context, state SyncState)

// SyncConfig holds configuration options for SyncService.
type SyncConfig struct {
	Resources []Resource // Resources to sync (default: all)
	Logger    *slog.Logger
	Observer  SyncObserver
	OnUpdate  UpdateHook
	Now       func() time.Time
}

// SyncService downloads resources whose bucket copy is newer than the
// locally recorded one.
type SyncService struct {
	fetcher   Fetcher
	repo      StateRepo
	storage   PayloadStorage
	resources []Resource
	logger    *slog.Logger
	observer  SyncObserver
	onUpdate  UpdateHook
	now       func() time.Time
}

func NewSyncService(fetcher Fetcher, repo StateRepo, storage PayloadStorage, cfg SyncConfig) (*SyncService, error) {
	if fetcher == nil || repo == nil || storage == nil {
		return nil, fmt.Errorf("new sync service: %w: fetcher, repo and storage are required", ErrInvalidInput)
	}

	resources := cfg.Resources
	if len(resources) == 0 {
		resources = Resources
	}
	for _, r := range resources {
		if !r.IsValid() {
			return nil, fmt.Errorf("new sync service: %s: %w", r, ErrUnknownResource)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SyncService{
		fetcher:   fetcher,
		repo:      repo,
		storage:   storage,
		resources: resources,
		logger:    logger,
		observer:  cfg.Observer,
		onUpdate:  cfg.OnUpdate,
		now:       now,
	}, nil
}

// SyncResource runs one conditional fetch for a single resource.
//
// The steps are:
//  1. HEAD the resource. If the bucket does not answer, the outcome is
//     OutcomeSkipped and the local copy is kept.
//  2. If a state is recorded, the remote Last-Modified is not after the
//     recorded one and the payload is still stored, the outcome is
//     OutcomeUnchanged.
//  3. Otherwise GET the resource. An absent body is OutcomeSkipped.
//  4. Write the payload, record the new state and call the update hook.
//     The outcome is OutcomeUpdated.
//
// Bucket failures never produce an error. Errors are returned only for
// local storage and state repository failures, with OutcomeFailed.
func (s *SyncService) SyncResource(ctx context.Context, resource Resource) (ResourceReport, error) {
	return s.syncResource(ctx, uuid.New(), resource)
}

func (s *SyncService) syncResource(ctx context.Context, runID uuid.UUID, resource Resource) (ResourceReport, error) {
	start := s.now()
	report := ResourceReport{Resource: resource}

	finish := func(outcome SyncOutcome, err error) (ResourceReport, error) {
		report.Outcome = outcome
		report.Duration = s.now().Sub(start)
		if err != nil {
			report.Error = err.Error()
		}
		if s.observer != nil {
			s.observer.ObserveSync(resource, outcome, report.Duration)
		}
		return report, err
	}

	if err := ctx.Err(); err != nil {
		return finish(OutcomeFailed, fmt.Errorf("sync %s: %w", resource, err))
	}

	if !resource.IsValid() {
		return finish(OutcomeFailed, fmt.Errorf("sync %s: %w", resource, ErrUnknownResource))
	}

	logger := s.logger.With("resource", resource.String(), "run_id", runID.String())

	remote, ok := s.fetcher.FetchLastModified(ctx, resource.String())
	if !ok {
		logger.Warn("last-modified unavailable, keeping local copy")
		return finish(OutcomeSkipped, nil)
	}
	remote = remote.UTC()
	report.LastModified = remote

	stored, err := s.repo.Get(ctx, resource)
	hasState := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return finish(OutcomeFailed, fmt.Errorf("sync %s: get state: %w", resource, err))
	}

	if hasState && !remote.After(stored.LastModified) {
		info, statErr := s.storage.Stat(ctx, resource.String())
		switch {
		case statErr == nil:
			report.SizeBytes = info.SizeBytes
			logger.Debug("resource unchanged", "last_modified", remote)
			return finish(OutcomeUnchanged, nil)
		case errors.Is(statErr, ErrNotFound):
			logger.Info("payload missing locally, downloading again")
		default:
			return finish(OutcomeFailed, fmt.Errorf("sync %s: stat payload: %w", resource, statErr))
		}
	}

	body, ok := s.fetcher.FetchObject(ctx, resource.String())
	if !ok {
		logger.Warn("resource body unavailable, keeping local copy")
		return finish(OutcomeSkipped, nil)
	}

	// The payload is replaced before its state is recorded. If recording
	// fails the stored Last-Modified stays older than the remote one, so the
	// next cycle downloads and records again. Mirror drops the stale
	// validators while the two disagree.
	saved, err := s.storage.Write(ctx, resource.String(), strings.NewReader(body))
	if err != nil {
		return finish(OutcomeFailed, fmt.Errorf("sync %s: write payload: %w", resource, err))
	}

	state, _, err := s.repo.Upsert(ctx, SyncState{
		Resource:     resource,
		LastModified: remote,
		ETag:         saved.Etag,
		SizeBytes:    saved.BytesWritten,
		SyncedAt:     s.now().UTC(),
		RunID:        runID,
	})
	if err != nil {
		return finish(OutcomeFailed, fmt.Errorf("sync %s: record state: %w", resource, err))
	}

	report.SizeBytes = state.SizeBytes
	logger.Info("resource updated", "last_modified", remote, "size_bytes", state.SizeBytes, "etag", state.ETag)

	if s.onUpdate != nil {
		s.onUpdate(ctx, state)
	}

	return finish(OutcomeUpdated, nil)
}

// SyncAll syncs every configured resource under one run ID. A failure on
// one resource does not stop the others; all errors are joined.
func (s *SyncService) SyncAll(ctx context.Context) (SyncReport, error) {
	report := SyncReport{
		RunID:     uuid.New(),
		StartedAt: s.now().UTC(),
		Resources: make([]ResourceReport, 0, len(s.resources)),
	}

	var errs []error
	for _, res := range s.resources {
		rr, err := s.syncResource(ctx, report.RunID, res)
		report.Resources = append(report.Resources, rr)
		if err != nil {
			errs = append(errs, err)
		}
	}

	report.FinishedAt = s.now().UTC()
	return report, errors.Join(errs...)
}

// Run calls SyncAll immediately and then on every tick of interval until
// ctx is done. Cycle errors are logged, not returned.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("run sync: %w: interval must be positive", ErrInvalidInput)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *SyncService) runCycle(ctx context.Context) {
	report, err := s.SyncAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sync cycle failed", "run_id", report.RunID.String(), "err", err)
		return
	}
	s.logger.Debug("sync cycle finished",
		"run_id", report.RunID.String(),
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"updated", report.Updated(),
	)
}
