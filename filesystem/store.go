// Package filesystem stores fetched payloads on local disk. Writes go to a
// temp file that is renamed into place, so readers never see a partial
// payload.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/galexite/guildsync"
	"github.com/google/uuid"
)

// Store keeps payloads under a directory.
type Store struct {
	root *os.Root
}

// NewFileStorage creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Open opens dir as a root and returns a Store over it, creating dir first
// if needed. The returned close func releases the root.
func Open(dir string) (*Store, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	return NewFileStorage(root), root.Close, nil
}

// Get opens a payload for reading. Returns guildsync.ErrNotFound if it does
// not exist.
func (s *Store) Get(ctx context.Context, path string) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.root.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, guildsync.ErrNotFound
		}
		return nil, fmt.Errorf("open payload: %w", err)
	}

	return f, nil
}

// Stat reports the size and modification time of a payload. Returns
// guildsync.ErrNotFound if it does not exist.
func (s *Store) Stat(ctx context.Context, path string) (guildsync.PayloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return guildsync.PayloadInfo{}, err
	}

	info, err := s.root.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return guildsync.PayloadInfo{}, guildsync.ErrNotFound
		}
		return guildsync.PayloadInfo{}, fmt.Errorf("stat payload: %w", err)
	}

	if info.IsDir() {
		return guildsync.PayloadInfo{}, guildsync.ErrNotFound
	}

	return guildsync.PayloadInfo{
		SizeBytes: info.Size(),
		ModTime:   info.ModTime().UTC(),
	}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write replaces the payload at path with content. The bytes land in a temp
// file first and are renamed over path once synced. The etag is the hex
// sha256 of content.
func (s *Store) Write(ctx context.Context, path string, content io.Reader) (guildsync.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return guildsync.SaveResult{}, ctxErr
	}

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return guildsync.SaveResult{}, fmt.Errorf("create temp file: %w", createErr)
	}

	renamed := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close temp file", "path", tmpFile, "err", closeErr)
		}
		if !renamed {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil {
				slog.Warn("failed to remove temp file", "path", tmpFile, "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(h, t), &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return guildsync.SaveResult{}, fmt.Errorf("copy payload: %w", err)
	}

	if err := t.Sync(); err != nil {
		return guildsync.SaveResult{}, fmt.Errorf("sync temp file: %w", err)
	}

	if destDir := filepath.Dir(path); destDir != "." {
		if err := s.root.MkdirAll(destDir, 0o755); err != nil {
			return guildsync.SaveResult{}, fmt.Errorf("create directories: %w", err)
		}
	}

	if err := s.root.Rename(tmpFile, path); err != nil {
		return guildsync.SaveResult{}, fmt.Errorf("rename temp file: %w", err)
	}
	renamed = true

	return guildsync.SaveResult{BytesWritten: n, Etag: hex.EncodeToString(h.Sum(nil))}, nil
}

func tmpFileName() string {
	return ".t" + uuid.NewString()
}
