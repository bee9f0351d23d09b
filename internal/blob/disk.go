package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const partialDir = ".partial"

// DiskStore keeps artifacts as files in a single directory.
// Writes are staged under <root>/.partial and renamed into place.
type DiskStore struct {
	root    string
	partial string
	logger  *zap.Logger
}

var (
	_ Store          = (*DiskStore)(nil)
	_ PartialCleaner = (*DiskStore)(nil)
)

// NewDiskStore prepares root for use.
func NewDiskStore(root string, logger *zap.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	partial := filepath.Join(abs, partialDir)
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &DiskStore{root: abs, partial: partial, logger: logger}, nil
}

// Root returns the absolute storage directory.
func (s *DiskStore) Root() string { return s.root }

// Put streams r into a staging file, fsyncs it and renames it to key.
func (s *DiskStore) Put(ctx context.Context, key string, r io.Reader, size int64) (Object, error) {
	if !ValidKey(key) {
		return Object{}, ErrInvalidKey
	}

	tmp, err := os.CreateTemp(s.partial, key+"-*.part")
	if err != nil {
		return Object{}, fmt.Errorf("create staging file: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if success {
			return
		}
		_ = tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("remove staging file", zap.String("path", tmpName), zap.Error(rmErr))
		}
	}()

	written, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return Object{}, fmt.Errorf("write object: %w", err)
	}
	if size >= 0 && written != size {
		return Object{}, fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, written, size)
	}
	if err := tmp.Sync(); err != nil {
		return Object{}, fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close object: %w", err)
	}

	final := filepath.Join(s.root, key)
	if err := os.Rename(tmpName, final); err != nil {
		return Object{}, fmt.Errorf("publish object: %w", err)
	}
	success = true

	info, err := os.Stat(final)
	if err != nil {
		return Object{Key: key, Size: written}, nil
	}
	return Object{Key: key, Size: written, ModTime: info.ModTime()}, nil
}

// Open returns a reader for key.
func (s *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// Stat describes key without opening it.
func (s *DiskStore) Stat(_ context.Context, key string) (Object, error) {
	if !ValidKey(key) {
		return Object{}, ErrNotFound
	}
	info, err := os.Stat(filepath.Join(s.root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		return Object{}, ErrNotFound
	}
	return Object{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes key; a missing key is ignored.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List returns every published object.
func (s *DiskStore) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	out := make([]Object, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Object{Key: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// CleanPartials removes staging files last modified before olderThan.
func (s *DiskStore) CleanPartials(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.partial)
	if err != nil {
		return 0, fmt.Errorf("list staging files: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.partial, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove stale staging file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Ping checks that the storage root is still a directory.
func (s *DiskStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}
