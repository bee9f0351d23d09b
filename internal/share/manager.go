package share

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/blob"
	"github.com/abduss/swiftshare/internal/metastore"
)

const (
	cleanupTimeout  = 30 * time.Second
	maxExtensionLen = 16
)

type codeGenerator interface {
	Generate() (string, error)
	Valid(code string) bool
}

// Manager creates and deletes shares, keeping stored bytes and metadata in step.
//
// Every operation on a code holds it in the reservation set for its duration,
// so a create, a delete and a sweeper repair never work on the same code at once.
type Manager struct {
	meta  metastore.Store
	blobs blob.Store
	codes codeGenerator
	opts  options

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewManager constructs a lifecycle manager.
func NewManager(meta metastore.Store, blobs blob.Store, codes codeGenerator, opts ...Option) *Manager {
	return &Manager{
		meta:    meta,
		blobs:   blobs,
		codes:   codes,
		opts:    buildOptions(opts),
		pending: make(map[string]struct{}),
	}
}

// TTL reports the retention applied to new shares.
func (m *Manager) TTL() time.Duration { return m.opts.ttl }

// Create stores the artifact bytes and registers a record under a fresh code.
// Metadata is written only after the bytes are fully persisted; any failure
// after the byte write removes the bytes again.
func (m *Manager) Create(ctx context.Context, in CreateInput) (Record, error) {
	if in.Source == nil {
		return Record{}, fmt.Errorf("%w: missing artifact bytes", ErrInvalidInput)
	}
	if m.opts.maxSize > 0 && in.Size > m.opts.maxSize {
		return Record{}, ErrTooLarge
	}

	displayName := sanitizeName(in.DisplayName)
	code, err := m.reserve(ctx)
	if err != nil {
		return Record{}, err
	}
	defer m.release(code)

	key := storageKey(code, displayName)
	logger := m.opts.logger.With(zap.String("code", code), zap.String("key", key))

	src := in.Source
	if m.opts.maxSize > 0 {
		src = io.LimitReader(src, m.opts.maxSize+1)
	}
	hasher := blake3.New()
	src = io.TeeReader(src, hasher)

	obj, err := m.blobs.Put(ctx, key, src, in.Size)
	if err != nil {
		m.discard(ctx, key, logger)
		if errors.Is(err, blob.ErrSizeMismatch) {
			return Record{}, fmt.Errorf("%w: incomplete upload: %w", ErrInvalidInput, err)
		}
		return Record{}, fmt.Errorf("%w: store bytes: %w", ErrStorageFailure, err)
	}
	if m.opts.maxSize > 0 && obj.Size > m.opts.maxSize {
		m.discard(ctx, key, logger)
		return Record{}, ErrTooLarge
	}
	if in.Size >= 0 {
		// The store may stop at the declared size; a longer stream is not the declared artifact.
		if extra, _ := io.CopyN(io.Discard, src, 1); extra > 0 {
			m.discard(ctx, key, logger)
			return Record{}, fmt.Errorf("%w: upload longer than declared %d bytes", ErrInvalidInput, in.Size)
		}
	}

	now := m.opts.nowFunc()
	rec := Record{
		Code:            code,
		StorageLocation: key,
		DisplayName:     displayName,
		OriginalName:    strings.TrimSpace(in.OriginalName),
		Category:        strings.TrimSpace(in.Category),
		SizeBytes:       obj.Size,
		SourceSizeBytes: in.SourceSize,
		Checksum:        hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.opts.ttl),
	}

	if err := m.meta.Put(ctx, rec); err != nil {
		m.discard(ctx, key, logger)
		if errors.Is(err, metastore.ErrDuplicateCode) {
			// Only possible if another writer shares the metadata store.
			logger.Error("code registered concurrently despite reservation")
		}
		return Record{}, fmt.Errorf("%w: register share: %w", ErrStorageFailure, err)
	}

	m.opts.observer.ShareCreated(rec.Category, rec.SizeBytes)
	logger.Info("share created",
		zap.String("category", rec.Category),
		zap.Int64("size_bytes", rec.SizeBytes),
		zap.Time("expires_at", rec.ExpiresAt),
	)
	return rec, nil
}

// Delete removes a share: metadata first, then bytes. If the byte removal
// fails the record is already gone and the sweeper reclaims the bytes.
// It returns ErrBusy if another operation holds the code; retry later.
func (m *Manager) Delete(ctx context.Context, code string) (Record, error) {
	return m.delete(ctx, code, ReasonManual)
}

func (m *Manager) delete(ctx context.Context, code, reason string) (Record, error) {
	if !m.tryReserve(code) {
		return Record{}, ErrBusy
	}
	defer m.release(code)

	rec, err := m.meta.Remove(ctx, code)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: unregister share: %w", ErrStorageFailure, err)
	}

	if err := m.blobs.Delete(ctx, rec.StorageLocation); err != nil {
		m.opts.logger.Warn("share bytes left behind",
			zap.String("code", code),
			zap.String("key", rec.StorageLocation),
			zap.Error(err),
		)
		return rec, fmt.Errorf("%w: remove bytes: %w", ErrStorageFailure, err)
	}

	m.opts.observer.ShareDeleted(reason)
	m.opts.logger.Info("share deleted", zap.String("code", code), zap.String("reason", reason))
	return rec, nil
}

// removeDangling drops rec if its bytes are still missing once the code is held.
func (m *Manager) removeDangling(ctx context.Context, rec Record) (bool, error) {
	if !m.tryReserve(rec.Code) {
		return false, nil
	}
	defer m.release(rec.Code)

	_, err := m.blobs.Stat(ctx, rec.StorageLocation)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return false, err
	}

	if _, err := m.meta.Remove(ctx, rec.Code); err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	m.opts.observer.ShareDeleted(ReasonDangling)
	return true, nil
}

// removeOrphan deletes key unless a record claims it once the code is held.
// Keys that do not start with an issuable code were not written by a create
// and are left alone.
func (m *Manager) removeOrphan(ctx context.Context, key string) (bool, error) {
	code := codeFromKey(key)
	if !m.codes.Valid(code) {
		m.opts.logger.Warn("foreign file in byte storage, not removing", zap.String("key", key))
		return false, nil
	}
	if !m.tryReserve(code) {
		// a create for this code is still writing
		return false, nil
	}
	defer m.release(code)

	rec, err := m.meta.Get(ctx, code)
	switch {
	case err == nil && rec.StorageLocation == key:
		return false, nil
	case err != nil && !errors.Is(err, metastore.ErrNotFound):
		return false, err
	}

	if err := m.blobs.Delete(ctx, key); err != nil {
		return false, err
	}
	m.opts.observer.ShareDeleted(ReasonOrphan)
	return true, nil
}

// reserve draws codes until one is free in both the reservation set and the store.
func (m *Manager) reserve(ctx context.Context) (string, error) {
	var code string
	err := retry.Do(
		func() error {
			candidate, err := m.codes.Generate()
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: generate code: %w", ErrStorageFailure, err))
			}
			if err := m.claim(ctx, candidate); err != nil {
				return err
			}
			code = candidate
			return nil
		},
		retry.Attempts(m.opts.maxAttempts),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, metastore.ErrDuplicateCode)
		}),
		retry.OnRetry(func(n uint, err error) {
			m.opts.logger.Debug("code collision, drawing again", zap.Uint("attempt", n+1))
		}),
	)
	if err != nil {
		if errors.Is(err, metastore.ErrDuplicateCode) {
			m.opts.logger.Error("no free code found", zap.Uint("attempts", m.opts.maxAttempts))
			return "", ErrCodeSpaceExhausted
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", ctxErr
		}
		return "", err
	}
	return code, nil
}

func (m *Manager) claim(ctx context.Context, code string) error {
	if !m.tryReserve(code) {
		return metastore.ErrDuplicateCode
	}
	_, err := m.meta.Get(ctx, code)
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		return nil
	case err == nil:
		m.release(code)
		return metastore.ErrDuplicateCode
	default:
		m.release(code)
		return fmt.Errorf("%w: check code: %w", ErrStorageFailure, err)
	}
}

func (m *Manager) tryReserve(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.pending[code]; busy {
		return false
	}
	m.pending[code] = struct{}{}
	return true
}

func (m *Manager) release(code string) {
	m.mu.Lock()
	delete(m.pending, code)
	m.mu.Unlock()
}

// discard removes bytes of a failed create even if the request was cancelled.
func (m *Manager) discard(ctx context.Context, key string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := m.blobs.Delete(ctx, key); err != nil {
		logger.Warn("discard partial share", zap.Error(err))
	}
}

func (m *Manager) now() time.Time { return m.opts.nowFunc() }

func storageKey(code, displayName string) string {
	ext := strings.ToLower(path.Ext(displayName))
	if len(ext) < 2 || len(ext) > maxExtensionLen {
		return code
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return code
		}
	}
	return code + ext
}

// codeFromKey returns the code prefix of a storage key. Keys written by older
// releases may carry a suffix such as "_compressed.zip".
func codeFromKey(key string) string {
	if i := strings.IndexAny(key, "._"); i >= 0 {
		return key[:i]
	}
	return key
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' || r == '"' {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "file"
	}
	return name
}
