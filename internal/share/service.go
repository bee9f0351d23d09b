package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/blob"
	sharecode "github.com/abduss/swiftshare/internal/code"
	"github.com/abduss/swiftshare/internal/metastore"
)

const (
	// DefaultLinkTTL bounds presigned links when the caller does not ask for less.
	DefaultLinkTTL = 15 * time.Minute
	maxLinkTTL     = 7 * 24 * time.Hour
)

type recordReader interface {
	Get(ctx context.Context, code string) (metastore.Record, error)
}

type objectReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (blob.Object, error)
}

type codeValidator interface {
	Valid(code string) bool
}

// Service resolves codes for retrieval. It never modifies records.
type Service struct {
	meta  recordReader
	blobs objectReader
	codes codeValidator
	opts  options
}

// NewService constructs a retrieval service. codes may be nil to skip format checks.
func NewService(meta recordReader, blobs objectReader, codes codeValidator, opts ...Option) *Service {
	return &Service{meta: meta, blobs: blobs, codes: codes, opts: buildOptions(opts)}
}

// Get returns the artifact stream and its record. The caller closes the stream.
func (s *Service) Get(ctx context.Context, code string) (io.ReadCloser, Record, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		s.opts.observer.ShareRetrieved(false)
		return nil, Record{}, err
	}

	rc, err := s.blobs.Open(ctx, rec.StorageLocation)
	if err != nil {
		s.opts.observer.ShareRetrieved(false)
		if errors.Is(err, blob.ErrNotFound) {
			s.opts.logger.Warn("share bytes missing", zap.String("code", rec.Code), zap.String("key", rec.StorageLocation))
			return nil, Record{}, ErrNotFound
		}
		return nil, Record{}, fmt.Errorf("%w: open bytes: %w", ErrStorageFailure, err)
	}

	s.opts.observer.ShareRetrieved(true)
	return rc, rec, nil
}

// Peek returns the preview of a share without touching byte storage.
func (s *Service) Peek(ctx context.Context, code string) (Summary, error) {
	rec, err := s.lookup(ctx, code)
	if err != nil {
		return Summary{}, err
	}
	return summarize(rec), nil
}

// Link returns a presigned download URL valid for at most ttl and never past the share's expiry.
func (s *Service) Link(ctx context.Context, code string, ttl time.Duration) (Link, error) {
	linker, ok := s.blobs.(blob.Linker)
	if !ok {
		return Link{}, ErrLinkUnsupported
	}

	rec, err := s.lookup(ctx, code)
	if err != nil {
		return Link{}, err
	}
	if _, err := s.blobs.Stat(ctx, rec.StorageLocation); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return Link{}, ErrNotFound
		}
		return Link{}, fmt.Errorf("%w: stat bytes: %w", ErrStorageFailure, err)
	}

	now := s.opts.nowFunc()
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	expiry := min(ttl, maxLinkTTL, rec.ExpiresAt.Sub(now))
	if expiry < time.Second {
		return Link{}, ErrNotFound
	}

	url, err := linker.PresignGet(ctx, rec.StorageLocation, rec.DisplayName, expiry)
	if err != nil {
		return Link{}, fmt.Errorf("%w: presign: %w", ErrStorageFailure, err)
	}
	return Link{URL: url, ExpiresAt: now.Add(expiry)}, nil
}

// lookup applies the not-found rules shared by every read path.
func (s *Service) lookup(ctx context.Context, code string) (Record, error) {
	code = sharecode.Normalize(code)
	if code == "" || (s.codes != nil && !s.codes.Valid(code)) {
		return Record{}, ErrNotFound
	}

	rec, err := s.meta.Get(ctx, code)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: lookup: %w", ErrStorageFailure, err)
	}
	if rec.Expired(s.opts.nowFunc()) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
