package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound signals that no object exists for the key.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that could escape the storage root.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrSizeMismatch means the stream did not carry the declared number of bytes.
	ErrSizeMismatch = errors.New("object size mismatch")
)

// Object describes a stored artifact.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store persists artifact bytes under flat keys.
type Store interface {
	// Put writes r under key. A size of -1 means unknown. The object becomes
	// visible only once every byte is written.
	Put(ctx context.Context, key string, r io.Reader, size int64) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Object, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Object, error)
	Ping(ctx context.Context) error
}

// Linker is implemented by stores that can hand out direct download URLs.
type Linker interface {
	PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// PartialCleaner is implemented by stores that stage writes locally.
type PartialCleaner interface {
	CleanPartials(ctx context.Context, olderThan time.Time) (int, error)
}

// ValidKey reports whether key is a single safe path segment.
func ValidKey(key string) bool {
	if key == "" || len(key) > 255 {
		return false
	}
	if strings.HasPrefix(key, ".") {
		return false
	}
	return !strings.ContainsAny(key, "/\\\x00")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
