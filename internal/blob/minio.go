package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// MinIOStore keeps artifacts as objects under a prefix of one bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

var (
	_ Store  = (*MinIOStore)(nil)
	_ Linker = (*MinIOStore)(nil)
)

// NewMinIOStore constructs an adapter.
func NewMinIOStore(client *minio.Client, bucket, prefix string) *MinIOStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &MinIOStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinIOStore) objectName(key string) string {
	return s.prefix + key
}

// Put uploads r. MinIO only commits the object after the upload completes.
func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64) (Object, error) {
	if !ValidKey(key) {
		return Object{}, ErrInvalidKey
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return Object{}, fmt.Errorf("store object: %w", err)
	}
	if size >= 0 && info.Size != size {
		_ = s.client.RemoveObject(context.WithoutCancel(ctx), s.bucket, s.objectName(key), minio.RemoveObjectOptions{})
		return Object{}, fmt.Errorf("%w: stored %d of %d bytes", ErrSizeMismatch, info.Size, size)
	}
	return Object{Key: key, Size: info.Size, ModTime: info.LastModified}, nil
}

// Open fetches the object. GetObject is lazy, so the object is stat'ed first.
func (s *MinIOStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinIOError(err, "fetch object")
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateMinIOError(err, "fetch object")
	}
	return obj, nil
}

// Stat describes key.
func (s *MinIOStore) Stat(ctx context.Context, key string) (Object, error) {
	if !ValidKey(key) {
		return Object{}, ErrNotFound
	}
	info, err := s.client.StatObject(ctx, s.bucket, s.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		return Object{}, translateMinIOError(err, "stat object")
	}
	return Object{Key: key, Size: info.Size, ModTime: info.LastModified}, nil
}

// Delete removes key. S3 deletes are idempotent.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(translateMinIOError(err, ""), ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// List returns every object under the prefix.
func (s *MinIOStore) List(ctx context.Context) ([]Object, error) {
	var out []Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		key := strings.TrimPrefix(obj.Key, s.prefix)
		if !ValidKey(key) {
			continue
		}
		out = append(out, Object{Key: key, Size: obj.Size, ModTime: obj.LastModified})
	}
	return out, nil
}

// PresignGet returns a time-limited download URL that names the file as filename.
func (s *MinIOStore) PresignGet(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.objectName(key), expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func translateMinIOError(err error, op string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchObject":
		return ErrNotFound
	}
	if op == "" {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
