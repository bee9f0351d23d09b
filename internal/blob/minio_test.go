package blob

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduss/swiftshare/internal/config"
	"github.com/abduss/swiftshare/internal/storage"
)

func TestMinIOStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("SWIFTSHARE_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("SWIFTSHARE_TEST_MINIO_ENDPOINT not set")
	}

	cfg := config.MinIOConfig{
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("MINIO_ROOT_USER"),
		SecretAccessKey: os.Getenv("MINIO_ROOT_PASSWORD"),
		Bucket:          "swiftshare-test",
	}
	client, err := storage.NewMinIOClient(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, storage.EnsureBucket(ctx, client, cfg))

	s := NewMinIOStore(client, cfg.Bucket, "it-"+time.Now().Format("150405"))
	require.NoError(t, s.Ping(ctx))

	_, err = s.Put(ctx, "MINIO00001.txt", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	defer s.Delete(ctx, "MINIO00001.txt")

	rc, err := s.Open(ctx, "MINIO00001.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	link, err := s.PresignGet(ctx, "MINIO00001.txt", "hello.txt", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "MINIO00001.txt")

	require.NoError(t, s.Delete(ctx, "MINIO00001.txt"))
	_, err = s.Stat(ctx, "MINIO00001.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, "MINIO00001.txt"))
}
