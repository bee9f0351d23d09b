package metastore

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedisListSkipsUndecodableEntries(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	core, logs := observer.New(zapcore.WarnLevel)
	s := NewRedisStore(client, "shares:test", zap.New(core))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testRecord("GOODGOOD01", 0)))
	require.NoError(t, s.Put(ctx, testRecord("GOODGOOD02", 1)))
	require.NoError(t, client.HSet(ctx, "shares:test", "BROKEN0001", "{not json").Err())

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "GOODGOOD01", list[0].Code)
	assert.Equal(t, "GOODGOOD02", list[1].Code)

	entries := logs.FilterMessage("skipping undecodable share").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "BROKEN0001", entries[0].ContextMap()["code"])
}
