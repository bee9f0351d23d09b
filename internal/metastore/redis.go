package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisKey  = "swiftshare:shares"
	maxWatchAttempts = 5
)

// RedisStore keeps records as JSON values in a single Redis hash keyed by code.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. An empty key selects the default hash name.
func NewRedisStore(client redis.UniversalClient, key string, logger *zap.Logger) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

// Put stores rec only if the code is not already present.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode share: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, s.key, rec.Code, payload).Result()
	if err != nil {
		return fmt.Errorf("put share: %w", err)
	}
	if !ok {
		return ErrDuplicateCode
	}
	return nil
}

// Get returns the record for code.
func (s *RedisStore) Get(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	raw, err := s.client.HGet(ctx, s.key, code).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get share: %w", err)
	}
	return decodeRecord(raw)
}

// Remove reads and deletes the record inside a WATCH transaction.
func (s *RedisStore) Remove(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var removed Record
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.key, code).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.key, code)
			return nil
		})
		if err != nil {
			return err
		}
		removed = rec
		return nil
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		switch {
		case err == nil:
			return removed, nil
		case errors.Is(err, ErrNotFound):
			return Record{}, ErrNotFound
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return Record{}, fmt.Errorf("remove share: %w", err)
		}
	}
	return Record{}, fmt.Errorf("remove share: %w", redis.TxFailedErr)
}

// List returns every decodable record ordered by creation time.
// Entries that fail to decode are logged and left out.
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	out := make([]Record, 0, len(entries))
	for code, v := range entries {
		rec, err := decodeRecord([]byte(v))
		if err != nil {
			s.logger.Warn("skipping undecodable share", zap.String("code", code), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode share: %w", err)
	}
	return rec, nil
}
