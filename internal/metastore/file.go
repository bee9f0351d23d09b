package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileStore keeps the mapping in memory and persists it as one JSON document.
//
// Mutations are serialized by writeMu: each one clones the published map,
// applies a single change, writes the whole document to a temp file that is
// fsynced and renamed over the target, and only then publishes the new map.
// Readers take the published map under mu and never see a partial update.
type FileStore struct {
	path   string
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads (or creates) the mapping at path.
func OpenFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}

	records, err := readMapping(path)
	if err != nil {
		return nil, err
	}

	logger.Info("metadata store loaded", zap.String("path", path), zap.Int("records", len(records)))
	return &FileStore{path: path, logger: logger, records: records}, nil
}

func readMapping(path string) (map[string]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	records := map[string]Record{}
	if len(data) == 0 {
		return records, nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", path, err)
	}
	for key, entry := range raw {
		rec, err := decodeEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("decode metadata %s entry %q: %w", path, key, err)
		}
		if rec.Code == "" {
			rec.Code = key
		}
		records[key] = rec
	}
	return records, nil
}

// legacyRecord is the entry layout written by the first file-sharing server.
type legacyRecord struct {
	FilePath         string    `json:"filePath"`
	FileName         string    `json:"fileName"`
	OriginalFileName string    `json:"originalFileName"`
	ConversionType   string    `json:"conversionType"`
	FileSize         int64     `json:"fileSize"`
	CompressedSize   int64     `json:"compressedSize"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

func decodeEntry(entry json.RawMessage) (Record, error) {
	var rec Record
	if err := json.Unmarshal(entry, &rec); err != nil {
		return Record{}, err
	}
	if rec.StorageLocation != "" {
		return rec, nil
	}

	var old legacyRecord
	if err := json.Unmarshal(entry, &old); err != nil {
		return Record{}, err
	}
	if old.FilePath == "" {
		return rec, nil
	}
	rec = Record{
		StorageLocation: filepath.Base(strings.ReplaceAll(old.FilePath, `\`, "/")),
		DisplayName:     old.FileName,
		OriginalName:    old.OriginalFileName,
		Category:        old.ConversionType,
		SizeBytes:       old.FileSize,
		CreatedAt:       old.CreatedAt,
		ExpiresAt:       old.ExpiresAt,
	}
	// compression entries recorded the upload size and the stored size separately
	if old.CompressedSize > 0 {
		rec.SizeBytes = old.CompressedSize
		rec.SourceSizeBytes = old.FileSize
	}
	return rec, nil
}

// Put registers rec and persists the mapping before returning.
func (s *FileStore) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snapshot()
	if _, exists := current[rec.Code]; exists {
		return ErrDuplicateCode
	}

	next := maps.Clone(current)
	next[rec.Code] = rec
	if err := s.persist(next); err != nil {
		return err
	}
	s.publish(next)
	return nil
}

// Get returns the record for code.
func (s *FileStore) Get(_ context.Context, code string) (Record, error) {
	rec, ok := s.snapshot()[code]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Remove deletes the record for code and persists the mapping.
func (s *FileStore) Remove(ctx context.Context, code string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snapshot()
	rec, ok := current[code]
	if !ok {
		return Record{}, ErrNotFound
	}

	next := maps.Clone(current)
	delete(next, code)
	if err := s.persist(next); err != nil {
		return Record{}, err
	}
	s.publish(next)
	return rec, nil
}

// List returns every record ordered by creation time.
func (s *FileStore) List(_ context.Context) ([]Record, error) {
	current := s.snapshot()
	out := make([]Record, 0, len(current))
	for _, rec := range current {
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

// Ping checks that the metadata directory is reachable.
func (s *FileStore) Ping(_ context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

// Close is a no-op; every mutation is already durable.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

func (s *FileStore) publish(next map[string]Record) {
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

func (s *FileStore) persist(records map[string]Record) (err error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				s.logger.Warn("remove metadata temp file", zap.String("path", tmpName), zap.Error(rmErr))
			}
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	success = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry for a rename. Not every filesystem supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
