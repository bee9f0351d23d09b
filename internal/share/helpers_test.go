package share

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abduss/swiftshare/internal/blob"
	sharecode "github.com/abduss/swiftshare/internal/code"
	"github.com/abduss/swiftshare/internal/metastore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedGenerator hands out codes in order and repeats the last one forever.
type scriptedGenerator struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (g *scriptedGenerator) Generate() (string, error) {
	g.mu.Lock()
	idx := min(g.calls, len(g.codes)-1)
	g.calls++
	c := g.codes[idx]
	g.mu.Unlock()
	return c, nil
}

// Valid accepts any code of the scripted length.
func (g *scriptedGenerator) Valid(code string) bool {
	return len(code) == len(g.codes[0])
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// faultyMeta wraps a real store to inject failures and count reads.
type faultyMeta struct {
	metastore.Store
	mu     sync.Mutex
	putErr error
	gets   int
}

func (f *faultyMeta) Put(ctx context.Context, rec metastore.Record) error {
	f.mu.Lock()
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Put(ctx, rec)
}

func (f *faultyMeta) Get(ctx context.Context, code string) (metastore.Record, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()
	return f.Store.Get(ctx, code)
}

func (f *faultyMeta) Gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// faultyBlobs wraps a real byte store to inject failures, count access and block List.
type faultyBlobs struct {
	blob.Store
	mu          sync.Mutex
	deleteErr   error
	deleteKey   string
	calls       int
	listEntered chan struct{}
	listGate    chan struct{}
}

func (f *faultyBlobs) touch() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *faultyBlobs) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *faultyBlobs) SetDeleteErr(err error) {
	f.SetDeleteErrFor("", err)
}

// SetDeleteErrFor makes Delete fail with err for key only.
func (f *faultyBlobs) SetDeleteErrFor(key string, err error) {
	f.mu.Lock()
	f.deleteKey = key
	f.deleteErr = err
	f.mu.Unlock()
}

func (f *faultyBlobs) Put(ctx context.Context, key string, r io.Reader, size int64) (blob.Object, error) {
	f.touch()
	return f.Store.Put(ctx, key, r, size)
}

func (f *faultyBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.touch()
	return f.Store.Open(ctx, key)
}

func (f *faultyBlobs) Stat(ctx context.Context, key string) (blob.Object, error) {
	f.touch()
	return f.Store.Stat(ctx, key)
}

func (f *faultyBlobs) Delete(ctx context.Context, key string) error {
	f.touch()
	f.mu.Lock()
	err := f.deleteErr
	if f.deleteKey != "" && f.deleteKey != key {
		err = nil
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultyBlobs) List(ctx context.Context) ([]blob.Object, error) {
	f.touch()
	if f.listEntered != nil {
		f.listEntered <- struct{}{}
		<-f.listGate
	}
	return f.Store.List(ctx)
}

// gatedReader signals entered on its first Read, then blocks until gate is closed.
type gatedReader struct {
	entered chan<- struct{}
	gate    <-chan struct{}
	r       io.Reader
	once    sync.Once
}

func (g *gatedReader) Read(p []byte) (int, error) {
	g.once.Do(func() {
		if g.entered != nil {
			close(g.entered)
		}
		<-g.gate
	})
	return g.r.Read(p)
}

type fixture struct {
	clock   *fakeClock
	meta    *faultyMeta
	blobs   *faultyBlobs
	disk    *blob.DiskStore
	codes   *sharecode.Generator
	manager *Manager
	service *Service
	sweeper *Sweeper
}

func newFixture(t *testing.T, gen codeGenerator, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := metastore.OpenFileStore(filepath.Join(dir, "data", "files.json"), nil)
	require.NoError(t, err)
	disk, err := blob.NewDiskStore(filepath.Join(dir, "uploads"), nil)
	require.NoError(t, err)
	codes, err := sharecode.NewGenerator(0, "")
	require.NoError(t, err)
	if gen == nil {
		gen = codes
	}

	f := &fixture{
		clock: newFakeClock(),
		meta:  &faultyMeta{Store: fileStore},
		blobs: &faultyBlobs{Store: disk},
		disk:  disk,
		codes: codes,
	}
	all := append([]Option{WithClock(f.clock.Now)}, opts...)
	f.manager = NewManager(f.meta, f.blobs, gen, all...)
	f.service = NewService(f.meta, f.blobs, codes, all...)
	f.sweeper = NewSweeper(f.manager, SweeperConfig{Interval: time.Hour})
	return f
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}
