package share

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduss/swiftshare/internal/blob"
)

func TestSweepOnEmptyStoresIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 2; i++ {
		report, err := f.sweeper.Sweep(context.Background())
		require.NoError(t, err)
		assert.Zero(t, report.Expired+report.DanglingRecords+report.OrphanObjects+report.PartialFiles+report.Failures)
	}
}

func TestSweepKeepsLiveShares(t *testing.T) {
	f := newFixture(t, nil, WithTTL(time.Hour))
	ctx := context.Background()

	rec, err := f.manager.Create(ctx, CreateInput{Source: strings.NewReader("live"), DisplayName: "l.txt", Size: 4})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Expired)

	rc, _, err := f.service.Get(ctx, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, "live", readAll(t, rc))
}

func TestSweepRemovesOrphanBytes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.disk.Put(ctx, "ORPHAN0001.bin", strings.NewReader("stray"), 5)
	require.NoError(t, err)

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanObjects)

	_, err = f.disk.Stat(ctx, "ORPHAN0001.bin")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	report, err = f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.OrphanObjects)
}

func TestSweepRemovesDanglingRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec, err := f.manager.Create(ctx, CreateInput{Source: strings.NewReader("gone"), DisplayName: "g.txt", Size: 4})
	require.NoError(t, err)
	require.NoError(t, f.disk.Delete(ctx, rec.StorageLocation))

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DanglingRecords)

	_, err = f.service.Peek(ctx, rec.Code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepLeavesForeignFiles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, key := range []string{"files.json", "shares.db", "shares.db-wal", "README"} {
		_, err := f.disk.Put(ctx, key, strings.NewReader("keep"), 4)
		require.NoError(t, err)
	}

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.OrphanObjects)
	assert.Zero(t, report.Failures)

	for _, key := range []string{"files.json", "shares.db", "shares.db-wal", "README"} {
		_, err := f.disk.Stat(ctx, key)
		assert.NoError(t, err, key)
	}
}

func TestSweepContinuesPastFailedCleanup(t *testing.T) {
	f := newFixture(t, nil, WithTTL(time.Hour))
	ctx := context.Background()

	var recs []Record
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		rec, err := f.manager.Create(ctx, CreateInput{Source: strings.NewReader(name), DisplayName: name, Size: int64(len(name))})
		require.NoError(t, err)
		recs = append(recs, rec)
		f.clock.Advance(time.Second)
	}
	f.clock.Advance(2 * time.Hour)

	stuck := recs[1]
	f.blobs.SetDeleteErrFor(stuck.StorageLocation, errors.New("device busy"))

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Expired)
	assert.Equal(t, 1, report.Failures)
	assert.Zero(t, report.OrphanObjects)

	for _, rec := range []Record{recs[0], recs[2]} {
		_, err := f.disk.Stat(ctx, rec.StorageLocation)
		assert.ErrorIs(t, err, blob.ErrNotFound, rec.Code)
	}
	_, err = f.disk.Stat(ctx, stuck.StorageLocation)
	require.NoError(t, err)

	f.blobs.SetDeleteErr(nil)
	report, err = f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanObjects)
	assert.Zero(t, report.Failures)

	_, err = f.disk.Stat(ctx, stuck.StorageLocation)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestSweepSkipsCodesHeldByCreate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// bytes published but the record not yet written
	_, err := f.disk.Put(ctx, "INFLIGHT01.txt", strings.NewReader("x"), 1)
	require.NoError(t, err)
	require.True(t, f.manager.tryReserve("INFLIGHT01"))

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.OrphanObjects)
	_, err = f.disk.Stat(ctx, "INFLIGHT01.txt")
	require.NoError(t, err)

	f.manager.release("INFLIGHT01")
	report, err = f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanObjects)
}

func TestSweepCleansStaleStagingFiles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	staging := filepath.Join(f.disk.Root(), ".partial")
	stale := filepath.Join(staging, "STALE00001-1.part")
	fresh := filepath.Join(staging, "FRESH00001-1.part")
	require.NoError(t, os.WriteFile(stale, []byte("half"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("half"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PartialFiles)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestSweepSkipsWhileRunning(t *testing.T) {
	f := newFixture(t, nil)
	f.blobs.listEntered = make(chan struct{})
	f.blobs.listGate = make(chan struct{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.sweeper.Sweep(ctx)
		assert.NoError(t, err)
	}()

	<-f.blobs.listEntered
	_, err := f.sweeper.Sweep(ctx)
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(f.blobs.listGate)
	wg.Wait()

	f.blobs.listEntered = nil
	_, err = f.sweeper.Sweep(ctx)
	assert.NoError(t, err)
}

type countingObserver struct {
	noopObserver
	mu      sync.Mutex
	reports []SweepReport
	deleted map[string]int
}

func (o *countingObserver) SweepFinished(r SweepReport) {
	o.mu.Lock()
	o.reports = append(o.reports, r)
	o.mu.Unlock()
}

func (o *countingObserver) ShareDeleted(reason string) {
	o.mu.Lock()
	if o.deleted == nil {
		o.deleted = make(map[string]int)
	}
	o.deleted[reason]++
	o.mu.Unlock()
}

func (o *countingObserver) snapshot() ([]SweepReport, map[string]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	deleted := make(map[string]int, len(o.deleted))
	for k, v := range o.deleted {
		deleted[k] = v
	}
	return append([]SweepReport(nil), o.reports...), deleted
}

func TestRunSweepsOnStartAndStops(t *testing.T) {
	obs := &countingObserver{}
	f := newFixture(t, nil, WithTTL(time.Hour), WithObserver(obs))
	ctx := context.Background()

	rec, err := f.manager.Create(ctx, CreateInput{Source: strings.NewReader("old"), DisplayName: "o.txt", Size: 3})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	sweeper := NewSweeper(f.manager, SweeperConfig{Interval: time.Hour, SweepOnStart: true})
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		sweeper.Run(runCtx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		reports, _ := obs.snapshot()
		return len(reports) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}

	reports, deleted := obs.snapshot()
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Expired)
	assert.Equal(t, 1, deleted[ReasonExpired])

	_, err = f.disk.Stat(ctx, rec.StorageLocation)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}
