package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/blob"
)

const defaultOrphanGrace = 10 * time.Minute

// SweeperConfig controls the reclamation schedule.
type SweeperConfig struct {
	Interval     time.Duration
	SweepOnStart bool
	// OrphanGrace keeps staging files younger than this out of cleanup.
	OrphanGrace time.Duration
}

// Sweeper periodically deletes expired shares and repairs storage drift.
// At most one pass runs at a time; ticks that find a pass running are skipped.
type Sweeper struct {
	manager *Manager
	cfg     SweeperConfig
	logger  *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewSweeper builds a sweeper around manager.
func NewSweeper(manager *Manager, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.OrphanGrace <= 0 {
		cfg.OrphanGrace = defaultOrphanGrace
	}
	return &Sweeper{
		manager: manager,
		cfg:     cfg,
		logger:  manager.opts.logger.Named("sweeper"),
	}
}

// Run ticks until ctx is cancelled, then waits for an in-flight pass.
func (s *Sweeper) Run(ctx context.Context) {
	defer s.wg.Wait()

	if s.cfg.SweepOnStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Sweeper) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sweep still running, skipping tick")
		s.manager.opts.observer.SweepSkipped()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	}()
}

// Sweep runs one pass now. It returns ErrSweepInProgress if a pass is already running.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.manager.opts.observer.SweepSkipped()
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.running.Store(false)
	return s.pass(ctx)
}

func (s *Sweeper) pass(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	now := s.manager.now()
	var report SweepReport

	records, err := s.manager.meta.List(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: list records: %w", ErrStorageFailure, err)
	}

	// storage locations still claimed by a record after this loop
	claimed := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if rec.Expired(now) {
			_, err := s.manager.delete(ctx, rec.Code, ReasonExpired)
			switch {
			case err == nil:
				report.Expired++
			case errors.Is(err, ErrNotFound):
			default:
				report.Failures++
				claimed[rec.StorageLocation] = struct{}{}
				s.logger.Warn("expire share", zap.String("code", rec.Code), zap.Error(err))
			}
			continue
		}

		claimed[rec.StorageLocation] = struct{}{}
		_, err := s.manager.blobs.Stat(ctx, rec.StorageLocation)
		if err == nil {
			continue
		}
		if !errors.Is(err, blob.ErrNotFound) {
			report.Failures++
			s.logger.Warn("stat share bytes", zap.String("code", rec.Code), zap.Error(err))
			continue
		}
		removed, err := s.manager.removeDangling(ctx, rec)
		if err != nil {
			report.Failures++
			s.logger.Warn("remove dangling record", zap.String("code", rec.Code), zap.Error(err))
			continue
		}
		if removed {
			report.DanglingRecords++
			s.logger.Info("removed record without bytes", zap.String("code", rec.Code))
		}
	}

	objects, err := s.manager.blobs.List(ctx)
	if err != nil {
		report.Failures++
		s.logger.Warn("list stored objects", zap.Error(err))
	}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := claimed[obj.Key]; ok {
			continue
		}
		removed, err := s.manager.removeOrphan(ctx, obj.Key)
		if err != nil {
			report.Failures++
			s.logger.Warn("remove orphan object", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		if removed {
			report.OrphanObjects++
			s.logger.Info("removed bytes without record", zap.String("key", obj.Key))
		}
	}

	if cleaner, ok := s.manager.blobs.(blob.PartialCleaner); ok {
		n, err := cleaner.CleanPartials(ctx, time.Now().Add(-s.cfg.OrphanGrace))
		report.PartialFiles = n
		if err != nil {
			report.Failures++
			s.logger.Warn("clean staging files", zap.Error(err))
		}
	}

	report.Duration = time.Since(started)
	s.manager.opts.observer.SweepFinished(report)
	s.logger.Info("sweep finished",
		zap.Int("records", len(records)),
		zap.Int("expired", report.Expired),
		zap.Int("dangling", report.DanglingRecords),
		zap.Int("orphans", report.OrphanObjects),
		zap.Int("partials", report.PartialFiles),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
