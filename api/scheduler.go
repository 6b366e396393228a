/*
scheduler.go - Periodic snapshot scheduler

PURPOSE:
  Periodically computes a Summary for every tracked (owner, jurisdiction)
  pair, stores it as a Snapshot, and raises an alert when the status band
  moved since the previous snapshot. Snapshots feed the history charts.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Pairs are processed concurrently, bounded by Concurrency
  - One failing pair is logged and counted; the rest still run
  - The previous snapshot is read BEFORE the new one is written, so the
    alert compares against the last observed state

CONFIGURATION:
  - Interval:    How often to run (default: 1 hour)
  - Concurrency: Max pairs in flight (default: 4)
  - Enabled:     Whether the ticker is started at all

USAGE:
  scheduler := NewSnapshotScheduler(store, registry, calc, dispatcher, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunSnapshots endpoint (manual pass)
  - alerts/alerts.go: Transition detection
*/
package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warp/staycount/alerts"
	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/metrics"
	"github.com/warp/staycount/store/sqlite"
)

// SnapshotScheduler writes periodic snapshots and dispatches alerts.
type SnapshotScheduler struct {
	Store       *sqlite.Store
	Rules       generic.RuleSource
	Calculator  *generic.Calculator
	Alerts      *alerts.Dispatcher
	Logger      zerolog.Logger
	Interval    time.Duration
	Concurrency int
	Enabled     bool

	// Now returns the reference date. Nil means generic.Today().
	Now func() generic.TimePoint

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunResult counts what a pass did.
type RunResult struct {
	Written int
	Alerts  int
	Failed  int
}

// NewSnapshotScheduler creates a new scheduler.
func NewSnapshotScheduler(store *sqlite.Store, rules generic.RuleSource, calc *generic.Calculator, dispatcher *alerts.Dispatcher, logger zerolog.Logger) *SnapshotScheduler {
	return &SnapshotScheduler{
		Store:       store,
		Rules:       rules,
		Calculator:  calc,
		Alerts:      dispatcher,
		Logger:      logger.With().Str("component", "snapshots").Logger(),
		Interval:    1 * time.Hour,
		Concurrency: 4,
		Enabled:     true,
	}
}

// Start begins the scheduler.
func (s *SnapshotScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("Snapshot scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info().Dur("interval", s.Interval).Msg("Snapshot scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info().Msg("Snapshot scheduler stopped")
	}
}

func (s *SnapshotScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *SnapshotScheduler) tick() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunNow(ctx, generic.SnapshotScheduled); err != nil {
		s.Logger.Error().Err(err).Msg("Snapshot pass failed")
	}
}

func (s *SnapshotScheduler) today() generic.TimePoint {
	if s.Now == nil {
		return generic.Today()
	}
	return s.Now()
}

type trackedPair struct {
	owner generic.OwnerID
	code  generic.JurisdictionCode
}

// RunNow snapshots every tracked pair once. The returned error is only set
// when the tracked pairs could not be listed; per-pair failures are
// counted in RunResult.Failed.
func (s *SnapshotScheduler) RunNow(ctx context.Context, reason generic.SnapshotReason) (RunResult, error) {
	start := time.Now()
	defer func() { metrics.SnapshotJobDuration.Observe(time.Since(start).Seconds()) }()

	tracked, err := s.Store.AllTracked(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("list tracked jurisdictions: %w", err)
	}

	var pairs []trackedPair
	for owner, codes := range tracked {
		for _, code := range codes {
			pairs = append(pairs, trackedPair{owner: owner, code: code})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].owner != pairs[j].owner {
			return pairs[i].owner < pairs[j].owner
		}
		return pairs[i].code < pairs[j].code
	})

	result := s.process(ctx, pairs, reason)

	s.Logger.Info().
		Int("pairs", len(pairs)).
		Int("written", result.Written).
		Int("alerts", result.Alerts).
		Int("failed", result.Failed).
		Str("reason", string(reason)).
		Dur("took", time.Since(start)).
		Msg("Snapshot pass completed")
	return result, nil
}

// SnapshotOwner snapshots every jurisdiction owner tracks. Used after trip edits.
func (s *SnapshotScheduler) SnapshotOwner(ctx context.Context, owner generic.OwnerID, reason generic.SnapshotReason) (RunResult, error) {
	codes, err := s.Store.Tracked(ctx, owner)
	if err != nil {
		return RunResult{}, fmt.Errorf("list tracked jurisdictions for %q: %w", owner, err)
	}
	pairs := make([]trackedPair, len(codes))
	for i, code := range codes {
		pairs[i] = trackedPair{owner: owner, code: code}
	}
	return s.process(ctx, pairs, reason), nil
}

func (s *SnapshotScheduler) process(ctx context.Context, pairs []trackedPair, reason generic.SnapshotReason) RunResult {
	var written, alerted, failed atomic.Int64
	ref := s.today()

	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, p := range pairs {
		g.Go(func() error {
			// A failed pair must not cancel its siblings, so errors are
			// logged here and never returned to the group.
			raised, err := s.snapshotPair(gctx, p, ref, reason)
			if err != nil {
				failed.Add(1)
				s.Logger.Error().Err(err).
					Str("owner", string(p.owner)).
					Str("jurisdiction", string(p.code)).
					Msg("Snapshot failed")
				return nil
			}
			written.Add(1)
			if raised {
				alerted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return RunResult{
		Written: int(written.Load()),
		Alerts:  int(alerted.Load()),
		Failed:  int(failed.Load()),
	}
}

func (s *SnapshotScheduler) snapshotPair(ctx context.Context, p trackedPair, ref generic.TimePoint, reason generic.SnapshotReason) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rule, err := s.Rules.GetRule(ctx, p.code)
	if err != nil {
		return false, err
	}

	owner := p.owner
	trips, err := s.Store.ListTrips(ctx, generic.TripFilter{Owner: &owner})
	if err != nil {
		return false, fmt.Errorf("list trips: %w", err)
	}

	prev, err := s.Store.LatestSnapshot(ctx, p.owner, p.code)
	if err != nil {
		return false, fmt.Errorf("latest snapshot: %w", err)
	}

	summary := s.Calculator.Calculate(*rule, trips, ref)
	metrics.CalculationsTotal.WithLabelValues(string(p.code), string(summary.Status)).Inc()

	snap := generic.NewSnapshot(uuid.NewString(), p.owner, summary, reason)
	if err := s.Store.SaveSnapshot(ctx, snap); err != nil {
		return false, fmt.Errorf("save snapshot: %w", err)
	}
	metrics.SnapshotsWritten.WithLabelValues(string(reason)).Inc()

	if s.Alerts == nil {
		return false, nil
	}
	var prevSummary *generic.Summary
	if prev != nil {
		prevSummary = &prev.Summary
	}
	raised, err := s.Alerts.Observe(ctx, p.owner, prevSummary, summary)
	if err != nil {
		// The snapshot is stored; a failing notifier does not undo it.
		s.Logger.Warn().Err(err).Str("jurisdiction", string(p.code)).Msg("Alert delivery failed")
	}
	return raised, nil
}
