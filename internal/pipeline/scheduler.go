package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/couchcryptid/outbreak-lookup-service/internal/observability"
)

const refreshKey = "refresh"

// Fetcher downloads and parses one upstream feed.
type Fetcher interface {
	Source() domain.Source
	Fetch(ctx context.Context) (domain.Batch, error)
}

// Publisher is notified of every newly published snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot) error
}

// Options tunes the scheduler. Zero values take the defaults.
type Options struct {
	// Interval is how long a snapshot stays fresh. Default 15m.
	Interval time.Duration
	// Timeout bounds one refresh cycle. Default 2m.
	Timeout time.Duration
	// RetryInitial and RetryMax bound the warm-up backoff. Defaults 1s and 1m.
	RetryInitial time.Duration
	RetryMax     time.Duration
	Publisher    Publisher
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Minute
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = time.Minute
	}
}

// Status describes the scheduler state for diagnostics.
type Status struct {
	SnapshotID    string    `json:"snapshot_id,omitempty"`
	BuiltAt       time.Time `json:"built_at,omitempty"`
	NextRefreshAt time.Time `json:"next_refresh_at,omitempty"`
	Refreshing    bool      `json:"refreshing"`
	LastError     string    `json:"last_error,omitempty"`
}

// Scheduler owns the current snapshot and rebuilds it from the feeds. At
// most one rebuild runs at a time; queries always read the last published
// snapshot and never wait for a rebuild.
type Scheduler struct {
	fetchers []Fetcher
	builder  IndexBuilder
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options

	current    atomic.Pointer[Snapshot]
	group      singleflight.Group
	pending    atomic.Bool // an EnsureFresh goroutine exists
	refreshing atomic.Bool // a rebuild is running, from any trigger
	async      sync.WaitGroup

	mu            sync.Mutex
	nextRefreshAt time.Time
	lastErr       error
	baseCtx       context.Context
	closed        bool
}

// NewScheduler creates a Scheduler. Nothing is fetched until Run, Refresh or
// EnsureFresh is called.
func NewScheduler(fetchers []Fetcher, builder IndexBuilder, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Scheduler {
	opts.setDefaults()
	return &Scheduler{
		fetchers: fetchers,
		builder:  builder,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		baseCtx:  context.Background(),
	}
}

// Run performs the warm-up refresh, retrying with exponential backoff until
// it succeeds, then keeps the scheduler alive until ctx is cancelled.
// Later refreshes are triggered lazily by EnsureFresh.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("scheduler started", "feeds", len(s.fetchers), "interval", s.opts.Interval)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitial
	b.MaxInterval = s.opts.RetryMax
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return s.Refresh(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		s.logger.Warn("warm-up refresh failed, retrying", "error", err, "retry_in", next)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("warm-up refresh: %w", err)
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.async.Wait()
	return nil
}

// Refresh rebuilds the snapshot now. A call made while a rebuild is in
// flight joins it instead of starting another.
func (s *Scheduler) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do(refreshKey, func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

// EnsureFresh starts a background rebuild if the snapshot is due and none is
// running. It never blocks.
func (s *Scheduler) EnsureFresh() {
	if !s.due() {
		return
	}
	if !s.pending.CompareAndSwap(false, true) {
		return
	}

	// Add must not race with the Wait in Run, which happens after closed is set.
	s.mu.Lock()
	ctx := s.baseCtx
	if s.closed || ctx.Err() != nil {
		s.mu.Unlock()
		s.pending.Store(false)
		return
	}
	s.async.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.async.Done()
		defer s.pending.Store(false)
		_, _, _ = s.group.Do(refreshKey, func() (any, error) {
			if !s.due() {
				return nil, nil
			}
			return nil, s.refresh(ctx)
		})
	}()
}

// Acquire returns the current snapshot and a release func that must be
// called when the caller is done reading it.
func (s *Scheduler) Acquire() (*Snapshot, func(), error) {
	for {
		snap := s.current.Load()
		if snap == nil {
			return nil, nil, ErrNoSnapshot
		}
		if snap.tryAcquire() {
			return snap, snap.release, nil
		}
	}
}

// Warning returns the error of the last refresh if it failed, meaning the
// current snapshot may be stale.
func (s *Scheduler) Warning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// NextRefreshAt returns when the current snapshot becomes due.
func (s *Scheduler) NextRefreshAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRefreshAt
}

// Status reports the current snapshot and refresh state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{NextRefreshAt: s.nextRefreshAt}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	if snap := s.current.Load(); snap != nil {
		st.SnapshotID = snap.ID
		st.BuiltAt = snap.BuiltAt
	}
	st.Refreshing = s.refreshing.Load()
	return st
}

// CheckReadiness returns nil once a snapshot has been published.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if s.current.Load() == nil {
		return errors.New("no snapshot has been loaded yet")
	}
	return nil
}

// Close unpublishes the current snapshot and releases its index once
// in-flight readers are done. Rebuilds finishing after Close are discarded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	old := s.current.Swap(nil)
	s.mu.Unlock()
	if old != nil {
		old.retire(s.logger)
	}
}

func (s *Scheduler) due() bool {
	if s.current.Load() == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.clock.Now().Before(s.nextRefreshAt)
}

// refresh runs one fetch-normalize-index cycle and publishes the result. On
// failure the previous snapshot and deadline are kept.
func (s *Scheduler) refresh(ctx context.Context) error {
	start := s.clock.Now()
	s.refreshing.Store(true)
	defer s.refreshing.Store(false)
	s.metrics.RefreshInFlight.Set(1)
	defer s.metrics.RefreshInFlight.Set(0)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	batches, err := s.fetchAll(ctx)
	if err != nil {
		return s.fail(err)
	}

	tree := domain.Normalize(batches, s.logger)
	index, err := s.builder.Build(ctx, tree)
	if err != nil {
		return s.fail(fmt.Errorf("build index: %w", err))
	}

	snap := &Snapshot{
		ID:      uuid.NewString(),
		BuiltAt: s.clock.Now().UTC(),
		Tree:    tree,
		Index:   index,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := index.Close(); err != nil {
			s.logger.Warn("close discarded index failed", "error", err)
		}
		return ErrClosed
	}
	old := s.current.Swap(snap)
	s.nextRefreshAt = snap.BuiltAt.Add(s.opts.Interval)
	s.lastErr = nil
	s.mu.Unlock()

	if old != nil {
		old.retire(s.logger)
	}

	s.metrics.Refreshes.WithLabelValues("success").Inc()
	s.metrics.RefreshDuration.Observe(s.clock.Since(start).Seconds())
	s.metrics.LastRefreshSuccess.Set(float64(snap.BuiltAt.Unix()))
	s.metrics.SnapshotCountries.Set(float64(tree.Len()))
	s.metrics.SnapshotAreas.Set(float64(tree.AreaCount()))
	s.metrics.SnapshotDocuments.Set(float64(index.Len()))

	s.logger.Info("snapshot published",
		"snapshot", snap.ID,
		"countries", tree.Len(),
		"areas", tree.AreaCount(),
		"documents", index.Len(),
		"duration", s.clock.Since(start),
	)

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(ctx, snap); err != nil {
			s.logger.Warn("publish snapshot failed", "snapshot", snap.ID, "error", err)
		}
	}
	return nil
}

// fetchAll runs every fetcher in parallel. The first failure cancels the
// rest and fails the cycle.
func (s *Scheduler) fetchAll(ctx context.Context) ([]domain.Batch, error) {
	batches := make([]domain.Batch, len(s.fetchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range s.fetchers {
		g.Go(func() error {
			start := s.clock.Now()
			b, err := f.Fetch(gctx)
			s.metrics.FetchDuration.WithLabelValues(f.Source().String()).Observe(s.clock.Since(start).Seconds())
			if err != nil {
				s.metrics.FetchErrors.WithLabelValues(f.Source().String()).Inc()
				return err
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Scheduler) fail(err error) error {
	s.metrics.Refreshes.WithLabelValues("failure").Inc()

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if s.current.Load() != nil {
		s.logger.Warn("refresh failed, serving previous snapshot", "error", err)
	} else {
		s.logger.Error("refresh failed, no snapshot available", "error", err)
	}
	return err
}
