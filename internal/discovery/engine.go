package discovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/probekit/recipecrawl/internal/metrics"
)

// DefaultSentinelCode is the absence-classified status recorded when a
// probe fails at the transport level or a worker panics. It is outside
// the standard HTTP range so it never collides with a real server reply.
const DefaultSentinelCode = 599

const progressLogEvery = 100

// Request is the immutable configuration for one crawl run.
type Request struct {
	// Site is a label used for logging, metrics, and persistence.
	Site string
	// LowerID and UpperID bound the identifier range, inclusive. UpperID
	// may be a soft ceiling far beyond the expected last valid ID; the
	// streak monitor ends the run long before the range is exhausted.
	LowerID int64
	UpperID int64
	// Concurrency is the fixed worker pool size, >= 1.
	Concurrency int
	// WatchCode is the absence status tracked for streaks (usually 404).
	WatchCode int
	// MaxConsecutive ends the run once that many watched codes arrive
	// back to back.
	MaxConsecutive int
	// Filter optionally excludes identifiers before any network probe.
	Filter SkipFilter
}

// Validate rejects misconfiguration before any network activity begins.
func (r Request) Validate() error {
	if r.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", r.Concurrency)
	}
	if r.MaxConsecutive < 1 {
		return fmt.Errorf("max consecutive must be >= 1, got %d", r.MaxConsecutive)
	}
	if r.LowerID > r.UpperID {
		return fmt.Errorf("lower id %d exceeds upper id %d", r.LowerID, r.UpperID)
	}
	return nil
}

// RunState tracks the crawl lifecycle. Transitions are one way:
// Running -> Draining -> Done.
type RunState int32

// Run lifecycle states.
const (
	RunStateRunning RunState = iota
	RunStateDraining
	RunStateDone
)

// String implements fmt.Stringer.
func (s RunState) String() string {
	switch s {
	case RunStateRunning:
		return "running"
	case RunStateDraining:
		return "draining"
	default:
		return "done"
	}
}

// Engine owns the probe worker pool. It is cheap and safe to share one
// Engine across runs; all per-run state lives on the Run.
type Engine struct {
	prober   Prober
	uri      URIBuilder
	sentinel int
	logger   *zap.Logger
}

// Option adjusts Engine construction.
type Option func(*Engine)

// WithSentinelCode overrides the status code recorded for worker panics.
func WithSentinelCode(code int) Option {
	return func(e *Engine) { e.sentinel = code }
}

// NewEngine builds an Engine around the site-specific prober and
// candidate URI builder.
func NewEngine(prober Prober, uri URIBuilder, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if uri == nil {
		return nil, fmt.Errorf("uri builder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		prober:   prober,
		uri:      uri,
		sentinel: DefaultSentinelCode,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run is one in-flight (or finished) crawl. Permalinks arrive on
// Results() in completion order; consuming the channel drives the crawl.
// A Run is not restartable: once Results is closed it yields nothing
// further.
type Run struct {
	site    string
	monitor *StreakMonitor

	results chan Permalink
	stopCh  chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	state    atomic.Int32
	streak   atomic.Bool

	probed     atomic.Int64
	skipped    atomic.Int64
	discovered atomic.Int64
}

// Results returns the channel of discovered permalinks. It is closed once
// the worker pool has fully shut down.
func (r *Run) Results() <-chan Permalink {
	return r.results
}

// Done is closed after every worker has exited and Results is closed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// State reports the current lifecycle state.
func (r *Run) State() RunState {
	return RunState(r.state.Load())
}

// StoppedByStreak reports whether the streak monitor ended the run, as
// opposed to range exhaustion or caller cancellation.
func (r *Run) StoppedByStreak() bool {
	return r.streak.Load()
}

// Stats returns a snapshot of run counters.
func (r *Run) Stats() Stats {
	return Stats{
		Probed:     r.probed.Load(),
		Skipped:    r.skipped.Load(),
		Discovered: r.discovered.Load(),
	}
}

// Frequencies exposes the monitor's status code frequency table.
func (r *Run) Frequencies() map[int]int {
	return r.monitor.Frequencies()
}

// Report renders the frequency table as a one-line summary. Valid at any
// point during or after the run.
func (r *Run) Report() string {
	return r.monitor.Report()
}

func (r *Run) requestStop(byStreak bool) {
	r.stopOnce.Do(func() {
		if byStreak {
			r.streak.Store(true)
		}
		r.state.CompareAndSwap(int32(RunStateRunning), int32(RunStateDraining))
		close(r.stopCh)
	})
}

// Discover validates the request and starts the worker pool. The returned
// Run emits permalinks lazily: workers block handing a result to the
// consumer, so an unread Run makes no progress beyond its in-flight
// probes. Cancel ctx to abandon the run; in-flight probes are joined
// before Results closes on every exit path.
func (e *Engine) Discover(ctx context.Context, req Request) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate crawl request: %w", err)
	}
	monitor, err := NewStreakMonitor(req.WatchCode, req.MaxConsecutive)
	if err != nil {
		return nil, fmt.Errorf("build streak monitor: %w", err)
	}

	run := &Run{
		site:    req.Site,
		monitor: monitor,
		results: make(chan Permalink),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	ids := make(chan int64)
	go e.dispatch(ctx, req, run, ids)

	var g errgroup.Group
	for range req.Concurrency {
		g.Go(func() error {
			e.work(ctx, req, run, ids)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		run.state.Store(int32(RunStateDone))
		close(run.results)
		close(run.done)
		stats := run.Stats()
		e.logger.Info("crawl finished",
			zap.String("site", req.Site),
			zap.Bool("stopped_by_streak", run.StoppedByStreak()),
			zap.Int64("probed", stats.Probed),
			zap.Int64("skipped", stats.Skipped),
			zap.Int64("discovered", stats.Discovered),
			zap.String("status_codes", run.Report()),
		)
	}()

	e.logger.Info("crawl started",
		zap.String("site", req.Site),
		zap.Int64("lower_id", req.LowerID),
		zap.Int64("upper_id", req.UpperID),
		zap.Int("concurrency", req.Concurrency),
		zap.Int("watch_code", req.WatchCode),
		zap.Int("max_consecutive", req.MaxConsecutive),
	)
	return run, nil
}

// dispatch feeds identifiers to the pool in ascending order until the
// range is exhausted, a stop is requested, or the caller cancels.
func (e *Engine) dispatch(ctx context.Context, req Request, run *Run, ids chan<- int64) {
	defer close(ids)
	for id := req.LowerID; id <= req.UpperID; id++ {
		select {
		case ids <- id:
		case <-run.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) work(ctx context.Context, req Request, run *Run, ids <-chan int64) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	for id := range ids {
		select {
		case <-run.stopCh:
			// Stop was requested while this identifier was in the hand-off;
			// it was never in flight, so it is dropped unprobed.
			continue
		case <-ctx.Done():
			return
		default:
		}

		uri := e.uri(id)
		if req.Filter != nil && req.Filter.ShouldSkip(uri, id) {
			run.skipped.Add(1)
			metrics.SkippedTotal.WithLabelValues(req.Site).Inc()
			continue
		}

		start := time.Now()
		out := e.safeProbe(ctx, id)
		probed := run.probed.Add(1)
		metrics.ObserveProbe(req.Site, out.StatusCode, time.Since(start))
		if probed%progressLogEvery == 0 {
			e.logger.Debug("probe progress",
				zap.String("site", req.Site),
				zap.Int64("probed", probed),
				zap.Int64("discovered", run.discovered.Load()),
			)
		}

		if out.Exists() {
			// Successes bypass the monitor: it exists to bound the
			// absence tail, not to cap hits.
			select {
			case run.results <- *out.Permalink:
				run.discovered.Add(1)
				metrics.PermalinksTotal.WithLabelValues(req.Site).Inc()
			case <-ctx.Done():
				return
			}
			continue
		}

		if run.monitor.Observe(out.StatusCode) == DecisionStop {
			e.logger.Info("consecutive absence threshold reached",
				zap.String("site", req.Site),
				zap.Int("watch_code", req.WatchCode),
				zap.Int("max_consecutive", req.MaxConsecutive),
				zap.Int64("last_id", id),
			)
			run.requestStop(true)
		}
	}
}

// safeProbe shields the pool from a panicking Prober: the failing
// identifier is recorded as absent under the sentinel code and the worker
// keeps going.
func (e *Engine) safeProbe(ctx context.Context, id int64) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("probe panicked",
				zap.Int64("id", id),
				zap.Any("panic", rec),
			)
			out = Outcome{ID: id, StatusCode: e.sentinel}
		}
	}()
	return e.prober.Probe(ctx, id)
}
