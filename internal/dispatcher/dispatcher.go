// Package dispatcher launches and supervises crawl runs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/discovery"
	"github.com/probekit/recipecrawl/internal/filter"
	idgen "github.com/probekit/recipecrawl/internal/id/uuid"
	"github.com/probekit/recipecrawl/internal/metrics"
	"github.com/probekit/recipecrawl/internal/progress"
	"github.com/probekit/recipecrawl/internal/runs"
	"github.com/probekit/recipecrawl/internal/site"
	"github.com/probekit/recipecrawl/internal/worker"
)

// EngineFactory builds a discovery engine for a site profile.
type EngineFactory func(profile site.Profile) (*discovery.Engine, error)

// ConsumerFactory builds the permalink pipeline for a site profile.
type ConsumerFactory func(profile site.Profile) *worker.Consumer

const defaultProgressInterval = 2 * time.Second

// Dispatcher starts crawl runs in the background and tracks their
// lifecycle in the run registry.
type Dispatcher struct {
	sites     *site.Registry
	registry  *runs.Registry
	engines   EngineFactory
	consumers ConsumerFactory
	ids       *idgen.Generator
	logger    *zap.Logger

	emitter          progress.Emitter
	progressInterval time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// Option mutates Dispatcher construction.
type Option func(*Dispatcher)

// WithProgress streams run lifecycle events to emitter, snapshotting
// counters at the given interval while a run executes. A non-positive
// interval uses the default.
func WithProgress(emitter progress.Emitter, interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.emitter = emitter
		if interval > 0 {
			d.progressInterval = interval
		}
	}
}

// New creates a Dispatcher.
func New(sites *site.Registry, registry *runs.Registry, engines EngineFactory, consumers ConsumerFactory, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sites:            sites,
		registry:         registry,
		engines:          engines,
		consumers:        consumers,
		ids:              idgen.New(),
		logger:           logger,
		progressInterval: defaultProgressInterval,
		active:           make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Launch validates the request, records it, and starts the crawl in the
// background. Launched runs outlive the caller's context; use Cancel or
// Shutdown to stop them.
func (d *Dispatcher) Launch(params runs.Params) (runs.Record, error) {
	profile, err := d.sites.Lookup(params.Site)
	if err != nil {
		return runs.Record{}, fmt.Errorf("lookup site: %w", err)
	}
	params = applyProfileDefaults(params, profile)

	eng, err := d.engines(profile)
	if err != nil {
		return runs.Record{}, fmt.Errorf("build engine: %w", err)
	}

	req := discovery.Request{
		Site:           params.Site,
		LowerID:        params.LowerID,
		UpperID:        params.UpperID,
		Concurrency:    params.Concurrency,
		WatchCode:      params.WatchCode,
		MaxConsecutive: params.MaxConsecutive,
	}
	if len(params.SkipIDs) > 0 {
		req.Filter = filter.NewSeen(params.SkipIDs...)
	}
	if err := req.Validate(); err != nil {
		return runs.Record{}, err
	}

	runID, err := d.ids.NewID()
	if err != nil {
		return runs.Record{}, fmt.Errorf("generate run id: %w", err)
	}
	rec, err := d.registry.Create(runID, params)
	if err != nil {
		return runs.Record{}, fmt.Errorf("create run record: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.active[runID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.active, runID)
			d.mu.Unlock()
			cancel()
		}()
		d.execute(ctx, runID, profile, eng, req)
	}()

	return rec, nil
}

// Cancel stops a running crawl. Canceling an unknown or finished run is an
// error.
func (d *Dispatcher) Cancel(runID string) error {
	d.mu.Lock()
	cancel, ok := d.active[runID]
	d.mu.Unlock()
	if !ok {
		return runs.ErrNotFound
	}
	cancel()
	return nil
}

// Shutdown cancels all active runs and waits for them to record their final
// status.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	for _, cancel := range d.active {
		cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) execute(ctx context.Context, runID string, profile site.Profile, eng *discovery.Engine, req discovery.Request) {
	logger := d.logger.With(zap.String("run_id", runID), zap.String("site", profile.Name))

	if err := d.registry.MarkRunning(runID); err != nil {
		logger.Error("mark running failed", zap.Error(err))
		return
	}
	logger.Info("run started",
		zap.Int64("lower_id", req.LowerID),
		zap.Int64("upper_id", req.UpperID),
		zap.Int("concurrency", req.Concurrency),
	)

	d.emit(runID, profile.Name, progress.StageRunStart, discovery.Stats{}, "")

	run, err := eng.Discover(ctx, req)
	if err != nil {
		d.finish(runID, profile.Name, runs.StatusFailed, err.Error(), "", discovery.Stats{})
		logger.Error("run failed to start", zap.Error(err))
		return
	}

	stopSnapshots := d.snapshotLoop(runID, profile.Name, run)

	consumer := d.consumers(profile)
	_, drainErr := consumer.Drain(ctx, runID, run.Results())
	<-run.Done()
	stopSnapshots()

	if err := d.registry.UpdateStats(runID, run.Stats()); err != nil {
		logger.Warn("update stats failed", zap.Error(err))
	}

	status := runs.StatusSucceeded
	errText := ""
	switch {
	case drainErr != nil && errors.Is(drainErr, context.Canceled):
		status = runs.StatusCanceled
	case run.StoppedByStreak():
		status = runs.StatusStopped
	}
	if drainErr != nil && !errors.Is(drainErr, context.Canceled) {
		status = runs.StatusFailed
		errText = drainErr.Error()
	}

	d.finish(runID, profile.Name, status, errText, run.Report(), run.Stats())
	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int64("probed", run.Stats().Probed),
		zap.Int64("discovered", run.Stats().Discovered),
	)
}

func (d *Dispatcher) finish(runID, siteName string, status runs.Status, errText, report string, stats discovery.Stats) {
	if err := d.registry.Complete(runID, status, errText, report, stats); err != nil {
		d.logger.Error("complete run failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	metrics.ObserveRun(string(status))
	d.emit(runID, siteName, progress.StageRunDone, stats, string(status))
}

func (d *Dispatcher) emit(runID, siteName string, stage progress.Stage, stats discovery.Stats, status string) {
	if d.emitter == nil {
		return
	}
	d.emitter.Emit(progress.Event{
		RunID:  runID,
		Site:   siteName,
		Stage:  stage,
		TS:     time.Now().UTC(),
		Stats:  stats,
		Status: status,
	})
}

// snapshotLoop periodically emits counter snapshots until the returned stop
// function is called. With no emitter configured it is a no-op.
func (d *Dispatcher) snapshotLoop(runID, siteName string, run *discovery.Run) func() {
	if d.emitter == nil {
		return func() {}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(d.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.emit(runID, siteName, progress.StageRunProgress, run.Stats(), "")
			case <-stop:
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// applyProfileDefaults fills zero-valued request knobs from the site
// profile's defaults.
func applyProfileDefaults(params runs.Params, profile site.Profile) runs.Params {
	if params.LowerID == 0 && params.UpperID == 0 {
		params.LowerID = profile.LowerID
		params.UpperID = profile.UpperID
	}
	if params.WatchCode == 0 {
		params.WatchCode = profile.WatchCode
	}
	return params
}
