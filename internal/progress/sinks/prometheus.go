package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/probekit/recipecrawl/internal/progress"
)

// register adds c to reg, reusing the existing collector when one with the
// same descriptor is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register progress collector: %w", err)
	}
	return c, nil
}

// PrometheusSink exports run progress via Prometheus. It owns the collectors
// for active runs and per-site progress gauges.
type PrometheusSink struct {
	runsActive   prometheus.Gauge
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	siteProbed   *prometheus.GaugeVec
	siteFound    *prometheus.GaugeVec

	mu     sync.Mutex
	active map[string]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
// A nil registerer falls back to the default registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recipecrawl_progress_runs_active",
			Help: "Runs currently emitting progress.",
		}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipecrawl_progress_runs_started_total",
			Help: "Total runs that emitted a start event.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipecrawl_progress_runs_finished_total",
			Help: "Total runs finished partitioned by status.",
		}, []string{"status"}),
		siteProbed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recipecrawl_progress_site_probed",
			Help: "IDs probed by the most recent snapshot per site.",
		}, []string{"site"}),
		siteFound: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recipecrawl_progress_site_discovered",
			Help: "Permalinks discovered by the most recent snapshot per site.",
		}, []string{"site"}),
		active: make(map[string]struct{}),
	}
	var err error
	if s.runsActive, err = register(reg, s.runsActive); err != nil {
		return nil, err
	}
	if s.runsStarted, err = register(reg, s.runsStarted); err != nil {
		return nil, err
	}
	if s.runsFinished, err = register(reg, s.runsFinished); err != nil {
		return nil, err
	}
	if s.siteProbed, err = register(reg, s.siteProbed); err != nil {
		return nil, err
	}
	if s.siteFound, err = register(reg, s.siteFound); err != nil {
		return nil, err
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if _, ok := s.active[evt.RunID]; !ok {
				s.active[evt.RunID] = struct{}{}
				s.runsStarted.Inc()
				s.runsActive.Inc()
			}
		case progress.StageRunDone:
			if _, ok := s.active[evt.RunID]; ok {
				delete(s.active, evt.RunID)
				s.runsActive.Dec()
			}
			s.runsFinished.WithLabelValues(evt.Status).Inc()
		}
		if evt.Site != "" {
			s.siteProbed.WithLabelValues(evt.Site).Set(float64(evt.Stats.Probed))
			s.siteFound.WithLabelValues(evt.Site).Set(float64(evt.Stats.Discovered))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
