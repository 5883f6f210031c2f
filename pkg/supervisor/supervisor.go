// Package supervisor implements the non-worker thread that samples worker
// heartbeats and declares timeouts, per spec.md §4.4's "Timeout
// supervision" and §4.5's exception-propagation policy.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/janaflow/core/internal/errs"
	"github.com/janaflow/core/pkg/scheduler"
	"github.com/janaflow/core/pkg/worker"
)

// Observable is the subset of *worker.Worker a Supervisor needs to sample.
type Observable interface {
	State() worker.State
	Heartbeat() time.Time
	Exception() *errs.E
	MarkTimedOut()
	LastArrow() string
}

// Config configures a Supervisor's thresholds (spec.md §4.4).
type Config struct {
	// SampleInterval is how often heartbeats are checked.
	SampleInterval time.Duration
	// WarmupTimeout applies while uptime < WarmupTimeout * MaxInflight / NWorkers.
	WarmupTimeout time.Duration
	// SteadyTimeout applies afterwards.
	SteadyTimeout time.Duration
	MaxInflight   int
	NWorkers      int
}

func (c Config) warmupWindow() time.Duration {
	if c.NWorkers <= 0 {
		return 0
	}
	return c.WarmupTimeout * time.Duration(c.MaxInflight) / time.Duration(c.NWorkers)
}

// Supervisor periodically samples worker heartbeats against a warmup or
// steady threshold, flags stragglers TimedOut, and — on observing any
// worker Excepted — drains and finalizes the topology, collecting every
// excepted worker's exception for the caller to re-raise at the top-level
// Run() boundary (spec.md §4.5 "Propagation policy").
type Supervisor struct {
	cfg       Config
	workers   []Observable
	topology  *scheduler.Topology
	startTime time.Time
	log       *slog.Logger

	mu         sync.Mutex
	exceptions []*errs.E
	timedOut   map[int]bool
}

// New builds a Supervisor over the given workers and topology. workers[i]'s
// index is used as its worker id for reporting.
func New(cfg Config, workers []Observable, topology *scheduler.Topology) *Supervisor {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 10 * time.Millisecond
	}
	return &Supervisor{
		cfg:      cfg,
		workers:  workers,
		topology: topology,
		log:      slog.Default().With("component", "supervisor"),
		timedOut: make(map[int]bool),
	}
}

// Run samples heartbeats every SampleInterval until ctx is cancelled or the
// topology reaches Finalized, returning the aggregated exceptions (if any)
// observed from excepted workers.
func (s *Supervisor) Run(ctx context.Context) []*errs.E {
	s.startTime = time.Now()
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.snapshot()
		case <-ticker.C:
			s.sample()
			if s.topology.State() == scheduler.Finalized {
				return s.snapshot()
			}
		}
	}
}

func (s *Supervisor) sample() {
	threshold := s.threshold()
	anyExcepted := false

	for id, w := range s.workers {
		switch w.State() {
		case worker.Excepted:
			anyExcepted = true
			s.recordException(id, w)
		case worker.TimedOut:
			// already flagged; nothing further to do.
		case worker.Running:
			if threshold > 0 && time.Since(w.Heartbeat()) > threshold {
				w.MarkTimedOut()
				s.log.Warn("worker heartbeat exceeded threshold, detaching",
					"worker", id, "last_arrow", w.LastArrow(), "threshold", threshold)
			}
		}
	}

	if anyExcepted {
		s.topology.Drain()
		s.tryFinalizeOnceDrained()
	}
}

func (s *Supervisor) recordException(id int, w Observable) {
	e := w.Exception()
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.exceptions {
		if existing == e {
			return
		}
	}
	s.exceptions = append(s.exceptions, e)
	_ = id
}

// tryFinalizeOnceDrained transitions the draining topology to Finalized
// immediately; it does not wait for the other workers to stop or for the
// arrows to report Finished, since an excepted worker will never again
// report progress.
func (s *Supervisor) tryFinalizeOnceDrained() {
	s.topology.Finalize()
}

func (s *Supervisor) threshold() time.Duration {
	uptime := time.Since(s.startTime)
	if uptime < s.cfg.warmupWindow() {
		return s.cfg.WarmupTimeout
	}
	return s.cfg.SteadyTimeout
}

func (s *Supervisor) snapshot() []*errs.E {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*errs.E, len(s.exceptions))
	copy(out, s.exceptions)
	return out
}
