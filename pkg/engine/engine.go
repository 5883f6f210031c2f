package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"

	"github.com/janaflow/core/internal/config"
	"github.com/janaflow/core/internal/errs"
	"github.com/janaflow/core/internal/observability"
	"github.com/janaflow/core/internal/topology"
	"github.com/janaflow/core/pkg/arrow"
	"github.com/janaflow/core/pkg/event"
	"github.com/janaflow/core/pkg/mailbox"
	"github.com/janaflow/core/pkg/scheduler"
	"github.com/janaflow/core/pkg/supervisor"
	"github.com/janaflow/core/pkg/worker"
)

// Engine is the top-level entrypoint wiring config, CPU topology, the
// event pool, the scheduler, workers, and the supervisor (spec.md §6).
// It holds exactly one linear Source → Sink pipeline; callers needing a
// richer topology (Stages, Broadcast, Merge) build their arrows directly
// against pkg/scheduler and pkg/worker instead of going through Engine.
type Engine struct {
	cfg      config.Settings
	pool     *mailbox.Pool
	metrics  *observability.EngineMetrics
	sched    *scheduler.Scheduler
	topology *scheduler.Topology
	source   EventSource
	proc     EventProcessor

	nWorkers int

	mu      sync.Mutex
	wg      conc.WaitGroup
	workers []*worker.Worker
	runCtx  context.Context //nolint:containedctx
	running bool

	exitCode atomic.Int32
}

// New builds an Engine wiring source into proc through a single bounded
// mailbox, sized from cfg and the host's discovered CPU topology. reg may
// be nil to use the default Prometheus registry.
func New(cfg config.Settings, source EventSource, proc EventProcessor, reg prometheus.Registerer) (*Engine, error) {
	if source == nil || proc == nil {
		return nil, errs.New(errs.CodeInvalid, errs.WithMessage("engine requires a non-nil source and processor"))
	}

	slots, err := topology.Discover()
	if err != nil {
		return nil, fmt.Errorf("engine: discover cpu topology: %w", err)
	}
	ordered := topology.Order(slots, cfg.Affinity, cfg.Locality)

	nWorkers := cfg.NWorkers
	if nWorkers <= 0 {
		nWorkers = len(ordered)
	}
	if nWorkers <= 0 {
		nWorkers = 1
	}

	maxInflight := cfg.MaxInflightEvents
	if maxInflight <= 0 {
		maxInflight = 2 * nWorkers
	}
	cfg.MaxInflightEvents = maxInflight

	metrics := observability.NewEngineMetrics(reg)
	pool := mailbox.NewPool("Event", maxInflight, func() mailbox.PooledObject { return event.New() }, cfg.Locality, ordered)

	mb := mailbox.New(maxInflight)

	srcAdapter := &sourceAdapter{source: source, pool: pool, nskip: cfg.NSkip, nevents: cfg.NEvents} //nolint:exhaustruct
	srcArrow := arrow.NewSource(arrow.NewBase("source", false, cfg.Arrow("source")), srcAdapter, mb)  //nolint:exhaustruct

	sinkAdapter := &sinkAdapter{proc: proc, source: source, pool: pool, metrics: metrics} //nolint:exhaustruct
	sinkArrow := arrow.NewSink(arrow.NewBase("sink", false, cfg.Arrow("sink")), sinkAdapter, mb)

	srcArrow.AttachDownstream(&sinkArrow.Base)

	sched := scheduler.New([]arrow.Fireable{srcArrow, sinkArrow})

	return &Engine{ //nolint:exhaustruct
		cfg:      cfg,
		pool:     pool,
		metrics:  metrics,
		sched:    sched,
		topology: sched.Topology(),
		source:   source,
		proc:     proc,
		nWorkers: nWorkers,
	}, nil
}

// Metrics exposes the engine's Prometheus registrations for an HTTP
// /metrics handler.
func (e *Engine) Metrics() *observability.EngineMetrics { return e.metrics }

// Scheduler exposes the underlying Scheduler for introspection.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.sched }

// ExitCode reports the process exit code the engine recommends at
// shutdown (spec.md §7 "the process exits with a non-zero code").
func (e *Engine) ExitCode() int { return int(e.exitCode.Load()) }

// SetExitCode lets a user-level handler override the recommended exit
// code, mirroring spec.md §7's set_exit_code.
func (e *Engine) SetExitCode(code int) { e.exitCode.Store(int32(code)) }

// Run opens the source, initializes the processor, runs the topology to
// completion (either natural finalization or a propagated exception), and
// closes both down. It blocks until the topology is Finalized or ctx is
// cancelled, then returns the aggregated exceptions collected from any
// excepted worker (spec.md §7 "re-raises the collection of exceptions at
// the top-level Run() boundary").
func (e *Engine) Run(ctx context.Context) error {
	if err := e.proc.Init(); err != nil {
		e.exitCode.Store(1)
		return errs.New(errs.CodeInitialization, errs.WithMessage("processor init failed"), errs.WithCause(err))
	}
	if err := e.source.Open(); err != nil {
		e.exitCode.Store(1)
		return errs.New(errs.CodeInitialization, errs.WithMessage("source open failed"), errs.WithCause(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.runCtx = runCtx
	e.running = true
	e.mu.Unlock()

	e.topology.Run()
	e.scaleTo(e.nWorkers)

	observables := e.observableWorkers()
	sup := supervisor.New(supervisor.Config{
		SampleInterval: time.Millisecond,
		WarmupTimeout:  e.cfg.WarmupTimeout,
		SteadyTimeout:  e.cfg.SteadyTimeout,
		MaxInflight:    e.cfg.MaxInflightEvents,
		NWorkers:       e.nWorkers,
	}, observables, e.topology)

	supDone := make(chan []*errs.E, 1)
	go func() { supDone <- sup.Run(runCtx) }()

	go e.watchFinalize(runCtx, cancel)

	e.wg.Wait()
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	exceptions := <-supDone

	if err := e.source.Close(); err != nil {
		observability.Log().Error("source close failed", observability.Field{Key: "error", Value: err.Error()})
	}
	if err := e.proc.Finish(); err != nil {
		observability.Log().Error("processor finish failed", observability.Field{Key: "error", Value: err.Error()})
	}

	if len(exceptions) == 0 {
		return nil
	}
	e.exitCode.Store(1)
	wrapped := make([]error, len(exceptions))
	for i, ex := range exceptions {
		wrapped[i] = ex
	}
	return observability.AggregateErrors("engine run", wrapped)
}

// Scale grows the number of active workers at runtime to n (spec.md §5
// "n_workers is tunable at runtime via scale()"). Shrinking is not
// supported: a worker only stops via ctx cancellation or an exception.
func (e *Engine) Scale(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return errs.New(errs.CodeInvalid, errs.WithMessage("engine is not running"))
	}
	if n <= len(e.workers) {
		return nil
	}
	e.scaleToLocked(n)
	return nil
}

func (e *Engine) scaleTo(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scaleToLocked(n)
}

func (e *Engine) scaleToLocked(n int) {
	for i := len(e.workers); i < n; i++ {
		w := worker.New(i, e.sched, e.metrics, e.reportException)
		e.workers = append(e.workers, w)
		e.wg.Go(func() { _ = w.Run(e.runCtx) })
	}
}

func (e *Engine) observableWorkers() []supervisor.Observable {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]supervisor.Observable, len(e.workers))
	for i, w := range e.workers {
		out[i] = w
	}
	return out
}

func (e *Engine) reportException(err *errs.E) {
	observability.Log().Error("worker exception", observability.Field{Key: "error", Value: err.Error()})
}

// watchFinalize cancels runCtx once the topology reaches Finalized, so
// worker loops observe ctx.Err() on their next iteration and exit cleanly
// instead of blocking forever on an idle scheduler.
func (e *Engine) watchFinalize(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.topology.State() == scheduler.Finalized {
				cancel()
				return
			}
		}
	}
}
