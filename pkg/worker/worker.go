// Package worker implements the goroutines that drive a Scheduler: each
// Worker loops pulling an assignment, firing it, and feeding the result
// back, mirroring the teacher's structured-concurrency dispatch loops
// (core/dispatcher/fanout.go) but specialized to arrow.Fireable instead of
// fan-out delivery.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/janaflow/core/internal/errs"
	"github.com/janaflow/core/internal/observability"
	"github.com/janaflow/core/pkg/arrow"
	"github.com/janaflow/core/pkg/scheduler"
)

// idlePoll is how long a worker sleeps after finding nothing assignable
// before asking the scheduler again.
const idlePoll = time.Millisecond

// State is a worker's terminal or running condition, sampled by a
// Supervisor (spec.md §4.4/§4.5).
type State int32

const (
	// Running means the worker's loop is actively firing arrows.
	Running State = iota
	// Excepted means the worker's last fire raised an exception; the
	// worker has stored it and exited its loop.
	Excepted
	// TimedOut is set externally by a Supervisor once it observes this
	// worker's heartbeat has gone stale past its threshold.
	TimedOut
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Excepted:
		return "excepted"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ErrorReporter receives a structured error observed while firing an arrow.
type ErrorReporter func(*errs.E)

// Worker repeatedly asks a Scheduler for an arrow to fire, applying each
// arrow's configured backoff after a ComeBackLater. Per spec.md §4.5's
// worker loop, a fire that returns Errored is enriched, stored as this
// worker's terminal exception, and ends the loop — the worker does not
// retry past an exception.
type Worker struct {
	ID        int
	scheduler *scheduler.Scheduler
	metrics   *observability.EngineMetrics
	report    ErrorReporter
	log       *slog.Logger

	backoffs map[string]arrow.BackOff

	state         atomic.Int32
	heartbeatNano atomic.Int64
	exceptedErr   atomic.Pointer[errs.E]
	lastArrow     atomic.Pointer[string]
}

// New builds a Worker. report and metrics may be nil.
func New(id int, s *scheduler.Scheduler, metrics *observability.EngineMetrics, report ErrorReporter) *Worker {
	if report == nil {
		report = func(*errs.E) {}
	}
	w := &Worker{
		ID:        id,
		scheduler: s,
		metrics:   metrics,
		report:    report,
		log:       slog.Default().With("worker", id),
		backoffs:  make(map[string]arrow.BackOff),
	}
	w.heartbeatNano.Store(time.Now().UnixNano())
	return w
}

// State reports the worker's current condition, for a Supervisor or the
// introspection snapshot.
func (w *Worker) State() State { return State(w.state.Load()) }

// Heartbeat returns the timestamp of the worker's last next_assignment or
// fire, the signal a Supervisor samples for timeout detection.
func (w *Worker) Heartbeat() time.Time { return time.Unix(0, w.heartbeatNano.Load()) }

// Exception returns the error that caused this worker to exit, if any.
func (w *Worker) Exception() *errs.E { return w.exceptedErr.Load() }

// LastArrow returns the name of the arrow this worker most recently fired.
func (w *Worker) LastArrow() string {
	if p := w.lastArrow.Load(); p != nil {
		return *p
	}
	return ""
}

// MarkTimedOut is called by a Supervisor once it observes this worker's
// heartbeat has gone stale past its threshold. It does not stop the
// worker's goroutine — per spec.md §4.4 a timeout is detached, not
// joined — it only flags the state for introspection/reporting.
func (w *Worker) MarkTimedOut() { w.state.Store(int32(TimedOut)) }

// Run drives the worker loop until ctx is cancelled or the worker observes
// an exception from a fire, returning the reason it stopped.
func (w *Worker) Run(ctx context.Context) error {
	label := strconv.Itoa(w.ID)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker %d stopped: %w", w.ID, err)
		}
		w.recordHeartbeat()

		a, ok := w.scheduler.NextAssignment()
		if !ok {
			w.idle(ctx, label)
			continue
		}

		name := a.ArrowName()
		w.lastArrow.Store(&name)
		if excepted := w.fireUntilCheckin(ctx, a, label); excepted {
			return fmt.Errorf("worker %d excepted on arrow %q: %w", w.ID, name, w.exceptedErr.Load())
		}
	}
}

// fireUntilCheckin keeps re-firing an already-assigned arrow as long as it
// returns KeepGoing, bounded by the arrow's checkin_time (spec.md §5
// "Chunking and fairness": a worker fires an arrow repeatedly until it
// returns non-KeepGoing or exceeds checkin_time, only then returning to
// the scheduler). A zero checkin_time means the worker returns to the
// scheduler after a single fire, matching the pre-checkin_time behavior.
// The assignment is released to the scheduler exactly once, after the
// repeat loop exits, since IncThreadCount/NextAssignment only ran once.
func (w *Worker) fireUntilCheckin(ctx context.Context, a arrow.Fireable, label string) bool {
	deadline := a.CheckinTime()
	started := time.Now()
	for {
		status, latency := w.doFire(a, label)
		keepLooping := status == arrow.KeepGoing && !a.IsFinished() &&
			deadline > 0 && time.Since(started) < deadline
		if keepLooping {
			w.metrics.RecordWorkerBusy(label, latency)
			continue
		}
		w.scheduler.Release(a, status)
		return w.handleStatus(ctx, a, label, status, latency)
	}
}

func (w *Worker) recordHeartbeat() { w.heartbeatNano.Store(time.Now().UnixNano()) }

func (w *Worker) idle(ctx context.Context, label string) {
	start := time.Now()
	select {
	case <-ctx.Done():
	case <-time.After(idlePoll):
	}
	w.metrics.RecordWorkerIdle(label, time.Since(start))
}

// fireOnce fires a single assignment, releases it back to the scheduler,
// and reports whether the worker should exit its loop as Excepted.
func (w *Worker) fireOnce(ctx context.Context, a arrow.Fireable, label string) bool {
	status, latency := w.doFire(a, label)
	w.scheduler.Release(a, status)
	return w.handleStatus(ctx, a, label, status, latency)
}

// doFire fires a already-assigned arrow once and records its metrics,
// without releasing the assignment back to the scheduler — the caller
// decides when the assignment is done (fireOnce releases immediately,
// fireUntilCheckin may fire several times first).
func (w *Worker) doFire(a arrow.Fireable, label string) (arrow.Status, time.Duration) {
	start := time.Now()
	status := a.Fire()
	latency := time.Since(start)
	w.recordHeartbeat()
	w.metrics.RecordFire(a.ArrowName(), status.String(), latency, 0)
	return status, latency
}

// handleStatus reacts to a fire's outcome (backoff, exception reporting)
// after the assignment has already been released, reporting whether the
// worker should exit its loop as Excepted.
func (w *Worker) handleStatus(ctx context.Context, a arrow.Fireable, label string, status arrow.Status, latency time.Duration) bool {
	switch status {
	case arrow.KeepGoing, arrow.Finished:
		w.metrics.RecordWorkerBusy(label, latency)
		delete(w.backoffs, a.ArrowName())
		return false
	case arrow.ComeBackLater:
		w.backOff(ctx, a, label)
		return false
	case arrow.Errored:
		w.metrics.RecordWorkerBusy(label, latency)
		e := enrichException(a.LastPanic(), w.ID, a.ArrowName())
		w.exceptedErr.Store(e)
		w.state.Store(int32(Excepted))
		w.report(e)
		return true
	default:
		return false
	}
}

// enrichException turns whatever a panicking user callback recovered into
// the worker's terminal exception. An *errs.E (typically raised from deep
// in a FactorySet's recursive Get) already carries factory/tag/plugin/event
// context; enrichException preserves it as the cause and layers the worker
// id and arrow name on top, so the top-level error carries the full chain
// (spec.md §7 "exceptions are wrapped and decorated, never discarded",
// §8 S7). Anything else (a plain error or string panic) becomes a bare
// CodeUnknown exception carrying only the worker/arrow context.
func enrichException(recovered any, workerID int, arrowName string) *errs.E {
	if fe, ok := recovered.(*errs.E); ok {
		return errs.New(fe.Code,
			errs.WithMessage(fe.Message),
			errs.WithCause(fe),
			errs.WithFactory(fe.Factory, fe.Tag, fe.Plugin),
			errs.WithEvent(fe.EventNum, fe.RunNum),
			errs.WithWorker(workerID, arrowName),
		)
	}

	msg := "arrow fire raised an exception"
	var cause error
	switch v := recovered.(type) {
	case error:
		msg = v.Error()
		cause = v
	case nil:
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return errs.New(errs.CodeUnknown,
		errs.WithMessage(msg),
		errs.WithCause(cause),
		errs.WithWorker(workerID, arrowName),
	)
}

func (w *Worker) backOff(ctx context.Context, a arrow.Fireable, label string) {
	b, ok := w.backoffs[a.ArrowName()]
	if !ok {
		b = a.NewBackOffFromSettings()
		w.backoffs[a.ArrowName()] = b
	}

	wait := b.NextBackOff()
	if wait == backoff.Stop {
		// The curve gave up; fall back to a fixed idle poll rather than
		// spinning with a negative sleep duration.
		wait = idlePoll
	}
	start := time.Now()
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
	w.metrics.RecordWorkerRetry(label, time.Since(start))
}
