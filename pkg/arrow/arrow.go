// Package arrow implements the typed dataflow stages a Scheduler assigns
// workers to fire (spec.md §4.2): Source, Stage, Sink, Broadcast, and
// Merge arrows, each wired to bounded Mailboxes and each returning a
// Status a Worker uses to decide whether to keep going, back off, or
// report finished/error.
package arrow

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/janaflow/core/internal/config"
)

// BackOff is the retry-curve contract a Worker drives after ComeBackLater.
// *backoff.ExponentialBackOff from cenkalti/backoff/v5 satisfies this
// structurally, matching how the teacher's websocket reconnect loop uses
// it (NextBackOff() time.Duration, backoff.Stop as the give-up sentinel).
type BackOff interface {
	NextBackOff() time.Duration
}

// Status is the outcome of one Fire call, mirroring JANA2's JArrowMetrics
// status (spec.md §4.2).
type Status int

const (
	// KeepGoing means the arrow made progress and should be rescheduled
	// immediately.
	KeepGoing Status = iota
	// ComeBackLater means the arrow could not make progress right now
	// (inbox empty or outbox full) and should back off before retrying.
	ComeBackLater
	// Finished means the arrow has permanently run out of work (its
	// inbox is empty and every upstream has finished).
	Finished
	// Errored means the arrow's user callback failed; the worker wraps
	// this into a structured error and reports it upward.
	Errored
)

func (s Status) String() string {
	switch s {
	case KeepGoing:
		return "keep_going"
	case ComeBackLater:
		return "come_back_later"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// cacheLinePad is the padding appended after a hot atomic counter so two
// arrows' counters never share a cache line (spec.md §9 "Cache-line
// padding"), grounded on Arrow.h's std::atomic_int active_upstream_count
// and thread_count fields.
type cacheLinePad = [56]byte

// Base carries the fields every arrow kind shares: identity, chunk size,
// downstream wiring, and the hot atomic counters the scheduler/worker
// inspect on every fire.
type Base struct {
	Name        string
	IsParallel  bool
	ChunkSize   int
	downstreams []*Base

	isFinished atomic.Bool

	activeUpstream atomic.Int32
	_              cacheLinePad
	threadCount    atomic.Int32
	_              cacheLinePad

	backoff   BackoffConfig
	lastPanic atomic.Value
}

// BackoffConfig configures the retry curve a Worker applies after a
// ComeBackLater, built on cenkalti/backoff/v5 (spec.md §4.4 "Backoff"),
// plus the checkin_time bound on how long a worker may keep re-firing a
// KeepGoing arrow before returning to the scheduler (spec.md §5
// "Chunking and fairness").
type BackoffConfig struct {
	Strategy    config.BackoffStrategy
	Tries       int
	Initial     time.Duration
	CheckinTime time.Duration
}

// NewBase constructs a Base from the arrow's resolved per-arrow settings.
func NewBase(name string, isParallel bool, settings config.ArrowSettings) Base {
	chunkSize := settings.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return Base{ //nolint:exhaustruct
		Name:       name,
		IsParallel: isParallel,
		ChunkSize:  chunkSize,
		backoff: BackoffConfig{
			Strategy:    settings.BackoffStrategy,
			Tries:       settings.BackoffTries,
			Initial:     settings.InitialBackoff,
			CheckinTime: settings.CheckinTime,
		},
	}
}

// NewBackOffFromSettings builds this arrow's configured BackOff using its
// own InitialBackoff setting.
func (b *Base) NewBackOffFromSettings() BackOff {
	return b.NewBackOff(b.backoff.Initial)
}

// CheckinTime bounds how long a worker may keep re-firing this arrow
// while it returns KeepGoing before returning to the scheduler (spec.md
// §5 "Chunking and fairness"). Zero means no bound beyond one fire.
func (b *Base) CheckinTime() time.Duration { return b.backoff.CheckinTime }

// AttachDownstream records a downstream arrow and increments its active
// upstream count, mirroring Arrow.h's attach() free function.
func (b *Base) AttachDownstream(down *Base) {
	b.downstreams = append(b.downstreams, down)
	down.activeUpstream.Add(1)
}

// Downstreams returns the arrows wired to receive this arrow's output.
func (b *Base) Downstreams() []*Base { return b.downstreams }

// ArrowName returns the arrow's identity, satisfying the Fireable interface.
func (b *Base) ArrowName() string { return b.Name }

// ParallelArrow reports whether multiple workers may fire this arrow
// concurrently.
func (b *Base) ParallelArrow() bool { return b.IsParallel }

// MarkFinished flips the arrow permanently finished; once set, Fire must
// short-circuit to Finished without touching any mailbox.
func (b *Base) MarkFinished() { b.isFinished.Store(true) }

// IsFinished reports whether MarkFinished has been called.
func (b *Base) IsFinished() bool { return b.isFinished.Load() }

// setLastPanic records the value recovered from a user callback's panic
// during the most recent Fire call, for a worker to inspect after an
// Errored status.
func (b *Base) setLastPanic(v any) { b.lastPanic.Store(&v) }

// LastPanic returns the value recovered from the most recent Errored
// Fire's panic, or nil if the arrow has never errored.
func (b *Base) LastPanic() any {
	if p, ok := b.lastPanic.Load().(*any); ok && p != nil {
		return *p
	}
	return nil
}

// DecrementActiveUpstream is called by an upstream arrow once it finishes,
// propagating activation state downstream (spec.md §4.4 "active_upstream_count").
func (b *Base) DecrementActiveUpstream() int32 {
	return b.activeUpstream.Add(-1)
}

// ActiveUpstreamCount reports how many upstream arrows have not yet
// finished.
func (b *Base) ActiveUpstreamCount() int32 { return b.activeUpstream.Load() }

// IncThreadCount/DecThreadCount track how many workers are concurrently
// firing this arrow, enforced by the Scheduler for non-parallel arrows
// (spec.md §5 "mutual exclusion").
func (b *Base) IncThreadCount() int32 { return b.threadCount.Add(1) }
func (b *Base) DecThreadCount() int32 { return b.threadCount.Add(-1) }
func (b *Base) ThreadCount() int32    { return b.threadCount.Load() }

// NewBackOff builds the retry strategy a worker should drive after this
// arrow reports ComeBackLater.
func (b *Base) NewBackOff(initial time.Duration) BackOff {
	switch b.backoff.Strategy {
	case config.BackoffLinear:
		if initial <= 0 {
			initial = time.Millisecond
		}
		return &linearBackOff{step: initial} //nolint:exhaustruct
	case config.BackoffExponential:
		eb := backoff.NewExponentialBackOff()
		if initial > 0 {
			eb.InitialInterval = initial
		}
		return eb
	default:
		return backoff.NewExponentialBackOff()
	}
}

// recoverCall runs fn, reporting whether it panicked and the recovered
// value, so a Fire method can fold a user callback's panic into an Errored
// status instead of crashing the worker goroutine that called it, while
// preserving the original error (often an *errs.E carrying factory/tag
// context) for the worker to enrich further (spec.md §7 "exceptions are
// wrapped and decorated, never discarded").
func recoverCall(fn func()) (panicked bool, recovered any) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			recovered = r
		}
	}()
	fn()
	return panicked, recovered
}

// linearBackOff implements BackOff with a fixed-increment curve, since
// cenkalti/backoff/v5 only ships constant/exponential policies out of the
// box and spec.md §4.4 explicitly names Linear as an option.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.step
}
