// Package event defines the per-event carrier that flows through arrows:
// its identity (event/run number), its lazy factory graph, and the Reset
// hook that lets the mailbox pool recycle it.
package event

import (
	"github.com/google/uuid"

	"github.com/janaflow/core/pkg/factory"
)

// Event is the unit of work passed between arrows. Each Event owns one
// FactorySet: the per-event memoized computation graph described in
// spec.md §4.1. Events are pool-managed (pkg/mailbox.Pool) and must be
// Reset before being handed back to a new producer.
type Event struct {
	// TraceID correlates this event across call-graph spans and the
	// performance snapshot; stamped once at construction and never
	// regenerated by Reset (the physical slot's identity is stable, the
	// logical event it carries changes).
	TraceID string

	Number int64
	Run    int64

	// Factories is the event's lazy, memoized factory graph.
	Factories *factory.FactorySet

	// finishable records whether the originating source opted in to
	// finish_event notification, per SPEC_FULL.md's Open Question
	// decision: only sources implementing SupportsFinishEvent() true get
	// their FinishEvent hook called once this event reaches a sink.
	finishable bool
	finishFn   func(*Event)

	returned bool
}

// New allocates a fresh Event with an empty factory graph.
func New() *Event {
	return &Event{ //nolint:exhaustruct
		TraceID:   uuid.NewString(),
		Number:    -1,
		Run:       -1,
		Factories: factory.NewFactorySet(),
	}
}

// SetFinisher records the optional finish_event callback a source
// requested for this event (see Event lifecycle, spec.md §6).
func (e *Event) SetFinisher(fn func(*Event)) {
	e.finishable = fn != nil
	e.finishFn = fn
}

// Finish invokes the source's finish_event hook, if any, exactly once.
func (e *Event) Finish() {
	if e.finishable && e.finishFn != nil {
		e.finishFn(e)
		e.finishable = false
		e.finishFn = nil
	}
}

// Reset clears the event for recycling back into the Pool. The
// FactorySet's persistent bundles are preserved across events by design
// (Clear honors the persistent flag); everything else is dropped.
func (e *Event) Reset() {
	e.Number = -1
	e.Run = -1
	e.finishable = false
	e.finishFn = nil
	if e.Factories != nil {
		e.Factories.Clear()
	}
}

// SetReturned/IsReturned implement the teacher's double-put detection
// contract (internal/pool.PooledObject) so the mailbox Pool can catch a
// caller accidentally recycling the same Event twice.
func (e *Event) SetReturned(v bool) { e.returned = v }

// IsReturned reports whether this Event currently sits in the free pool.
func (e *Event) IsReturned() bool { return e.returned }
