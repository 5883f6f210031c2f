// Package engine wires config, CPU topology, the event pool, the
// scheduler, workers, and the supervisor into the user-facing entrypoint
// (spec.md §6 "External interfaces").
package engine

import "github.com/janaflow/core/pkg/event"

// EmitStatus is the result of one EventSource.Emit call (spec.md §6).
type EmitStatus int

const (
	// EmitSuccess means the source populated ev with the next event.
	EmitSuccess EmitStatus = iota
	// EmitFailureTryAgain means no event is ready yet but the source is
	// not done — the legacy kTRY_AGAIN translation (spec.md §9).
	EmitFailureTryAgain
	// EmitFailureFinished means the source has no more events, ever — the
	// legacy kNO_MORE_EVENTS translation.
	EmitFailureFinished
)

// EventSource is the user-pluggable producer of events (spec.md §6).
// GetObjects and FinishEvent are optional; implementations that don't
// need them can embed NoopSourceExtras.
type EventSource interface {
	Open() error
	Close() error
	Emit(ev *event.Event) EmitStatus
	// GetObjects allows a source to externally insert a databundle for
	// (typeName, tag) instead of the FactorySet computing it, per
	// spec.md §6's "optional by-type get_objects(Event, Factory)".
	GetObjects(ev *event.Event, typeName, tag string) (payload any, ok bool)
	// SupportsFinishEvent reports whether FinishEvent should be called
	// once a sink is done with an event — per the Open Question decision
	// in SPEC_FULL.md ("a per-source flag captures current intent").
	SupportsFinishEvent() bool
	FinishEvent(ev *event.Event)
}

// NoopSourceExtras gives an EventSource implementation no-op GetObjects/
// FinishEvent/SupportsFinishEvent methods when it only needs Open/Close/Emit.
type NoopSourceExtras struct{}

func (NoopSourceExtras) GetObjects(*event.Event, string, string) (any, bool) { return nil, false }
func (NoopSourceExtras) SupportsFinishEvent() bool                           { return false }
func (NoopSourceExtras) FinishEvent(*event.Event)                            {}

// EventProcessor is the user-pluggable sink (spec.md §6). Process is
// serialized per-instance when the arrow backing it is non-parallel.
type EventProcessor interface {
	Init() error
	Process(ev *event.Event) error
	Finish() error
}

// Unfolder is a factory variant whose Process may emit 0..N child events
// per parent event; children inherit a back-reference to the parent for
// parent-level queries (spec.md §6).
type Unfolder interface {
	Unfold(ev *event.Event) []*event.Event
}
