package arrow

import "time"

// Fireable is whatever the Scheduler needs to assign an arrow to a worker
// and track its activation state: Source, Stage, Sink, Broadcast, and
// Merge all satisfy this through their embedded Base.
type Fireable interface {
	Fire() Status
	ArrowName() string
	ParallelArrow() bool
	IsFinished() bool
	MarkFinished()
	IncThreadCount() int32
	DecThreadCount() int32
	ThreadCount() int32
	ActiveUpstreamCount() int32
	DecrementActiveUpstream() int32
	Downstreams() []*Base
	NewBackOffFromSettings() BackOff
	LastPanic() any
	CheckinTime() time.Duration
}

// activatable is satisfied directly by *Base; arrows expose it through
// their embedded Base so the Scheduler can propagate finish/activation
// state across the topology without knowing an arrow's concrete kind.
type activatable interface {
	DecrementActiveUpstream() int32
}

var _ activatable = (*Base)(nil)
