// Package scheduler implements the arrow-assignment algorithm a pool of
// Workers drives: round-robin next_assignment over the topology's arrows,
// respecting each arrow's parallelism, and finalize once every arrow has
// permanently finished (spec.md §4.4).
package scheduler

import (
	"sync"

	"github.com/janaflow/core/pkg/arrow"
)

// Scheduler hands out arrow assignments to workers and tracks when the
// whole topology has finished.
type Scheduler struct {
	mu       sync.Mutex
	arrows   []arrow.Fireable
	cursor   int
	topology *Topology
}

// New builds a Scheduler over the given arrows, wired in topological
// (upstream-before-downstream) order. The Topology starts Paused; call
// Topology().Run() once the engine is ready to process events.
func New(arrows []arrow.Fireable) *Scheduler {
	return &Scheduler{arrows: arrows, topology: NewTopology()} //nolint:exhaustruct
}

// Topology returns the scheduler's lifecycle state machine.
func (s *Scheduler) Topology() *Topology { return s.topology }

// NextAssignment implements spec.md §4.4's next_assignment: a round-robin
// scan starting just after the last arrow handed out, returning the first
// not-finished arrow that is either parallel or not currently being fired
// by another worker. It returns ok=false when no arrow is currently
// assignable (everyone is busy, finished, or the topology isn't Running).
func (s *Scheduler) NextAssignment() (a arrow.Fireable, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.topology.CanAssign() || len(s.arrows) == 0 {
		return nil, false
	}

	n := len(s.arrows)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		candidate := s.arrows[idx]
		if candidate.IsFinished() {
			continue
		}
		if !candidate.ParallelArrow() && candidate.ThreadCount() > 0 {
			continue
		}
		s.cursor = (idx + 1) % n
		candidate.IncThreadCount()
		return candidate, true
	}
	return nil, false
}

// Release is called by a worker once it is done firing an arrow returned
// by NextAssignment: it decrements the arrow's thread count and, if the
// arrow just reported Finished, propagates activation state to its
// downstreams and checks whether the whole topology can now finalize.
func (s *Scheduler) Release(a arrow.Fireable, status arrow.Status) {
	a.DecThreadCount()
	if status != arrow.Finished {
		return
	}
	for _, down := range a.Downstreams() {
		down.DecrementActiveUpstream()
	}
	s.tryFinalize()
}

// tryFinalize transitions the topology to Finalized once every arrow has
// reported Finished (spec.md §4.4's finalize).
func (s *Scheduler) tryFinalize() {
	s.mu.Lock()
	allDone := true
	for _, a := range s.arrows {
		if !a.IsFinished() {
			allDone = false
			break
		}
	}
	s.mu.Unlock()

	if !allDone {
		return
	}
	s.topology.Drain()
	s.topology.Finalize()
}

// Arrows returns the scheduler's arrows, for introspection/listing.
func (s *Scheduler) Arrows() []arrow.Fireable {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]arrow.Fireable, len(s.arrows))
	copy(out, s.arrows)
	return out
}
