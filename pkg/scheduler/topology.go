package scheduler

import "sync"

// State is a topology's lifecycle phase (spec.md §4.4 "topology state
// machine").
type State int

const (
	// Paused means no worker may be assigned an arrow yet.
	Paused State = iota
	// Running means workers may be assigned and fire arrows normally.
	Running
	// Draining marks a topology on its way to Finalized. Workers are
	// still assigned arrows exactly as while Running (sources included);
	// Draining does not restrict which arrows are handed out.
	Draining
	// Finalized means the topology will never run again: either every
	// arrow has reported Finished, or a Supervisor finalized it after a
	// worker exception.
	Finalized
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Topology tracks the coarse lifecycle state shared by every arrow in a
// Scheduler: Paused → Running → Draining → Finalized, each transition
// one-directional except Running ⇄ Paused (an operator may pause and
// resume while events are still flowing).
type Topology struct {
	mu    sync.Mutex
	state State
}

// NewTopology starts a topology in the Paused state.
func NewTopology() *Topology {
	return &Topology{state: Paused} //nolint:exhaustruct
}

// State returns the current lifecycle phase.
func (t *Topology) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run transitions Paused → Running. It is a no-op once already Running.
func (t *Topology) Run() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Paused {
		t.state = Running
	}
}

// Pause transitions Running → Paused.
func (t *Topology) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running {
		t.state = Paused
	}
}

// Drain transitions Running or Paused → Draining. CanAssign stays true
// while Draining, so arrow assignment continues unchanged.
func (t *Topology) Drain() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running || t.state == Paused {
		t.state = Draining
	}
}

// Finalize transitions Draining → Finalized. Calling it from any other
// state is a no-op. The Scheduler calls Drain then Finalize once every
// arrow has reported Finished; a Supervisor does the same as soon as it
// observes an excepted worker, whether or not the arrows have finished.
func (t *Topology) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Draining {
		t.state = Finalized
	}
}

// CanAssign reports whether the Scheduler should hand out new arrow
// assignments in the current state.
func (t *Topology) CanAssign() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Running || t.state == Draining
}
