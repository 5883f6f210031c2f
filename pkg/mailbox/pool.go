package mailbox

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/janaflow/core/internal/config"
	"github.com/janaflow/core/internal/topology"
)

// PooledObject is the recycling contract an Event must satisfy to live in
// a Pool, mirroring the teacher's internal/pool.PooledObject.
type PooledObject interface {
	Reset()
	SetReturned(bool)
	IsReturned() bool
}

// Pool is the bounded freelist of recyclable Events (spec.md §4.3's "Event
// Pool"): one bounded capacity across the whole engine, optionally carved
// into per-locality segments so a worker pinned to a CPU/socket/NUMA node
// recycles events without crossing locality boundaries.
type Pool struct {
	name     string
	newFunc  func() PooledObject
	segments []*segment
	locality config.Locality
}

type segment struct {
	mu    sync.Mutex
	cond  *sync.Cond
	free  []PooledObject
	cap   int
	slot  topology.Slot
	debug map[PooledObject]string
}

// NewPool builds a Pool with the given total capacity, segmented according
// to locality across the provided topology slots. An empty slots slice (or
// config.LocalityGlobal) produces a single global segment. Each segment
// holds capacity/len(segments) objects (at least one), so the total
// equals capacity only when it divides evenly across the segments.
func NewPool(name string, capacity int, newFunc func() PooledObject, locality config.Locality, slots []topology.Slot) *Pool {
	if capacity <= 0 {
		panic(fmt.Sprintf("pool %s: capacity must be positive", name))
	}
	if newFunc == nil {
		panic(fmt.Sprintf("pool %s: newFunc must be provided", name))
	}

	nsegments := 1
	if locality != config.LocalityGlobal && len(slots) > 0 {
		nsegments = len(slots)
	}
	p := &Pool{ //nolint:exhaustruct
		name:     name,
		newFunc:  newFunc,
		locality: locality,
		segments: make([]*segment, nsegments),
	}
	per := capacity / nsegments
	if per == 0 {
		per = 1
	}
	for i := range p.segments {
		seg := &segment{ //nolint:exhaustruct
			cap:   per,
			debug: make(map[PooledObject]string),
		}
		if len(slots) > i {
			seg.slot = slots[i]
		}
		seg.cond = sync.NewCond(&seg.mu)
		for j := 0; j < per; j++ {
			seg.free = append(seg.free, newFunc())
		}
		p.segments[i] = seg
	}
	return p
}

// segmentFor picks the locality segment a worker pinned to workerID
// should draw from. Workers are distributed round-robin across segments;
// this keeps a pinned worker drawing from the same NUMA/socket/core
// segment every time, per SPEC_FULL.md's "locality" affinity knob.
func (p *Pool) segmentFor(workerID int) *segment {
	if len(p.segments) == 1 {
		return p.segments[0]
	}
	return p.segments[workerID%len(p.segments)]
}

// Get acquires a recycled object for workerID, blocking until one is
// returned if the worker's segment is momentarily exhausted.
func (p *Pool) Get(workerID int) PooledObject {
	seg := p.segmentFor(workerID)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	for len(seg.free) == 0 {
		seg.cond.Wait()
	}
	obj := seg.free[len(seg.free)-1]
	seg.free = seg.free[:len(seg.free)-1]
	obj.SetReturned(false)
	seg.debug[obj] = string(debug.Stack())
	return obj
}

// TryGet behaves like Get but returns ok=false instead of blocking when
// the segment is exhausted.
func (p *Pool) TryGet(workerID int) (obj PooledObject, ok bool) {
	seg := p.segmentFor(workerID)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	if len(seg.free) == 0 {
		return nil, false
	}
	obj = seg.free[len(seg.free)-1]
	seg.free = seg.free[:len(seg.free)-1]
	obj.SetReturned(false)
	seg.debug[obj] = string(debug.Stack())
	return obj, true
}

// Put resets and returns obj to workerID's segment, which is not
// necessarily the segment obj was drawn from.
func (p *Pool) Put(workerID int, obj PooledObject) {
	if obj == nil {
		panic(fmt.Sprintf("pool %s: cannot put nil object", p.name))
	}
	ensureReturnable(obj, p.name)
	obj.Reset()
	obj.SetReturned(true)

	seg := p.segmentFor(workerID)
	seg.mu.Lock()
	defer seg.mu.Unlock()
	delete(seg.debug, obj)
	if len(seg.free) >= seg.cap {
		panic(fmt.Sprintf("pool %s: release exceeds segment capacity", p.name))
	}
	seg.free = append(seg.free, obj)
	seg.cond.Signal()
}

func ensureReturnable(obj PooledObject, poolName string) {
	if !obj.IsReturned() {
		return
	}
	panic(fmt.Sprintf("pool %s: double-Put() detected for %T", poolName, obj))
}

// Len reports the total number of objects currently free across all
// segments (for introspection).
func (p *Pool) Len() int {
	total := 0
	for _, seg := range p.segments {
		seg.mu.Lock()
		total += len(seg.free)
		seg.mu.Unlock()
	}
	return total
}
