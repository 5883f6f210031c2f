// Package mailbox implements the bounded MPMC queues arrows communicate
// through (spec.md §4.2/§4.3): a two-phase reserve/push producer API so a
// caller can claim capacity before it has assembled the items to write,
// and a pop API that returns a status alongside however many items were
// actually available.
package mailbox

import "sync"

// Status reports the outcome of a Pop call.
type Status int

const (
	// Ready means at least one item was popped.
	Ready Status = iota
	// Empty means the mailbox had nothing to pop but is still open.
	Empty
	// Closed means the mailbox is closed and drained; no more items will
	// ever arrive.
	Closed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mailbox is a bounded, multi-producer/multi-consumer ring buffer. Writers
// call Reserve to atomically claim up to n contiguous slots, then Push to
// fill them; a reservation's slots only become visible to Pop once every
// slot from the head of the ring up to and including it has been pushed,
// preserving FIFO order even when two reservations complete out of order.
type Mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond

	ring  []any
	ready []bool
	skip  []bool

	capacity    int
	head        int
	commitLen   int
	reservedLen int
	skipCount   int
	pending     []reservation
	closed      bool
}

// reservation tracks one outstanding Reserve call that hasn't been
// resolved by a matching Push yet, in the order Reserve granted them
// (which is also their physical order in the ring).
type reservation struct {
	start  int
	length int
}

// New constructs a Mailbox with the given bounded capacity.
func New(capacity int) *Mailbox {
	if capacity <= 0 {
		panic("mailbox: capacity must be positive")
	}
	mb := &Mailbox{ //nolint:exhaustruct
		ring:     make([]any, capacity),
		ready:    make([]bool, capacity),
		skip:     make([]bool, capacity),
		capacity: capacity,
	}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// Reserve claims up to n contiguous slots for a future Push, returning the
// starting slot index and how many slots were actually granted (which may
// be less than n, or zero, if the mailbox is near full or closed).
func (m *Mailbox) Reserve(n int) (start, granted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || n <= 0 {
		return 0, 0
	}
	avail := m.capacity - m.commitLen - m.reservedLen
	granted = min(n, avail)
	if granted == 0 {
		return 0, 0
	}
	start = (m.head + m.commitLen + m.reservedLen) % m.capacity
	m.reservedLen += granted
	m.pending = append(m.pending, reservation{start: start, length: granted})
	return start, granted
}

// Push fills a previously Reserve'd region starting at start with items,
// advancing the committed region over any now-contiguous run of pushed
// slots. len(items) may be less than reserved (the granted count Reserve
// returned for this same region) when the caller produced fewer items
// than it reserved capacity for; the unused tail is released back to the
// mailbox rather than committed as phantom entries (spec.md:90 "push to
// outputs in order; release any unused reservation"). If this was the
// outermost outstanding reservation the release is immediate and the
// capacity becomes available to the next Reserve; otherwise (some other
// reservation was already granted further along the ring and its
// physical slots can't be shifted back) the unused tail is committed as
// skip markers that Pop discards transparently, so it is still never
// handed to a consumer and never inflates Len().
func (m *Mailbox) Push(start int, items []any, reserved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range items {
		idx := (start + i) % m.capacity
		m.ring[idx] = it
		m.ready[idx] = true
	}
	m.resolveReservationLocked(start, reserved, len(items))
	for m.reservedLen > 0 {
		idx := (m.head + m.commitLen) % m.capacity
		if !m.ready[idx] {
			break
		}
		if m.skip[idx] {
			m.skipCount++
		}
		m.commitLen++
		m.reservedLen--
	}
	if m.commitLen > 0 {
		m.cond.Broadcast()
	}
}

// resolveReservationLocked reconciles a Push against the (start, reserved)
// reservation it fulfills: unused capacity at the tail is shrunk directly
// out of reservedLen when this was the last reservation granted (nothing
// physically follows it yet), or marked with skip slots otherwise.
func (m *Mailbox) resolveReservationLocked(start, reserved, filled int) {
	idx := -1
	for i, r := range m.pending {
		if r.start == start && r.length == reserved {
			idx = i
			break
		}
	}
	isOutermost := idx >= 0 && idx == len(m.pending)-1
	if idx >= 0 {
		m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
	}

	unused := reserved - filled
	if unused <= 0 {
		return
	}
	if isOutermost {
		m.reservedLen -= unused
		return
	}
	for i := filled; i < reserved; i++ {
		slot := (start + i) % m.capacity
		m.ring[slot] = nil
		m.ready[slot] = true
		m.skip[slot] = true
	}
}

// Pop copies up to len(dest) committed items into dest, blocking while the
// mailbox is empty and open. It returns Closed once the mailbox has been
// Closed and fully drained, and Ready otherwise; it does not return Empty
// (TryPop is the non-blocking variant that does).
// Skip markers (released reservations that couldn't be shrunk immediately,
// see Push) are discarded transparently and never surface in dest; if the
// only committed slots were skip markers, Pop keeps waiting rather than
// returning a spurious Empty.
func (m *Mailbox) Pop(dest []any) (status Status, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		for m.commitLen == 0 && !m.closed {
			m.cond.Wait()
		}
		status, n = m.popLocked(dest)
		if status != Empty || m.closed {
			return status, n
		}
	}
}

// TryPop behaves like Pop but never blocks, returning Empty immediately if
// nothing is committed or everything committed was a skip marker.
func (m *Mailbox) TryPop(dest []any) (status Status, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked(dest)
}

func (m *Mailbox) popLocked(dest []any) (Status, int) {
	if m.commitLen == 0 {
		if m.closed {
			return Closed, 0
		}
		return Empty, 0
	}
	if len(dest) == 0 {
		return Ready, 0
	}
	n := 0
	for n < len(dest) && m.commitLen > 0 {
		idx := m.head % m.capacity
		if m.skip[idx] {
			m.skipCount--
		} else {
			dest[n] = m.ring[idx]
			n++
		}
		m.ring[idx] = nil
		m.ready[idx] = false
		m.skip[idx] = false
		m.head = (m.head + 1) % m.capacity
		m.commitLen--
	}
	if n == 0 {
		if m.closed {
			return Closed, 0
		}
		return Empty, 0
	}
	return Ready, n
}

// Close marks the mailbox closed: no further Reserve calls will succeed,
// and blocked Pop calls wake once the remaining committed items drain.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Len reports the number of real items currently available to Pop,
// excluding any committed skip markers left by a released reservation.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLen - m.skipCount
}

// Cap reports the mailbox's bounded capacity.
func (m *Mailbox) Cap() int { return m.capacity }
