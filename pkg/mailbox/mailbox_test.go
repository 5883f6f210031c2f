package mailbox

import (
	"sync"
	"testing"
)

func TestReservePushPopRoundTrip(t *testing.T) {
	mb := New(4)
	start, k := mb.Reserve(2)
	if k != 2 {
		t.Fatalf("expected reservation of 2, got %d", k)
	}
	mb.Push(start, []any{"a", "b"}, k)

	dest := make([]any, 4)
	status, n := mb.TryPop(dest)
	if status != Ready || n != 2 {
		t.Fatalf("expected Ready/2, got %v/%d", status, n)
	}
	if dest[0] != "a" || dest[1] != "b" {
		t.Fatalf("unexpected order: %v", dest[:2])
	}
}

func TestReserveBoundedByCapacity(t *testing.T) {
	mb := New(2)
	_, k1 := mb.Reserve(5)
	if k1 != 2 {
		t.Fatalf("expected reservation capped at capacity 2, got %d", k1)
	}
	_, k2 := mb.Reserve(1)
	if k2 != 0 {
		t.Fatalf("expected zero reservation when mailbox is full, got %d", k2)
	}
}

func TestOutOfOrderPushPreservesFIFO(t *testing.T) {
	mb := New(4)
	startA, kA := mb.Reserve(2)
	startB, kB := mb.Reserve(2)
	if kA != 2 || kB != 2 {
		t.Fatalf("expected both reservations to succeed, got %d/%d", kA, kB)
	}

	// B pushes first; its slots must not become visible until A pushes,
	// since A's reservation precedes B's in the ring.
	mb.Push(startB, []any{"b0", "b1"}, kB)
	if mb.Len() != 0 {
		t.Fatalf("expected nothing committed before A pushes, got len=%d", mb.Len())
	}

	mb.Push(startA, []any{"a0", "a1"}, kA)
	if mb.Len() != 4 {
		t.Fatalf("expected all 4 slots committed once A pushes, got len=%d", mb.Len())
	}

	dest := make([]any, 4)
	_, n := mb.TryPop(dest)
	if n != 4 {
		t.Fatalf("expected to pop all 4, got %d", n)
	}
	want := []any{"a0", "a1", "b0", "b1"}
	for i, w := range want {
		if dest[i] != w {
			t.Fatalf("expected FIFO order %v, got %v", want, dest[:4])
		}
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	mb := New(2)
	start, _ := mb.Reserve(1)
	mb.Push(start, []any{"x"}, 1)
	mb.Close()

	dest := make([]any, 1)
	status, n := mb.Pop(dest)
	if status != Ready || n != 1 {
		t.Fatalf("expected draining Ready/1, got %v/%d", status, n)
	}
	status, n = mb.Pop(dest)
	if status != Closed || n != 0 {
		t.Fatalf("expected Closed/0 once drained, got %v/%d", status, n)
	}
}

func TestReserveFailsOnceClosed(t *testing.T) {
	mb := New(2)
	mb.Close()
	_, k := mb.Reserve(1)
	if k != 0 {
		t.Fatalf("expected closed mailbox to refuse reservations, got %d", k)
	}
}

func TestPushReleasesUnusedOutermostReservationImmediately(t *testing.T) {
	mb := New(4)
	start, k := mb.Reserve(4)
	if k != 4 {
		t.Fatalf("expected reservation of 4, got %d", k)
	}
	// Only fill 2 of the 4 reserved slots; the outermost reservation's
	// unused tail should be released back to the mailbox rather than
	// committed, freeing capacity for a subsequent Reserve.
	mb.Push(start, []any{"a", "b"}, k)

	if got := mb.Len(); got != 2 {
		t.Fatalf("expected 2 committed items, got %d", got)
	}
	_, k2 := mb.Reserve(2)
	if k2 != 2 {
		t.Fatalf("expected the released 2 slots to be available immediately, got %d", k2)
	}
}

func TestPushCommitsSkipMarkersWhenNotOutermost(t *testing.T) {
	mb := New(4)
	startA, kA := mb.Reserve(2)
	startB, kB := mb.Reserve(2)
	if kA != 2 || kB != 2 {
		t.Fatalf("expected both reservations to succeed, got %d/%d", kA, kB)
	}

	// A is not the outermost reservation (B was granted after it), so
	// releasing its unused tail must fall back to a skip marker rather
	// than shrinking reservedLen out from under B's already-placed slots.
	mb.Push(startA, []any{"a0"}, kA)
	mb.Push(startB, []any{"b0", "b1"}, kB)

	if got := mb.Len(); got != 3 {
		t.Fatalf("expected 3 real items (skip marker excluded), got %d", got)
	}
	dest := make([]any, 3)
	status, n := mb.TryPop(dest)
	if status != Ready || n != 3 {
		t.Fatalf("expected Ready/3, got %v/%d", status, n)
	}
	want := []any{"a0", "b0", "b1"}
	for i, w := range want {
		if dest[i] != w {
			t.Fatalf("expected skip marker transparently discarded, order %v, got %v", want, dest[:3])
		}
	}
}

func TestConcurrentProducersNeverExceedCapacity(t *testing.T) {
	mb := New(8)
	var wg sync.WaitGroup
	for p := 0; p < 16; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				start, k := mb.Reserve(1)
				if k == 0 {
					return
				}
				mb.Push(start, []any{id}, k)
			}
		}(p)
	}
	wg.Wait()
	if mb.Len() != 8 {
		t.Fatalf("expected exactly capacity items committed, got %d", mb.Len())
	}
}
