package arrow

import (
	"testing"

	"github.com/janaflow/core/internal/config"
	"github.com/janaflow/core/pkg/mailbox"
)

func testSettings(chunk int) config.ArrowSettings {
	return config.ArrowSettings{ //nolint:exhaustruct
		ChunkSize:       chunk,
		BackoffStrategy: config.BackoffExponential,
	}
}

type sliceSource struct {
	items []any
	i     int
}

func (s *sliceSource) Next() (any, SourceStatus) {
	if s.i >= len(s.items) {
		return nil, SourceFailFinished
	}
	item := s.items[s.i]
	s.i++
	return item, SourceSuccess
}

func TestSourceFiresUntilFinished(t *testing.T) {
	out := mailbox.New(10)
	src := NewSource(NewBase("src", false, testSettings(3)), &sliceSource{items: []any{1, 2, 3, 4, 5}}, out) //nolint:exhaustruct

	if st := src.Fire(); st != KeepGoing {
		t.Fatalf("expected KeepGoing, got %v", st)
	}
	if out.Len() != 3 {
		t.Fatalf("expected 3 items pushed, got %d", out.Len())
	}

	st := src.Fire()
	if st != Finished {
		t.Fatalf("expected Finished once items exhausted, got %v", st)
	}
	if !src.IsFinished() {
		t.Fatal("expected IsFinished true")
	}
	if out.Len() != 5 {
		t.Fatalf("expected exactly 5 real items total (no phantom nils from the unfilled reservation tail), got %d", out.Len())
	}
}

type doubleMap struct{}

func (doubleMap) Map(item any) any { return item.(int) * 2 }

func TestStageMapsPoppedItems(t *testing.T) {
	in := mailbox.New(4)
	out := mailbox.New(4)
	start, k := in.Reserve(2)
	in.Push(start, []any{1, 2}, k)

	stage := NewStage(NewBase("stage", false, testSettings(2)), doubleMap{}, in, out) //nolint:exhaustruct
	if st := stage.Fire(); st != KeepGoing {
		t.Fatalf("expected KeepGoing, got %v", st)
	}
	dest := make([]any, 2)
	out.TryPop(dest)
	if dest[0] != 2 || dest[1] != 4 {
		t.Fatalf("expected doubled items, got %v", dest)
	}
}

type panicMap struct{}

func (panicMap) Map(any) any { panic("boom") }

func TestStageRecoversPanicAsErrored(t *testing.T) {
	in := mailbox.New(4)
	out := mailbox.New(4)
	start, k := in.Reserve(1)
	in.Push(start, []any{1}, k)

	stage := NewStage(NewBase("stage", false, testSettings(1)), panicMap{}, in, out) //nolint:exhaustruct
	if st := stage.Fire(); st != Errored {
		t.Fatalf("expected Errored after panicking Map, got %v", st)
	}
	if stage.LastPanic() == nil {
		t.Fatal("expected LastPanic to capture the recovered value")
	}
}

// TestBackpressureComeBackLaterThenConserves mirrors spec.md §8's S6: a
// capacity-4 mailbox that fills past capacity must make a Source observe
// ComeBackLater rather than lose or duplicate items — once a consumer
// frees capacity, every item the source ever produced is still delivered
// exactly once.
func TestBackpressureComeBackLaterThenConserves(t *testing.T) {
	out := mailbox.New(4)

	// Fill the mailbox to capacity directly, simulating a slow downstream
	// that hasn't popped anything yet.
	start, granted := out.Reserve(4)
	if granted != 4 {
		t.Fatalf("expected to reserve the full capacity, got %d", granted)
	}
	out.Push(start, []any{"x", "x", "x", "x"}, granted)

	src := NewSource(NewBase("src", false, testSettings(2)), &sliceSource{items: []any{1, 2}}, out) //nolint:exhaustruct
	if st := src.Fire(); st != ComeBackLater {
		t.Fatalf("expected ComeBackLater on a full mailbox, got %v", st)
	}
	// Free capacity the way a consumer would, then retry: the full outbox
	// stopped the source before it pulled anything, so both of its items
	// must still be delivered, neither lost nor duplicated.
	drained := make([]any, 4)
	status, n := out.TryPop(drained)
	if status != mailbox.Ready || n != 4 {
		t.Fatalf("expected to drain 4 placeholder items, got status=%v n=%d", status, n)
	}

	if st := src.Fire(); st != KeepGoing {
		t.Fatalf("expected KeepGoing once capacity freed, got %v", st)
	}
	if out.Len() != 2 {
		t.Fatalf("expected both conserved items delivered, got %d", out.Len())
	}
	delivered := make([]any, 2)
	if status, n := out.TryPop(delivered); status != mailbox.Ready || n != 2 {
		t.Fatalf("expected to pop 2 delivered items, got status=%v n=%d", status, n)
	}
	if delivered[0] != 1 || delivered[1] != 2 {
		t.Fatalf("expected items delivered in order [1 2], got %v", delivered)
	}
}

func TestStageFinishesWhenInboxEmptyAndNoUpstream(t *testing.T) {
	in := mailbox.New(4)
	out := mailbox.New(4)
	stage := NewStage(NewBase("stage", false, testSettings(2)), doubleMap{}, in, out) //nolint:exhaustruct
	if st := stage.Fire(); st != Finished {
		t.Fatalf("expected Finished with no upstream and empty inbox, got %v", st)
	}
}

type sumSink struct{ total int }

func (s *sumSink) Accumulate(item any) { s.total += item.(int) }

func TestSinkAccumulates(t *testing.T) {
	in := mailbox.New(4)
	start, k := in.Reserve(3)
	in.Push(start, []any{10, 20, 30}, k)

	sink := &sumSink{}
	arrowSink := NewSink(NewBase("sink", false, testSettings(3)), sink, in) //nolint:exhaustruct
	if st := arrowSink.Fire(); st != KeepGoing {
		t.Fatalf("expected KeepGoing, got %v", st)
	}
	if sink.total != 60 {
		t.Fatalf("expected sum 60, got %d", sink.total)
	}
}

func TestBroadcastCopiesToAllOutboxes(t *testing.T) {
	in := mailbox.New(4)
	out1 := mailbox.New(4)
	out2 := mailbox.New(4)
	start, k := in.Reserve(2)
	in.Push(start, []any{"x", "y"}, k)

	b := NewBroadcast(NewBase("bcast", false, testSettings(2)), in, []*mailbox.Mailbox{out1, out2}) //nolint:exhaustruct
	if st := b.Fire(); st != KeepGoing {
		t.Fatalf("expected KeepGoing, got %v", st)
	}
	if out1.Len() != 2 || out2.Len() != 2 {
		t.Fatalf("expected both outboxes to receive 2 items, got %d/%d", out1.Len(), out2.Len())
	}
}

type sumMerge struct{}

func (sumMerge) Visit(_ int, item any) any { return item }

func TestMergeFoldsFromMultipleInboxes(t *testing.T) {
	a := mailbox.New(4)
	b := mailbox.New(4)
	out := mailbox.New(8)
	sa, ka := a.Reserve(1)
	a.Push(sa, []any{1}, ka)
	sb, kb := b.Reserve(1)
	b.Push(sb, []any{2}, kb)

	m := NewMerge(NewBase("merge", false, testSettings(4)), sumMerge{}, []*mailbox.Mailbox{a, b}, out) //nolint:exhaustruct
	if st := m.Fire(); st != KeepGoing {
		t.Fatalf("expected KeepGoing, got %v", st)
	}
	if out.Len() != 2 {
		t.Fatalf("expected 2 merged items, got %d", out.Len())
	}
}
