package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/janaflow/core/internal/errs"
)

type countingFactory struct {
	Base
	initCalls      int
	changeRunCalls int
	processCalls   int
	process        func(ctx *Context) error
}

func newCountingFactory(typeName, tag string) *countingFactory {
	return &countingFactory{Base: NewBase(typeName, tag)} //nolint:exhaustruct
}

func (f *countingFactory) Init() error {
	f.initCalls++
	return nil
}

func (f *countingFactory) ChangeRun(int64) error {
	f.changeRunCalls++
	return nil
}

func (f *countingFactory) Process(ctx *Context) error {
	f.processCalls++
	if f.process != nil {
		return f.process(ctx)
	}
	ctx.Set(f.processCalls)
	return nil
}

func TestCreateAndGetCallsInitChangeRunProcessOnce(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Dummy", "")
	fs.Add(f)
	fs.SetEventContext(1, 22)

	for i := 0; i < 2; i++ {
		if _, err := fs.Get(context.Background(), "Dummy", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.initCalls != 1 || f.changeRunCalls != 1 || f.processCalls != 1 {
		t.Fatalf("expected 1/1/1, got init=%d changerun=%d process=%d", f.initCalls, f.changeRunCalls, f.processCalls)
	}

	fs.Clear()
	if _, err := fs.Get(context.Background(), "Dummy", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.initCalls != 1 || f.changeRunCalls != 1 || f.processCalls != 2 {
		t.Fatalf("expected process to rerun after Clear, got %d", f.processCalls)
	}
}

func TestChangeRunOnlyOnRunTransition(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Dummy", "")
	fs.Add(f)

	fs.SetEventContext(1, 22)
	mustGet(t, fs, "Dummy")
	fs.Clear()

	fs.SetEventContext(2, 22)
	mustGet(t, fs, "Dummy")
	fs.Clear()

	fs.SetEventContext(3, 22)
	mustGet(t, fs, "Dummy")
	if f.changeRunCalls != 1 {
		t.Fatalf("expected ChangeRun called once across same-run events, got %d", f.changeRunCalls)
	}
	fs.Clear()

	fs.SetEventContext(4, 49)
	mustGet(t, fs, "Dummy")
	if f.changeRunCalls != 2 {
		t.Fatalf("expected ChangeRun called again on run transition, got %d", f.changeRunCalls)
	}
}

func TestMissingFactoryError(t *testing.T) {
	fs := NewFactorySet()
	if _, err := fs.Get(context.Background(), "Nope", ""); err == nil {
		t.Fatal("expected missing-factory error")
	}
}

func TestRecursiveDependency(t *testing.T) {
	fs := NewFactorySet()
	a := newCountingFactory("A", "")
	b := newCountingFactory("B", "")
	b.process = func(ctx *Context) error {
		v, err := ctx.Get("A", "")
		if err != nil {
			return err
		}
		ctx.Set(v.(int) + 1)
		return nil
	}
	fs.Add(a)
	fs.Add(b)
	fs.SetEventContext(1, 1)

	v, err := fs.Get(context.Background(), "B", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(int) != 2 {
		t.Fatalf("expected B to be A+1=2, got %v", v)
	}
	if a.processCalls != 1 {
		t.Fatalf("expected A processed exactly once, got %d", a.processCalls)
	}
}

func TestProcessPanicBecomesError(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Boom", "")
	f.process = func(*Context) error {
		panic("kaboom")
	}
	fs.Add(f)
	fs.SetEventContext(1, 1)

	if _, err := fs.Get(context.Background(), "Boom", ""); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestProcessErrorBecomesError(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Bad", "")
	f.process = func(*Context) error {
		return errors.New("nope")
	}
	fs.Add(f)
	fs.SetEventContext(1, 1)

	if _, err := fs.Get(context.Background(), "Bad", ""); err == nil {
		t.Fatal("expected process error to surface")
	}
}

func TestPersistentSurvivesClear(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Calib", "")
	f.SetPersistentFlag(true)
	fs.Add(f)
	fs.SetEventContext(1, 1)

	mustGet(t, fs, "Calib")
	fs.Clear()
	mustGet(t, fs, "Calib")

	if f.processCalls != 1 {
		t.Fatalf("expected persistent factory to process only once, got %d", f.processCalls)
	}
}

// TestRecursiveChainFourDeep mirrors spec.md §8's S4: A -> B -> C -> D,
// each depending on the previous, with D requested from the caller. Every
// factory in the chain must process exactly once per event, in dependency
// order, even though only the leaf (D) is ever asked for directly.
func TestRecursiveChainFourDeep(t *testing.T) {
	fs := NewFactorySet()
	a := newCountingFactory("A", "")
	b := newCountingFactory("B", "")
	c := newCountingFactory("C", "")
	d := newCountingFactory("D", "")

	b.process = func(ctx *Context) error {
		v, err := ctx.Get("A", "")
		if err != nil {
			return err
		}
		ctx.Set(v.(int) + 1)
		return nil
	}
	c.process = func(ctx *Context) error {
		v, err := ctx.Get("B", "")
		if err != nil {
			return err
		}
		ctx.Set(v.(int) + 1)
		return nil
	}
	d.process = func(ctx *Context) error {
		v, err := ctx.Get("C", "")
		if err != nil {
			return err
		}
		ctx.Set(v.(int) + 1)
		return nil
	}

	fs.Add(a)
	fs.Add(b)
	fs.Add(c)
	fs.Add(d)
	fs.SetEventContext(1, 1)

	v, err := fs.Get(context.Background(), "D", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(int) != 4 {
		t.Fatalf("expected D = A+3 = 4, got %v", v)
	}
	for name, f := range map[string]*countingFactory{"A": a, "B": b, "C": c, "D": d} {
		if f.processCalls != 1 {
			t.Fatalf("expected %s processed exactly once, got %d", name, f.processCalls)
		}
	}
}

// TestChangeRunAcrossTenEventsTwoRuns mirrors spec.md §8's S5: 10 events,
// the first 5 at run 22 and the next 5 at run 49, expect ChangeRun called
// exactly twice (once per run, never per event).
func TestChangeRunAcrossTenEventsTwoRuns(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Dummy", "")
	fs.Add(f)

	for evt := int64(1); evt <= 10; evt++ {
		run := int64(22)
		if evt > 5 {
			run = 49
		}
		fs.SetEventContext(evt, run)
		mustGet(t, fs, "Dummy")
		fs.Clear()
	}

	if f.changeRunCalls != 2 {
		t.Fatalf("expected exactly 2 ChangeRun calls across 10 events/2 runs, got %d", f.changeRunCalls)
	}
	if f.initCalls != 1 {
		t.Fatalf("expected exactly 1 Init call, got %d", f.initCalls)
	}
	if f.processCalls != 10 {
		t.Fatalf("expected Process called once per event (10), got %d", f.processCalls)
	}
}

// TestExceptionCarriesFactoryTagAndEventContext mirrors spec.md §8's S7:
// an exception raised deep in a factory's Process must surface carrying
// the factory's type name, tag, and the event/run numbers in play.
func TestExceptionCarriesFactoryTagAndEventContext(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Hits", "calib")
	f.process = func(*Context) error {
		return errors.New("bad calibration constant")
	}
	fs.Add(f)
	fs.SetEventContext(3, 17)

	_, err := fs.Get(context.Background(), "Hits", "calib")
	if err == nil {
		t.Fatal("expected an error")
	}
	fe, ok := err.(*errs.E)
	if !ok {
		t.Fatalf("expected *errs.E, got %T", err)
	}
	if fe.Factory != "Hits" || fe.Tag != "calib" {
		t.Fatalf("expected factory=Hits tag=calib, got factory=%q tag=%q", fe.Factory, fe.Tag)
	}
	if fe.EventNum != 3 || fe.RunNum != 17 {
		t.Fatalf("expected event=3 run=17, got event=%d run=%d", fe.EventNum, fe.RunNum)
	}
}

// TestProcessDoesNotRerunWhenNoSetCalled mirrors spec.md §3/§7: a factory
// whose Process legitimately finds nothing to produce for this event (and
// never calls ctx.Set) must still memoize that outcome as NeverCreated, so
// a second Get in the same event returns the no-payload result instead of
// running Process again.
func TestProcessDoesNotRerunWhenNoSetCalled(t *testing.T) {
	fs := NewFactorySet()
	f := newCountingFactory("Empty", "")
	f.process = func(*Context) error {
		return nil
	}
	fs.Add(f)
	fs.SetEventContext(1, 1)

	for i := 0; i < 2; i++ {
		v, err := fs.Get(context.Background(), "Empty", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != nil {
			t.Fatalf("expected nil payload, got %v", v)
		}
	}
	if f.processCalls != 1 {
		t.Fatalf("expected Process to run exactly once when it never calls Set, got %d", f.processCalls)
	}
}

func mustGet(t *testing.T, fs *FactorySet, typeName string) {
	t.Helper()
	if _, err := fs.Get(context.Background(), typeName, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
