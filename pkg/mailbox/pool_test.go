package mailbox

import (
	"testing"

	"github.com/janaflow/core/internal/config"
	"github.com/janaflow/core/internal/topology"
)

type fakePooled struct {
	resetCalls int
	returned   bool
}

func (f *fakePooled) Reset()            { f.resetCalls++ }
func (f *fakePooled) SetReturned(v bool) { f.returned = v }
func (f *fakePooled) IsReturned() bool  { return f.returned }

func TestPoolGetPutRoundTrip(t *testing.T) {
	p := NewPool("events", 2, func() PooledObject { return &fakePooled{} }, config.LocalityGlobal, nil) //nolint:exhaustruct
	obj := p.Get(0)
	if obj.IsReturned() {
		t.Fatal("expected acquired object to be marked not-returned")
	}
	p.Put(0, obj)
	if !obj.IsReturned() {
		t.Fatal("expected put object to be marked returned")
	}
	fp := obj.(*fakePooled)
	if fp.resetCalls != 1 {
		t.Fatalf("expected Reset called once, got %d", fp.resetCalls)
	}
}

func TestPoolDoublePutPanics(t *testing.T) {
	p := NewPool("events", 2, func() PooledObject { return &fakePooled{} }, config.LocalityGlobal, nil) //nolint:exhaustruct
	obj := p.Get(0)
	p.Put(0, obj)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected double-Put to panic")
		}
	}()
	p.Put(0, obj)
}

func TestPoolTryGetExhausted(t *testing.T) {
	p := NewPool("events", 1, func() PooledObject { return &fakePooled{} }, config.LocalityGlobal, nil) //nolint:exhaustruct
	_, ok := p.TryGet(0)
	if !ok {
		t.Fatal("expected first TryGet to succeed")
	}
	_, ok = p.TryGet(0)
	if ok {
		t.Fatal("expected exhausted segment to fail TryGet")
	}
}

func TestPoolWithoutSlotsStaysOneSegment(t *testing.T) {
	p := NewPool("events", 4, func() PooledObject { return &fakePooled{} }, config.LocalitySocket, nil) //nolint:exhaustruct
	if p.Len() != 4 {
		t.Fatalf("expected 4 objects total in the single segment, got %d", p.Len())
	}
	if len(p.segments) != 1 {
		t.Fatalf("expected one segment when no topology slots are given, got %d", len(p.segments))
	}
}

func TestPoolSegmentsByTopologySlots(t *testing.T) {
	slots := []topology.Slot{{CPU: 0, Core: 0, Socket: 0, Numa: 0}, {CPU: 1, Core: 1, Socket: 1, Numa: 1}}
	p := NewPool("events", 4, func() PooledObject { return &fakePooled{} }, config.LocalitySocket, slots) //nolint:exhaustruct
	if len(p.segments) != 2 {
		t.Fatalf("expected two segments, one per topology slot, got %d", len(p.segments))
	}
	if p.Len() != 4 {
		t.Fatalf("expected 4 objects total across segments, got %d", p.Len())
	}
}
