package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/janaflow/core/internal/errs"
	"github.com/janaflow/core/pkg/scheduler"
	"github.com/janaflow/core/pkg/worker"
)

type fakeWorker struct {
	state     worker.State
	heartbeat time.Time
	err       *errs.E
	timedOut  bool
}

func (f *fakeWorker) State() worker.State      { return f.state }
func (f *fakeWorker) Heartbeat() time.Time     { return f.heartbeat }
func (f *fakeWorker) Exception() *errs.E       { return f.err }
func (f *fakeWorker) MarkTimedOut()            { f.timedOut = true; f.state = worker.TimedOut }
func (f *fakeWorker) LastArrow() string        { return "test-arrow" }

func TestSupervisorFlagsStaleHeartbeatAsTimedOut(t *testing.T) {
	w := &fakeWorker{state: worker.Running, heartbeat: time.Now().Add(-time.Hour)} //nolint:exhaustruct
	topo := scheduler.NewTopology()
	topo.Run()

	s := New(Config{ //nolint:exhaustruct
		SampleInterval: time.Millisecond,
		WarmupTimeout:  time.Millisecond,
		SteadyTimeout:  time.Millisecond,
		MaxInflight:    1,
		NWorkers:       1,
	}, []Observable{w}, topo)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if !w.timedOut {
		t.Fatal("expected worker to be marked TimedOut")
	}
}

func TestSupervisorDrainsAndFinalizesOnException(t *testing.T) {
	e := errs.New(errs.CodeRuntimeFactory, errs.WithMessage("boom"))
	w := &fakeWorker{state: worker.Excepted, heartbeat: time.Now(), err: e} //nolint:exhaustruct
	topo := scheduler.NewTopology()
	topo.Run()

	s := New(Config{SampleInterval: time.Millisecond}, []Observable{w}, topo) //nolint:exhaustruct

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	exceptions := s.Run(ctx)

	if topo.State() != scheduler.Finalized {
		t.Fatalf("expected topology Finalized, got %v", topo.State())
	}
	if len(exceptions) != 1 || exceptions[0] != e {
		t.Fatalf("expected the worker's exception to be collected, got %v", exceptions)
	}
}
