package engine

import (
	"github.com/janaflow/core/internal/observability"
	"github.com/janaflow/core/pkg/arrow"
	"github.com/janaflow/core/pkg/event"
	"github.com/janaflow/core/pkg/mailbox"
)

// sourceAdapter wraps a user EventSource as an arrow.SourceOp, stamping
// strictly-monotone per-source event numbers (spec.md §6 "Persisted
// state": event numbers are strictly per-source monotone starting from
// 1) and applying the nskip/nevents window (spec.md §8 S2/S3).
type sourceAdapter struct {
	source  EventSource
	pool    *mailbox.Pool
	nskip   int64
	nevents int64

	counter int64
	emitted int64
}

func (a *sourceAdapter) Next() (any, arrow.SourceStatus) {
	if a.nevents > 0 && a.emitted >= a.nevents {
		return nil, arrow.SourceFailFinished
	}

	for {
		// TryGet, never Get: a blocking acquire here would stall this
		// worker inside Source.Fire forever once the pool is briefly
		// exhausted, since with few workers the same worker may be the
		// only one that could ever fire the Sink and free a slot back.
		obj, ok := a.pool.TryGet(0)
		if !ok {
			return nil, arrow.SourceFailTryAgain
		}
		ev, _ := obj.(*event.Event)

		status := a.source.Emit(ev)
		switch status {
		case EmitSuccess:
			a.counter++
			ev.Number = a.counter
			if a.source.SupportsFinishEvent() {
				ev.SetFinisher(a.source.FinishEvent)
			}
			ev.Factories.SetEventContext(ev.Number, ev.Run)
			ev.Factories.SetGetObjects(func(typeName, tag string) (any, bool) {
				return a.source.GetObjects(ev, typeName, tag)
			})
			if a.counter <= a.nskip {
				a.pool.Put(0, ev)
				continue
			}
			a.emitted++
			return ev, arrow.SourceSuccess
		case EmitFailureTryAgain:
			a.pool.Put(0, ev)
			return nil, arrow.SourceFailTryAgain
		case EmitFailureFinished:
			a.pool.Put(0, ev)
			return nil, arrow.SourceFailFinished
		default:
			a.pool.Put(0, ev)
			return nil, arrow.SourceFailFinished
		}
	}
}

// sinkAdapter wraps a user EventProcessor as an arrow.SinkOp: it runs
// Process, invokes the source's finish_event hook when opted in, records
// the completion metric, and recycles the event back to the pool. A
// Process error becomes a panic so the arrow's recoverCall folds it into
// an Errored fire status (spec.md §7 "RuntimeFactoryFailure").
type sinkAdapter struct {
	proc    EventProcessor
	source  EventSource
	pool    *mailbox.Pool
	metrics *observability.EngineMetrics
}

func (s *sinkAdapter) Accumulate(item any) {
	ev, ok := item.(*event.Event)
	if !ok || ev == nil {
		return
	}
	defer func() {
		ev.Finish()
		s.pool.Put(0, ev)
	}()

	if err := s.proc.Process(ev); err != nil {
		panic(err)
	}
	s.metrics.RecordEventCompleted()
}
