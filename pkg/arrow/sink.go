package arrow

import "github.com/janaflow/core/pkg/mailbox"

// SinkOp accumulates items reaching the end of the topology, mirroring
// Arrow.h's SinkOp<T>.
type SinkOp interface {
	Accumulate(item any)
}

// Sink is a Sink arrow: it only has an inbox, popping a chunk and handing
// each item to its SinkOp.
type Sink struct {
	Base
	op    SinkOp
	inbox *mailbox.Mailbox
}

// NewSink builds a Sink arrow reading from inbox.
func NewSink(base Base, op SinkOp, inbox *mailbox.Mailbox) *Sink {
	return &Sink{Base: base, op: op, inbox: inbox} //nolint:exhaustruct
}

// Fire mirrors Arrow.h's SinkArrow::execute.
func (s *Sink) Fire() Status {
	if s.IsFinished() {
		return Finished
	}

	chunk := make([]any, s.ChunkSize)
	popStatus, n := s.inbox.TryPop(chunk)
	panicked := false
	for i := 0; i < n; i++ {
		if chunk[i] == nil {
			continue
		}
		item := chunk[i]
		if p, recovered := recoverCall(func() { s.op.Accumulate(item) }); p {
			panicked = true
			s.setLastPanic(recovered)
		}
	}

	if panicked {
		return Errored
	}
	switch {
	case popStatus == mailbox.Ready:
		return KeepGoing
	case popStatus != mailbox.Ready && s.ActiveUpstreamCount() == 0:
		s.MarkFinished()
		return Finished
	default:
		return ComeBackLater
	}
}
