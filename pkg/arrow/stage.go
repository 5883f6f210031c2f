package arrow

import "github.com/janaflow/core/pkg/mailbox"

// MapOp transforms one inbound item into one outbound item, mirroring
// Arrow.h's MapOp<T,U>.
type MapOp interface {
	Map(item any) any
}

// Stage is a Stage arrow: it has both an inbox and an outbox, popping a
// chunk, mapping each item, and pushing the mapped chunk downstream in one
// fire.
type Stage struct {
	Base
	op     MapOp
	inbox  *mailbox.Mailbox
	outbox *mailbox.Mailbox
}

// NewStage builds a Stage arrow reading from inbox and writing to outbox.
func NewStage(base Base, op MapOp, inbox, outbox *mailbox.Mailbox) *Stage {
	return &Stage{Base: base, op: op, inbox: inbox, outbox: outbox} //nolint:exhaustruct
}

// Fire mirrors Arrow.h's StageArrow::execute: reserve outbox space first
// (so a full downstream never silently drops popped input), then pop,
// map, and push.
func (s *Stage) Fire() Status {
	if s.IsFinished() {
		return Finished
	}

	start, reserved := s.outbox.Reserve(s.ChunkSize)
	if reserved == 0 {
		return ComeBackLater
	}

	in := make([]any, reserved)
	popStatus, n := s.inbox.TryPop(in)

	out := make([]any, n)
	panicked := false
	for i := 0; i < n; i++ {
		item := in[i]
		if p, recovered := recoverCall(func() { out[i] = s.op.Map(item) }); p {
			panicked = true
			s.setLastPanic(recovered)
		}
	}
	s.outbox.Push(start, out, reserved)

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
