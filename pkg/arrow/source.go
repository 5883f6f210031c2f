package arrow

import "github.com/janaflow/core/pkg/mailbox"

// SourceStatus is the result of one SourceOp.Next call, mirroring
// Arrow.h's SourceOp<T>::Status.
type SourceStatus int

const (
	// SourceSuccess means Next produced an item.
	SourceSuccess SourceStatus = iota
	// SourceFailTryAgain means no item is available yet but the source
	// is not done (e.g. a network read would block).
	SourceFailTryAgain
	// SourceFailFinished means the source has no more items, ever.
	SourceFailFinished
)

// SourceOp supplies items into the topology; implementations are the
// user-provided EventSource (spec.md §6).
type SourceOp interface {
	Next() (item any, status SourceStatus)
}

// Source is a Source arrow: it has no inbox, only an outbox, and fires by
// pulling up to ChunkSize items from its SourceOp and pushing whatever it
// got into the outbox in one reservation.
type Source struct {
	Base
	op     SourceOp
	outbox *mailbox.Mailbox
}

// NewSource builds a Source arrow wired to write into outbox.
func NewSource(base Base, op SourceOp, outbox *mailbox.Mailbox) *Source {
	return &Source{Base: base, op: op, outbox: outbox} //nolint:exhaustruct
}

// Fire pulls up to ChunkSize items and pushes them downstream in one
// reservation, exactly as Arrow.h's SourceArrow::execute does: the
// reservation is returned to the outbox regardless of how many items the
// source actually produced before FailTryAgain/FailFinished.
func (s *Source) Fire() Status {
	if s.IsFinished() {
		return Finished
	}

	start, reserved := s.outbox.Reserve(s.ChunkSize)
	if reserved == 0 {
		return ComeBackLater
	}

	// items only grows to however many Next() actually produces; Push is
	// told the full reserved count so it can release whatever's left of
	// the reservation instead of committing a phantom tail (spec.md:90
	// "release any unused reservation").
	items := make([]any, 0, reserved)
	result := SourceSuccess
	panicked := false
	for len(items) < reserved && result == SourceSuccess {
		var item any
		if p, recovered := recoverCall(func() { item, result = s.op.Next() }); p {
			panicked = true
			s.setLastPanic(recovered)
			break
		}
		if result == SourceSuccess {
			items = append(items, item)
		}
	}

	s.outbox.Push(start, items, reserved)

	if panicked {
		return Errored
	}
	switch result {
	case SourceSuccess:
		return KeepGoing
	case SourceFailTryAgain:
		return ComeBackLater
	case SourceFailFinished:
		s.MarkFinished()
		return Finished
	default:
		return Errored
	}
}
