package arrow

import "github.com/janaflow/core/pkg/mailbox"

// Broadcast is a Broadcast arrow: one inbox, N outboxes, each fire copies
// the same popped chunk to every downstream mailbox. Grounded on both
// Arrow.h's BroadcastArrow::execute (reserve-the-minimum-across-outboxes
// discipline) and the teacher's core/dispatcher/fanout.go concurrent
// delivery-to-many-subscribers shape.
type Broadcast struct {
	Base
	inbox    *mailbox.Mailbox
	outboxes []*mailbox.Mailbox
}

// NewBroadcast builds a Broadcast arrow fanning inbox out to outboxes.
func NewBroadcast(base Base, inbox *mailbox.Mailbox, outboxes []*mailbox.Mailbox) *Broadcast {
	return &Broadcast{Base: base, inbox: inbox, outboxes: outboxes} //nolint:exhaustruct
}

// Fire reserves space in every outbox, clamping the requested count down
// to whichever outbox granted the least, then pops up to that many items
// once and pushes the same popped items to every outbox's reservation.
func (b *Broadcast) Fire() Status {
	if b.IsFinished() {
		return Finished
	}
	if len(b.outboxes) == 0 {
		return ComeBackLater
	}

	requestedCap := b.ChunkSize
	starts := make([]int, len(b.outboxes))
	grants := make([]int, len(b.outboxes))
	for i, ob := range b.outboxes {
		start, granted := ob.Reserve(requestedCap)
		starts[i] = start
		grants[i] = granted
		if granted < requestedCap {
			requestedCap = granted
		}
	}
	if requestedCap == 0 {
		for i, ob := range b.outboxes {
			if grants[i] > 0 {
				ob.Push(starts[i], nil, grants[i])
			}
		}
		return ComeBackLater
	}

	chunk := make([]any, requestedCap)
	popStatus, n := b.inbox.TryPop(chunk)
	chunk = chunk[:n]

	// Each outbox's own reservation may be larger than requestedCap (it
	// was clamped down by a stingier sibling outbox discovered later);
	// the unused tail of such a reservation is released back to that
	// outbox instead of padded with skip markers.
	for i, ob := range b.outboxes {
		ob.Push(starts[i], chunk, grants[i])
	}

	switch {
	case popStatus == mailbox.Ready:
		return KeepGoing
	case popStatus != mailbox.Ready && b.ActiveUpstreamCount() == 0:
		b.MarkFinished()
		return Finished
	default:
		return ComeBackLater
	}
}
