package arrow

import "github.com/janaflow/core/pkg/mailbox"

// MergeOp folds one item from one of a Merge arrow's inboxes into the
// arrow's single outbound type, mirroring Arrow.h's MergeOp<T,U,V>::visit
// overloads (generalized here to N inboxes instead of exactly two).
type MergeOp interface {
	Visit(inboxIndex int, item any) any
}

// Merge is the arrow shape supplemented from original_source/ (§
// "Broadcast/merge/split/scatter arrow shapes" in SPEC_FULL.md): N inbound
// mailboxes feeding one outbox, grounded on the teacher's
// core/orchestrator/merge.go MergeEvents (combine partials into one,
// recycle the rest).
type Merge struct {
	Base
	op      MergeOp
	inboxes []*mailbox.Mailbox
	outbox  *mailbox.Mailbox
	cursor  int
}

// NewMerge builds a Merge arrow folding inboxes into outbox via op.
func NewMerge(base Base, op MergeOp, inboxes []*mailbox.Mailbox, outbox *mailbox.Mailbox) *Merge {
	return &Merge{Base: base, op: op, inboxes: inboxes, outbox: outbox} //nolint:exhaustruct
}

// Fire reserves outbox space, then round-robins across inboxes popping one
// item at a time and folding it through MergeOp.Visit until the
// reservation is filled or every inbox is momentarily empty.
func (m *Merge) Fire() Status {
	if m.IsFinished() {
		return Finished
	}
	if len(m.inboxes) == 0 {
		return ComeBackLater
	}

	start, reserved := m.outbox.Reserve(m.ChunkSize)
	if reserved == 0 {
		return ComeBackLater
	}

	out := make([]any, 0, reserved)
	oneItem := make([]any, 1)
	activeAny := false
	panicked := false

	for len(out) < reserved {
		progressedThisPass := false
		for i := 0; i < len(m.inboxes) && len(out) < reserved; i++ {
			idx := (m.cursor + i) % len(m.inboxes)
			status, n := m.inboxes[idx].TryPop(oneItem)
			if status == mailbox.Ready && n == 1 {
				item := oneItem[0]
				var visited any
				if p, recovered := recoverCall(func() { visited = m.op.Visit(idx, item) }); p {
					panicked = true
					m.setLastPanic(recovered)
				}
				out = append(out, visited)
				progressedThisPass = true
				activeAny = true
			}
		}
		m.cursor = (m.cursor + 1) % len(m.inboxes)
		if !progressedThisPass {
			break
		}
	}

	m.outbox.Push(start, out, reserved)

	if panicked {
		return Errored
	}
	switch {
	case len(out) > 0:
		return KeepGoing
	case m.ActiveUpstreamCount() == 0 && !activeAny:
		m.MarkFinished()
		return Finished
	default:
		return ComeBackLater
	}
}
