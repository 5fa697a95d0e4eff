package solver

import "context"

// Proposal is a choice put forward for a question in one round.
type Proposal struct {
	QuestionID string
	Choice     int
	Slot       int
}

// Judgement is the verdict for one proposal.
type Judgement struct {
	Proposal
	Verdict Verdict
	Status  Status // question status after the verdict was applied
}

// Listener observes a run. It drives presentation and history and must not
// block for long; the engine calls it from its own goroutine between
// rounds.
type Listener interface {
	Proposed(ctx context.Context, round int, proposals []Proposal)
	Judged(ctx context.Context, round int, judgements []Judgement)
	Finished(ctx context.Context, report *Report)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) Proposed(context.Context, int, []Proposal) {}
func (NopListener) Judged(context.Context, int, []Judgement)  {}
func (NopListener) Finished(context.Context, *Report)         {}

// Listeners fans events out in order.
type Listeners []Listener

func (ls Listeners) Proposed(ctx context.Context, round int, p []Proposal) {
	for _, l := range ls {
		l.Proposed(ctx, round, p)
	}
}

func (ls Listeners) Judged(ctx context.Context, round int, j []Judgement) {
	for _, l := range ls {
		l.Judged(ctx, round, j)
	}
}

func (ls Listeners) Finished(ctx context.Context, r *Report) {
	for _, l := range ls {
		l.Finished(ctx, r)
	}
}
