// Package solver discovers the correct choice of every question in a quiz
// by trial: it submits candidate choices to the scorer, reads the verdicts
// back and advances through each question's choices until it is solved or
// out of choices, then settles with one final submission.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizsolver/internal/logging"
	"quizsolver/internal/page"
	"quizsolver/internal/scorer"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrMissingMetadata means the page had no quiz id or session id.
	ErrMissingMetadata = errors.New("missing quiz metadata (quiz id or session id)")
	// ErrNoQuestions means no question with at least one choice was found.
	ErrNoQuestions = errors.New("no valid questions detected")
	// ErrRunInProgress rejects a second concurrent Execute on one Run.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrRunFinished rejects re-executing a Run whose catalog is spent.
	ErrRunFinished = errors.New("run already finished")
)

// defaultSlowRound is how long a scorer round may take before it is logged
// as slow.
const defaultSlowRound = 5 * time.Second

// Mode selects how many questions a round carries.
type Mode int

const (
	// Batch proposes one choice for every pending question per round.
	Batch Mode = iota
	// Sequential proposes for the first pending question only, trying it
	// exhaustively before moving on.
	Sequential
)

// ParseMode accepts "batch" or "sequential"; empty means batch.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "batch":
		return Batch, nil
	case "sequential":
		return Sequential, nil
	}
	return Batch, fmt.Errorf("unknown engine mode %q (valid: batch, sequential)", s)
}

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "batch"
}

// Options tune a Run.
type Options struct {
	Mode Mode
	// Delay is a pause between rounds. It paces the scorer and is not
	// needed for correctness.
	Delay time.Duration
	// SlowRound is the scorer round duration above which a warning is
	// logged. Zero means five seconds.
	SlowRound time.Duration
	Listener  Listener
	Logger    *zap.Logger
}

// Run owns one solving attempt: its catalog, its submitter and its
// metadata. Execute may succeed only once.
type Run struct {
	ID        string
	quizID    string
	sessionID string
	catalog   *Catalog
	submitter scorer.Submitter
	opts      Options
	log       *zap.Logger

	sem      *semaphore.Weighted
	executed bool // guarded by sem
}

// NewRun validates the snapshot and builds the catalog. No request is made
// before every precondition holds.
func NewRun(snap *page.Snapshot, sub scorer.Submitter, opts Options) (*Run, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.SlowRound <= 0 {
		opts.SlowRound = defaultSlowRound
	}
	if snap == nil || len(snap.Questions) == 0 {
		return nil, fmt.Errorf("%w: no quiz items on the page", ErrNoQuestions)
	}
	if snap.QuizID == "" || snap.SessionID == "" {
		return nil, ErrMissingMetadata
	}
	if sub == nil {
		return nil, errors.New("nil submitter")
	}

	id := uuid.NewString()
	log := opts.Logger.With(zap.String("run", id), zap.String("quiz", snap.QuizID))
	cat := BuildCatalog(snap.Questions, log)
	if cat.Len() == 0 {
		return nil, ErrNoQuestions
	}

	return &Run{
		ID:        id,
		quizID:    snap.QuizID,
		sessionID: snap.SessionID,
		catalog:   cat,
		submitter: sub,
		opts:      opts,
		log:       log,
		sem:       semaphore.NewWeighted(1),
	}, nil
}

// Catalog exposes the run's question states.
func (r *Run) Catalog() *Catalog { return r.catalog }

// Execute runs the trial loop and the final submission. A transport error
// aborts the run; there is no partial recovery since the scorer's view of
// the last round is unknown.
func (r *Run) Execute(ctx context.Context) (*Report, error) {
	if !r.sem.TryAcquire(1) {
		return nil, ErrRunInProgress
	}
	defer r.sem.Release(1)
	if r.executed {
		return nil, ErrRunFinished
	}
	r.executed = true

	report := &Report{
		RunID:        r.ID,
		QuizID:       r.quizID,
		SessionID:    r.sessionID,
		AttemptLimit: r.catalog.AttemptLimit(),
		StartedAt:    time.Now(),
	}
	r.log.Info("starting run",
		zap.Int("questions", r.catalog.Len()),
		zap.Int("choices", r.catalog.TotalChoices()),
		zap.Int("attempt_limit", report.AttemptLimit),
		zap.Stringer("mode", r.opts.Mode),
	)

	stop, rounds, err := r.loop(ctx)
	report.Rounds = rounds
	report.Stop = stop
	if err != nil {
		return nil, err
	}

	if err := r.finalize(ctx, report); err != nil {
		return nil, err
	}
	report.FinishedAt = time.Now()
	r.opts.Listener.Finished(ctx, report)
	r.log.Info("run finished",
		zap.String("stop", string(report.Stop)),
		zap.Int("rounds", report.Rounds),
		zap.Bool("passed", report.Passed),
		zap.String("score", scorer.FormatScore(report.Score)+"/"+scorer.FormatScore(report.ScoreTotal)),
	)
	return report, nil
}

// loop runs rounds until nothing is pending, the budget is spent, or a
// round scores full marks.
func (r *Run) loop(ctx context.Context) (StopReason, int, error) {
	limit := r.catalog.AttemptLimit()
	pending := r.catalog.Pending()
	rounds := 0

	for len(pending) > 0 && rounds < limit {
		if rounds > 0 && r.opts.Delay > 0 {
			if err := sleep(ctx, r.opts.Delay); err != nil {
				return StopNoProgress, rounds, err
			}
		}

		proposals := r.propose(pending)
		if len(proposals) == 0 {
			r.log.Warn("no further selectable choices")
			return StopNoProgress, rounds, nil
		}
		rounds++
		r.opts.Listener.Proposed(ctx, rounds, proposals)

		resp, err := r.submit(ctx, proposals)
		if err != nil {
			return StopNoProgress, rounds, fmt.Errorf("round %d: %w", rounds, err)
		}

		judgements := make([]Judgement, 0, len(proposals))
		for _, p := range proposals {
			q, _ := r.catalog.Question(p.QuestionID)
			v := Normalize(resp.Result, p.QuestionID)
			q.record(rounds, v)
			judgements = append(judgements, Judgement{Proposal: p, Verdict: v, Status: q.Status()})
			r.logVerdict(rounds, q, p, v)
		}
		r.opts.Listener.Judged(ctx, rounds, judgements)

		pending = r.catalog.Pending()
		r.log.Info("round complete",
			zap.Int("round", rounds),
			zap.Int("submitted", len(proposals)),
			zap.Int("pending", len(pending)),
			zap.String("score", scorer.FormatScore(resp.Score)+"/"+scorer.FormatScore(resp.ScoreTotal)),
		)
		if resp.Complete() {
			return StopScoreComplete, rounds, nil
		}
	}
	if len(pending) > 0 {
		r.log.Warn("attempt limit reached", zap.Int("limit", limit), zap.Int("pending", len(pending)))
		return StopBudget, rounds, nil
	}
	return StopConverged, rounds, nil
}

// propose picks the choice under each pending question's cursor. In
// Sequential mode only the first question with a choice left is proposed.
func (r *Run) propose(pending []string) []Proposal {
	var out []Proposal
	for _, id := range pending {
		q, _ := r.catalog.Question(id)
		ch, ok := q.current()
		if !ok {
			continue
		}
		out = append(out, Proposal{QuestionID: id, Choice: q.cursor, Slot: ch.Slot})
		if r.opts.Mode == Sequential {
			break
		}
	}
	return out
}

func (r *Run) submit(ctx context.Context, proposals []Proposal) (*scorer.Response, error) {
	req := scorer.Request{
		QuizID:    r.quizID,
		SessionID: r.sessionID,
		Answers:   make([]scorer.Answer, 0, len(proposals)),
	}
	for _, p := range proposals {
		q := r.catalog.states[p.QuestionID]
		req.Answers = append(req.Answers, scorer.Answer{QuestionID: p.QuestionID, Token: q.choices[p.Choice].Token})
	}
	timer := logging.StartTimer(r.log, "scorer round")
	resp, err := r.submitter.Submit(ctx, req)
	timer.StopWithThreshold(r.opts.SlowRound)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("scorer returned no response")
	}
	return resp, nil
}

func (r *Run) logVerdict(round int, q *QuestionState, p Proposal, v Verdict) {
	fields := []zap.Field{
		zap.Int("round", round),
		zap.String("question", p.QuestionID),
		zap.Int("choice", p.Choice),
		zap.String("verdict", v.String()),
	}
	if v == Unknown {
		// Unknown moves on like Incorrect but must stay visible in the log.
		r.log.Info("verdict unknown, treating as incorrect", fields...)
	} else {
		r.log.Debug("verdict", fields...)
	}
	if q.Status() == Exhausted {
		r.log.Warn("exhausted choices for question", zap.String("question", q.ID), zap.Int("choices", len(q.choices)))
	}
}

// finalize submits every question's clamped cursor once and fills the
// report from the reply.
func (r *Run) finalize(ctx context.Context, report *Report) error {
	proposals := make([]Proposal, 0, r.catalog.Len())
	for _, id := range r.catalog.order {
		q := r.catalog.states[id]
		idx := q.finalIndex()
		proposals = append(proposals, Proposal{QuestionID: id, Choice: idx, Slot: q.choices[idx].Slot})
	}

	resp, err := r.submit(ctx, proposals)
	if err != nil {
		return fmt.Errorf("final submission: %w", err)
	}

	report.Score = resp.Score
	report.ScoreTotal = resp.ScoreTotal
	report.Passed = resp.Passed()
	for _, p := range proposals {
		q, _ := r.catalog.Question(p.QuestionID)
		ch := q.choices[p.Choice]
		report.Questions = append(report.Questions, QuestionOutcome{
			QuestionID: q.ID,
			Status:     q.Status(),
			Final:      p.Choice,
			Slot:       ch.Slot,
			Token:      ch.Token,
			Label:      ch.Label,
			Choices:    len(q.choices),
			Trials:     q.Trials(),
		})
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
