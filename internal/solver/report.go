package solver

import (
	"fmt"
	"time"

	"quizsolver/internal/scorer"
)

// StopReason says why the trial loop ended.
type StopReason string

const (
	StopConverged     StopReason = "converged"      // no question left pending
	StopScoreComplete StopReason = "score_complete" // a round scored full marks
	StopNoProgress    StopReason = "no_progress"    // nothing left to submit
	StopBudget        StopReason = "budget"         // attempt limit reached
)

// QuestionOutcome is the final state of one question.
type QuestionOutcome struct {
	QuestionID string
	Status     Status
	Final      int // choice index sent in the final submission
	Slot       int
	Token      string
	Label      string
	Choices    int
	Trials     []Trial
}

// Report is the result of a run.
type Report struct {
	RunID        string
	QuizID       string
	SessionID    string
	Rounds       int
	AttemptLimit int
	Stop         StopReason
	Score        float64
	ScoreTotal   float64
	Passed       bool
	Questions    []QuestionOutcome
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Summary is the one-line operator message.
func (r *Report) Summary() string {
	if r.Passed {
		return "Done! All answers correct."
	}
	return fmt.Sprintf("Finished but score %s/%s", scorer.FormatScore(r.Score), scorer.FormatScore(r.ScoreTotal))
}

// Counts returns how many questions ended in each status.
func (r *Report) Counts() map[Status]int {
	out := make(map[Status]int, 3)
	for _, q := range r.Questions {
		out[q.Status]++
	}
	return out
}
