package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"quizsolver/internal/solver"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := OpenHistory(filepath.Join(t.TempDir(), "db", "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleReport(id string, started time.Time) *solver.Report {
	return &solver.Report{
		RunID:        id,
		QuizID:       "quiz-1",
		SessionID:    "sess-1",
		Rounds:       3,
		AttemptLimit: 7,
		Stop:         solver.StopConverged,
		Score:        1,
		ScoreTotal:   2,
		Passed:       false,
		StartedAt:    started,
		FinishedAt:   started.Add(2 * time.Second),
		Questions: []solver.QuestionOutcome{
			{
				QuestionID: "q2", Status: solver.Solved, Final: 1, Slot: 1, Token: "b", Label: "Option 2", Choices: 3,
				Trials: []solver.Trial{
					{Round: 1, Choice: 0, Verdict: solver.Incorrect},
					{Round: 2, Choice: 1, Verdict: solver.Correct},
				},
			},
			{
				QuestionID: "q1", Status: solver.Exhausted, Final: 1, Slot: 1, Token: "y", Label: "Option 2", Choices: 2,
				Trials: []solver.Trial{
					{Round: 1, Choice: 0, Verdict: solver.Incorrect},
					{Round: 2, Choice: 1, Verdict: solver.Unknown},
				},
			},
		},
	}
}

func TestHistory_RecordAndRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRun(ctx, sampleReport("run-aaa", started)))

	run, err := s.GetRun(ctx, "run-aaa")
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", run.QuizID)
	assert.Equal(t, 3, run.Rounds)
	assert.Equal(t, 7, run.AttemptLimit)
	assert.Equal(t, "converged", run.Stop)
	assert.Equal(t, 1.0, run.Score)
	assert.Equal(t, 2.0, run.ScoreTotal)
	assert.False(t, run.Passed)
	assert.True(t, started.Equal(run.StartedAt))

	outcomes, err := s.Outcomes(ctx, "run-aaa")
	require.NoError(t, err)
	wantOutcomes := []OutcomeRecord{
		{QuestionID: "q2", Status: "solved", Final: 1, Choices: 3, Token: "b", Label: "Option 2"},
		{QuestionID: "q1", Status: "exhausted", Final: 1, Choices: 2, Token: "y", Label: "Option 2"},
	}
	if diff := cmp.Diff(wantOutcomes, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	trials, err := s.Trials(ctx, "run-aaa")
	require.NoError(t, err)
	wantTrials := []TrialRecord{
		{QuestionID: "q2", Round: 1, Choice: 0, Verdict: "incorrect"},
		{QuestionID: "q1", Round: 1, Choice: 0, Verdict: "incorrect"},
		{QuestionID: "q2", Round: 2, Choice: 1, Verdict: "correct"},
		{QuestionID: "q1", Round: 2, Choice: 1, Verdict: "unknown"},
	}
	if diff := cmp.Diff(wantTrials, trials); diff != "" {
		t.Errorf("trials mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_NaNScoresRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sampleReport("run-nan", time.Now())
	r.ScoreTotal = math.NaN()
	require.NoError(t, s.RecordRun(ctx, r))

	run, err := s.GetRun(ctx, "run-nan")
	require.NoError(t, err)
	assert.Equal(t, 1.0, run.Score)
	assert.True(t, math.IsNaN(run.ScoreTotal))
}

func TestHistory_ListAndPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRun(ctx, sampleReport("abc-1", base)))
	require.NoError(t, s.RecordRun(ctx, sampleReport("abc-2", base.Add(time.Hour))))
	require.NoError(t, s.RecordRun(ctx, sampleReport("xyz-1", base.Add(2*time.Hour))))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"xyz-1", "abc-2", "abc-1"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "xyz-1", limited[0].ID)

	run, err := s.GetRun(ctx, "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz-1", run.ID)

	_, err = s.GetRun(ctx, "abc")
	assert.ErrorIs(t, err, ErrAmbiguousRun)

	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHistory_DuplicateRunRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRun(ctx, sampleReport("dup", time.Now())))
	assert.Error(t, s.RecordRun(ctx, sampleReport("dup", time.Now())))

	trials, err := s.Trials(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, trials, 4, "failed insert must not leave partial rows")

	assert.Error(t, s.RecordRun(ctx, nil))
}
