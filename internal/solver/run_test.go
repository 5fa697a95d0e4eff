package solver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quizsolver/internal/page"
	"quizsolver/internal/scorer"
	"quizsolver/internal/scorer/scorertest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted replays canned scorer replies in order, repeating the last one.
type scripted struct {
	mu       sync.Mutex
	replies  []string
	requests []scorer.Request
}

func (s *scripted) Submit(_ context.Context, req scorer.Request) (*scorer.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return scorer.DecodeResponse([]byte(s.replies[i]))
}

// answers flattens the recorded requests to question -> token maps.
func (s *scripted) answers() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, 0, len(s.requests))
	for _, req := range s.requests {
		m := make(map[string]string, len(req.Answers))
		for _, a := range req.Answers {
			m[a.QuestionID] = a.Token
		}
		out = append(out, m)
	}
	return out
}

func snapshot(questions ...page.Question) *page.Snapshot {
	return &page.Snapshot{QuizID: "quiz", SessionID: "sess", Questions: questions}
}

func mustRun(t *testing.T, snap *page.Snapshot, sub scorer.Submitter, opts Options) *Run {
	t.Helper()
	run, err := NewRun(snap, sub, opts)
	require.NoError(t, err)
	return run
}

// recorder captures listener events and checks cursor monotonicity.
type recorder struct {
	proposals  [][]Proposal
	judgements [][]Judgement
	report     *Report
	last       map[string]int
	backwards  bool
}

func (r *recorder) Proposed(_ context.Context, _ int, p []Proposal) {
	if r.last == nil {
		r.last = make(map[string]int)
	}
	for _, pr := range p {
		if prev, ok := r.last[pr.QuestionID]; ok && pr.Choice < prev {
			r.backwards = true
		}
		r.last[pr.QuestionID] = pr.Choice
	}
	r.proposals = append(r.proposals, p)
}

func (r *recorder) Judged(_ context.Context, _ int, j []Judgement) {
	r.judgements = append(r.judgements, j)
}

func (r *recorder) Finished(_ context.Context, rep *Report) { r.report = rep }

func TestScenarioA_SolvedOnFirstTrial(t *testing.T) {
	sub := &scripted{replies: []string{
		`{"result":"1","score":1,"scoretotal":1}`,
		`{"result":"1","score":1,"scoretotal":1}`,
	}}
	run := mustRun(t, snapshot(question("q", "a", "b", "c")), sub, Options{})

	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.Passed)
	assert.Equal(t, "Done! All answers correct.", report.Summary())
	require.Len(t, report.Questions, 1)
	assert.Equal(t, Solved, report.Questions[0].Status)
	assert.Equal(t, 0, report.Questions[0].Final)
	assert.Equal(t, []map[string]string{{"q": "a"}, {"q": "a"}}, sub.answers())
}

func TestScenarioB_AdvancesThenSolves(t *testing.T) {
	sub := &scripted{replies: []string{
		`{"result":"0","score":0,"scoretotal":1}`,
		`{"result":"1","score":1,"scoretotal":1}`,
		`{"result":"1","score":1,"scoretotal":1}`,
	}}
	run := mustRun(t, snapshot(question("q", "a", "b")), sub, Options{})

	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	q, _ := run.Catalog().Question("q")
	assert.Equal(t, 1, q.Cursor())
	assert.True(t, q.Solved())
	assert.Equal(t, 2, report.Rounds)
	assert.True(t, report.Passed)
	assert.Equal(t, []Trial{
		{Round: 1, Choice: 0, Verdict: Incorrect},
		{Round: 2, Choice: 1, Verdict: Correct},
	}, report.Questions[0].Trials)
	assert.Equal(t, []map[string]string{{"q": "a"}, {"q": "b"}, {"q": "b"}}, sub.answers())
}

func TestScenarioC_ExhaustedSubmitsLastChoice(t *testing.T) {
	sub := &scripted{replies: []string{`{"result":null,"score":0,"scoretotal":1}`}}
	run := mustRun(t, snapshot(question("q", "a", "b")), sub, Options{})

	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopConverged, report.Stop)
	assert.Equal(t, 2, report.Rounds)
	require.Len(t, report.Questions, 1)
	out := report.Questions[0]
	assert.Equal(t, Exhausted, out.Status)
	assert.Equal(t, 1, out.Final)
	assert.Equal(t, "b", out.Token)
	assert.False(t, report.Passed)
	assert.Equal(t, "Finished but score 0/1", report.Summary())
	assert.Equal(t, []map[string]string{{"q": "a"}, {"q": "b"}, {"q": "b"}}, sub.answers())
}

func TestScenarioD_MixedVerdictsInOneRound(t *testing.T) {
	sub := &scripted{replies: []string{
		`{"result":{"A":"1","B":"pending"},"score":1,"scoretotal":2}`,
		`{"result":{"B":"1"},"score":2,"scoretotal":2}`,
		`{"result":{},"score":2,"scoretotal":2}`,
	}}
	rec := &recorder{}
	run := mustRun(t, snapshot(question("A", "a0", "a1"), question("B", "b0", "b1", "b2")), sub, Options{Listener: rec})

	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []map[string]string{
		{"A": "a0", "B": "b0"},
		{"B": "b1"},
		{"A": "a0", "B": "b1"},
	}, sub.answers())

	require.Len(t, rec.judgements, 2)
	want := []Judgement{
		{Proposal: Proposal{QuestionID: "A", Choice: 0, Slot: 0}, Verdict: Correct, Status: Solved},
		{Proposal: Proposal{QuestionID: "B", Choice: 0, Slot: 0}, Verdict: Unknown, Status: Trying},
	}
	if diff := cmp.Diff(want, rec.judgements[0]); diff != "" {
		t.Errorf("round 1 judgements (-want +got):\n%s", diff)
	}
	assert.True(t, report.Passed)
	assert.Same(t, report, rec.report)
	assert.False(t, rec.backwards)
}

func TestScenarioE_FullScoreShortCircuits(t *testing.T) {
	sub := &scripted{replies: []string{
		`{"result":null,"score":2,"scoretotal":2}`,
		`{"result":null,"score":2,"scoretotal":2}`,
	}}
	run := mustRun(t, snapshot(question("A", "a0", "a1"), question("B", "b0", "b1")), sub, Options{})

	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopScoreComplete, report.Stop)
	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.Passed)
	for _, q := range report.Questions {
		assert.Equal(t, Trying, q.Status, q.QuestionID)
		assert.Equal(t, 1, q.Final, "unknown verdicts advance before the short circuit")
	}
	for _, id := range []string{"A", "B"} {
		q, _ := run.Catalog().Question(id)
		assert.Equal(t, 1, q.Cursor(), id)
	}
	assert.Equal(t, []map[string]string{
		{"A": "a0", "B": "b0"},
		{"A": "a1", "B": "b1"},
	}, sub.answers())
}

func TestExecute_VerdictLogging(t *testing.T) {
	t.Run("unknown verdicts and exhaustion", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sub := &scripted{replies: []string{`{"result":null,"score":0,"scoretotal":1}`}}
		run := mustRun(t, snapshot(question("q", "a", "b")), sub, Options{Logger: zap.New(core)})

		_, err := run.Execute(context.Background())
		require.NoError(t, err)

		unknown := logs.FilterMessage("verdict unknown, treating as incorrect")
		assert.Equal(t, 2, unknown.Len(), "one line per unknown trial")
		for _, e := range unknown.All() {
			assert.Equal(t, zapcore.InfoLevel, e.Level)
			assert.Equal(t, "unknown", e.ContextMap()["verdict"])
		}

		exhausted := logs.FilterMessage("exhausted choices for question")
		require.Equal(t, 1, exhausted.Len())
		assert.Equal(t, zapcore.WarnLevel, exhausted.All()[0].Level)
		assert.Equal(t, "q", exhausted.All()[0].ContextMap()["question"])
	})

	t.Run("incorrect verdicts stay below info", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		sub := &scripted{replies: []string{
			`{"result":"0","score":0,"scoretotal":1}`,
			`{"result":"1","score":1,"scoretotal":1}`,
		}}
		run := mustRun(t, snapshot(question("q", "a", "b")), sub, Options{Logger: zap.New(core)})

		_, err := run.Execute(context.Background())
		require.NoError(t, err)

		assert.Zero(t, logs.FilterMessage("verdict unknown, treating as incorrect").Len())
		assert.Zero(t, logs.FilterMessage("exhausted choices for question").Len())
		assert.Zero(t, logs.FilterMessage("verdict").Len(), "plain verdicts log at debug")
	})

	t.Run("slow scorer rounds warn", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		sub := scorer.SubmitterFunc(func(context.Context, scorer.Request) (*scorer.Response, error) {
			time.Sleep(2 * time.Millisecond)
			return scorer.DecodeResponse([]byte(`{"result":"1","score":1,"scoretotal":1}`))
		})
		run := mustRun(t, snapshot(question("q", "a")), sub, Options{Logger: zap.New(core), SlowRound: time.Millisecond})

		_, err := run.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, logs.FilterMessage("scorer round slow").Len(), "trial round and final submission")
	})
}

func TestRoundsNeverExceedAttemptLimit(t *testing.T) {
	sub := &scripted{replies: []string{`"garbage"`}}
	rec := &recorder{}
	run := mustRun(t, snapshot(
		question("A", "1", "2", "3"),
		question("B", "1"),
		question("C", "1", "2"),
	), sub, Options{Listener: rec})

	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, report.Rounds, report.AttemptLimit)
	assert.Equal(t, 9, report.AttemptLimit)
	assert.Equal(t, 3, report.Rounds)
	assert.False(t, rec.backwards)
	for _, q := range report.Questions {
		assert.Equal(t, Exhausted, q.Status)
		assert.Equal(t, q.Choices-1, q.Final)
	}
}

func TestSequentialMode(t *testing.T) {
	srv := scorertest.New("quiz", "sess", []scorertest.Question{
		{ID: "A", Tokens: []string{"a0", "a1", "a2"}, Correct: "a2"},
		{ID: "B", Tokens: []string{"b0", "b1"}, Correct: "b0"},
	})
	defer srv.Close()

	endpoint, err := scorer.ResolveEndpoint(srv.PageURL(), "")
	require.NoError(t, err)
	sub, err := scorer.NewHTTPSubmitter(endpoint, scorer.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	snap, err := page.ParseHTML(strings.NewReader(srv.Page()), page.DefaultSelectors())
	require.NoError(t, err)

	run := mustRun(t, snap, sub, Options{Mode: Sequential, Delay: time.Millisecond})
	report, err := run.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Equal(t, 4, report.Rounds)
	rounds := srv.Rounds()
	require.Len(t, rounds, 5)
	for _, r := range rounds[:4] {
		assert.Len(t, r.Answers, 1, "sequential rounds carry one question")
	}
	assert.Equal(t, map[string]string{"A": "a2", "B": "b0"}, rounds[4].Answers)
}

func fakeQuizRun(t *testing.T, opts ...scorertest.Option) (*scorertest.Server, *Report) {
	t.Helper()
	srv := scorertest.New("quiz", "sess", []scorertest.Question{
		{ID: "A", Tokens: []string{"a0", "a1", "a2"}, Correct: "a1"},
		{ID: "B", Tokens: []string{"b0", "b1"}, Correct: "b1"},
	}, opts...)
	t.Cleanup(srv.Close)

	endpoint, err := scorer.ResolveEndpoint(srv.PageURL(), "")
	require.NoError(t, err)
	sub, err := scorer.NewHTTPSubmitter(endpoint, scorer.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	snap, err := page.ParseHTML(strings.NewReader(srv.Page()), page.DefaultSelectors())
	require.NoError(t, err)

	report, err := mustRun(t, snap, sub, Options{}).Execute(context.Background())
	require.NoError(t, err)
	return srv, report
}

func TestBatchModeAgainstFakeQuiz(t *testing.T) {
	t.Run("per question verdicts", func(t *testing.T) {
		_, report := fakeQuizRun(t, scorertest.WithStringScores())
		assert.True(t, report.Passed, report.Summary())
		assert.Equal(t, 2, report.Rounds)
		assert.Equal(t, StopScoreComplete, report.Stop, "the solving round also scores full marks")
	})

	t.Run("null verdicts advance past the full-score round", func(t *testing.T) {
		srv, report := fakeQuizRun(t, scorertest.WithResultStyle(scorertest.Null), scorertest.WithStringScores())
		assert.Equal(t, StopScoreComplete, report.Stop)
		assert.Equal(t, 2, report.Rounds)

		rounds := srv.Rounds()
		require.Len(t, rounds, 3)
		assert.Equal(t, map[string]string{"A": "a1", "B": "b1"}, rounds[1].Answers)
		assert.Equal(t, map[string]string{"A": "a2", "B": "b1"}, rounds[2].Answers, "cursors advanced, B clamped")
		assert.False(t, report.Passed)
		assert.Equal(t, "Finished but score 1/2", report.Summary())
	})
}

func TestNewRun_Preconditions(t *testing.T) {
	sub := &scripted{replies: []string{`{}`}}

	_, err := NewRun(snapshot(), sub, Options{})
	assert.ErrorIs(t, err, ErrNoQuestions)

	snap := snapshot(question("q", "a"))
	snap.SessionID = ""
	_, err = NewRun(snap, sub, Options{})
	assert.ErrorIs(t, err, ErrMissingMetadata)

	snap = snapshot(question("q", "a"))
	snap.QuizID = ""
	_, err = NewRun(snap, sub, Options{})
	assert.ErrorIs(t, err, ErrMissingMetadata)

	_, err = NewRun(snapshot(question("q"), question("")), sub, Options{})
	assert.ErrorIs(t, err, ErrNoQuestions)

	assert.Empty(t, sub.requests, "preconditions fail before any submission")
}

func TestExecute_TransportFailureAborts(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	sub := scorer.SubmitterFunc(func(context.Context, scorer.Request) (*scorer.Response, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return scorer.DecodeResponse([]byte(`{"result":"0","score":0,"scoretotal":1}`))
	})
	run := mustRun(t, snapshot(question("q", "a", "b", "c")), sub, Options{})

	_, err := run.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "round 2")
	assert.Equal(t, 2, calls, "no final submission after a transport failure")
}

func TestExecute_FinalSubmissionFailure(t *testing.T) {
	calls := 0
	sub := scorer.SubmitterFunc(func(context.Context, scorer.Request) (*scorer.Response, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("timeout")
		}
		return scorer.DecodeResponse([]byte(`{"result":"1","score":0,"scoretotal":1}`))
	})
	_, err := mustRun(t, snapshot(question("q", "a")), sub, Options{}).Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "final submission")
}

func TestExecute_OnlyOnce(t *testing.T) {
	sub := &scripted{replies: []string{`{"result":"1","score":1,"scoretotal":1}`}}
	run := mustRun(t, snapshot(question("q", "a")), sub, Options{})

	_, err := run.Execute(context.Background())
	require.NoError(t, err)
	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestExecute_RejectsConcurrentRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sub := scorer.SubmitterFunc(func(context.Context, scorer.Request) (*scorer.Response, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return scorer.DecodeResponse([]byte(`{"result":"1","score":1,"scoretotal":1}`))
	})
	run := mustRun(t, snapshot(question("q", "a")), sub, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := run.Execute(context.Background())
		done <- err
	}()

	<-entered
	_, err := run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestExecute_DelayHonoursCancellation(t *testing.T) {
	sub := &scripted{replies: []string{`{"result":"0","score":0,"scoretotal":1}`}}
	run := mustRun(t, snapshot(question("q", "a", "b")), sub, Options{Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := run.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sub.requests, 1)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Batch, m)

	m, err = ParseMode("sequential")
	require.NoError(t, err)
	assert.Equal(t, Sequential, m)
	assert.Equal(t, "sequential", m.String())

	_, err = ParseMode("parallel")
	assert.Error(t, err)
}

func TestReportCounts(t *testing.T) {
	r := &Report{Questions: []QuestionOutcome{{Status: Solved}, {Status: Solved}, {Status: Exhausted}}}
	assert.Equal(t, map[Status]int{Solved: 2, Exhausted: 1}, r.Counts())
}
