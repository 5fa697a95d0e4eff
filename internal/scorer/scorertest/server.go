// Package scorertest runs an in-process quiz page and scoring endpoint for
// tests. It remembers the last answer per question, so solved questions
// that are not resubmitted keep counting toward the score.
package scorertest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// QuizPath is where the quiz page and its submit endpoint live.
const QuizPath = "/quiz"

// Question is one quiz question: its choice tokens and the correct one.
type Question struct {
	ID      string
	Tokens  []string
	Correct string
}

// ResultStyle selects the shape of the "result" field.
type ResultStyle int

const (
	// PerQuestion sends {"<qid>": "1"|"0"} for every answer in the round.
	PerQuestion ResultStyle = iota
	// Scalar sends "1" when every answer in the round is right, else "0".
	Scalar
	// Null sends null.
	Null
	// Sequence sends ["1"|"0"] for the round's first answer.
	Sequence
)

// Round is one recorded submission.
type Round struct {
	Form    url.Values
	Answers map[string]string
}

// Responder builds the JSON body for a round. score counts remembered
// correct answers; total is the number of questions.
type Responder func(round int, answers map[string]string, score, total int) any

// Server is a fake CVocp quiz.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	quizID       string
	sessionID    string
	questions    []Question
	style        ResultStyle
	stringScores bool
	responder    Responder
	remembered   map[string]string
	rounds       []Round
}

// Option configures a Server.
type Option func(*Server)

// WithResultStyle sets the result shape.
func WithResultStyle(style ResultStyle) Option {
	return func(s *Server) { s.style = style }
}

// WithStringScores sends score and scoretotal as strings.
func WithStringScores() Option {
	return func(s *Server) { s.stringScores = true }
}

// WithResponder overrides the response body entirely.
func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

// New starts a server. Call Close when done.
func New(quizID, sessionID string, questions []Question, opts ...Option) *Server {
	s := &Server{
		quizID:     quizID,
		sessionID:  sessionID,
		questions:  questions,
		remembered: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(QuizPath, s.handlePage)
	r.Post(QuizPath, s.handleSubmit)
	s.Server = httptest.NewServer(r)
	return s
}

// PageURL is the quiz page address.
func (s *Server) PageURL() string { return s.URL + QuizPath }

// Rounds returns a copy of the recorded submissions.
func (s *Server) Rounds() []Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Round, len(s.rounds))
	copy(out, s.rounds)
	return out
}

// Page renders the quiz markup.
func (s *Server) Page() string {
	var sb strings.Builder
	sb.WriteString("<!doctype html><html><body>\n")
	fmt.Fprintf(&sb, "<div id=\"cvocp-quiz-header\" data-nid=\"%s\"></div>\n", html.EscapeString(s.quizID))
	fmt.Fprintf(&sb, "<input type=\"hidden\" id=\"cvocp-quiz-session\" value=\"%s\">\n", html.EscapeString(s.sessionID))
	for _, q := range s.questions {
		id := html.EscapeString(q.ID)
		fmt.Fprintf(&sb, "<div class=\"cvocp-quiz-item\" data-qstn-nid=\"%s\">\n", id)
		for i, tok := range q.Tokens {
			fmt.Fprintf(&sb,
				"<div data-part=\"choice-item\"><input type=\"radio\" name=\"q%s\" id=\"choice-qstn-%s-%d\" value=\"%s\"> Option %d</div>\n",
				id, id, i, html.EscapeString(tok), i+1)
		}
		sb.WriteString("</div>\n")
	}
	sb.WriteString("<img data-type=\"check\" data-visible=\"0\"><img data-type=\"cross\" data-visible=\"1\">\n")
	sb.WriteString("</body></html>\n")
	return sb.String()
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(s.Page()))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("q") != "cvocp/ajax/submitquizanswer" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("nid") != s.quizID || r.PostForm.Get("sid") != s.sessionID {
		http.Error(w, "bad quiz session", http.StatusForbidden)
		return
	}

	answers := make(map[string]string)
	for key, vals := range r.PostForm {
		if qid, ok := strings.CutPrefix(key, "answer_"); ok && len(vals) > 0 {
			answers[qid] = vals[0]
		}
	}

	s.mu.Lock()
	s.rounds = append(s.rounds, Round{Form: r.PostForm, Answers: answers})
	round := len(s.rounds)
	for qid, tok := range answers {
		s.remembered[qid] = tok
	}
	score := 0
	for _, q := range s.questions {
		if s.remembered[q.ID] == q.Correct {
			score++
		}
	}
	total := len(s.questions)
	var body any
	if s.responder != nil {
		body = s.responder(round, answers, score, total)
	} else {
		body = map[string]any{
			"result":     s.result(answers),
			"score":      s.number(score),
			"scoretotal": s.number(total),
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// result must be called with mu held.
func (s *Server) result(answers map[string]string) any {
	switch s.style {
	case Null:
		return nil
	case Scalar:
		for qid, tok := range answers {
			if s.correct(qid) != tok {
				return "0"
			}
		}
		return "1"
	case Sequence:
		for _, q := range s.questions {
			if tok, ok := answers[q.ID]; ok {
				return []string{bit(tok == q.Correct)}
			}
		}
		return []string{}
	default:
		out := make(map[string]string, len(answers))
		for qid, tok := range answers {
			out[qid] = bit(s.correct(qid) == tok)
		}
		return out
	}
}

func (s *Server) correct(qid string) string {
	for _, q := range s.questions {
		if q.ID == qid {
			return q.Correct
		}
	}
	return ""
}

func (s *Server) number(n int) any {
	if s.stringScores {
		return fmt.Sprint(n)
	}
	return n
}

func bit(ok bool) string {
	if ok {
		return "1"
	}
	return "0"
}
