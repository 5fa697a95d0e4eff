// Package scorer talks to the quiz scoring endpoint: it encodes answer
// submissions and decodes the loosely typed responses.
package scorer

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// DefaultEndpoint is the submit path of the CVocp quiz, relative to the
// quiz page URL.
const DefaultEndpoint = "?q=cvocp/ajax/submitquizanswer"

// Answer pairs a question id with the token of the chosen choice.
type Answer struct {
	QuestionID string
	Token      string
}

// Request is one submission round.
type Request struct {
	QuizID    string
	SessionID string
	Answers   []Answer
}

// Form encodes the request as the scorer's form body.
func (r Request) Form() url.Values {
	v := url.Values{}
	v.Set("nid", r.QuizID)
	v.Set("sid", r.SessionID)
	for _, a := range r.Answers {
		v.Set("answer_"+a.QuestionID, a.Token)
	}
	return v
}

// Response is the decoded scorer reply. A missing score is 0; a missing or
// non-numeric total is NaN and so never equals the score.
type Response struct {
	Result     Payload
	Score      float64
	ScoreTotal float64
	Raw        []byte
}

// Complete reports whether the round scored full marks on a non-zero total.
func (r *Response) Complete() bool {
	return r != nil && r.ScoreTotal != 0 && r.Score == r.ScoreTotal
}

// Passed reports whether score equals total.
func (r *Response) Passed() bool {
	return r != nil && r.Score == r.ScoreTotal
}

// Submitter delivers one round to the scorer. Implementations keep a single
// request in flight and do not retry.
type Submitter interface {
	Submit(ctx context.Context, req Request) (*Response, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, req Request) (*Response, error)

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// DecodeResponse decodes a scorer reply body. Any JSON value is accepted;
// a body that is not JSON is an error.
func DecodeResponse(body []byte) (*Response, error) {
	p, err := ParsePayload(body)
	if err != nil {
		return nil, fmt.Errorf("decode scorer response: %w", err)
	}
	resp := &Response{Result: Absent{}, Score: 0, ScoreTotal: math.NaN(), Raw: body}
	m, ok := p.(Mapping)
	if !ok {
		return resp, nil
	}
	if v, ok := m.Lookup("result"); ok {
		resp.Result = v
	}
	if v, ok := m.Lookup("score"); ok {
		resp.Score = toNumber(v, 0)
	}
	if v, ok := m.Lookup("scoretotal"); ok {
		resp.ScoreTotal = toNumber(v, math.NaN())
	}
	return resp, nil
}

// toNumber converts a payload the way the quiz page's Number() does for the
// shapes scorers send. Absent yields def.
func toNumber(p Payload, def float64) float64 {
	switch v := p.(type) {
	case Absent:
		return def
	case Scalar:
		switch v.Kind {
		case ScalarBool:
			if v.Text == "true" {
				return 1
			}
			return 0
		default:
			s := strings.TrimSpace(v.Text)
			if s == "" {
				return 0
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return math.NaN()
			}
			return f
		}
	}
	return math.NaN()
}

// FormatScore renders a score for humans; NaN prints as "?".
func FormatScore(v float64) string {
	if math.IsNaN(v) {
		return "?"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ResolveEndpoint resolves the submit endpoint against the quiz page URL.
func ResolveEndpoint(pageURL, endpoint string) (string, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", pageURL, err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("endpoint %q is relative and page url %q is not absolute", endpoint, pageURL)
	}
	return base.ResolveReference(ref).String(), nil
}
