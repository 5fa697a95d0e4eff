package browser

import (
	"context"
	"fmt"
	"time"

	"quizsolver/internal/scorer"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

const submitJS = `
async (endpoint, body) => {
	const res = await fetch(endpoint, {
		method: 'POST',
		credentials: 'same-origin',
		headers: {
			'Content-Type': 'application/x-www-form-urlencoded; charset=UTF-8',
			'Accept': 'application/json',
			'X-Requested-With': 'XMLHttpRequest',
		},
		body: body,
	});
	return { status: res.status, statusText: res.statusText, body: await res.text() };
}
`

// PageSubmitter posts rounds with fetch from inside the quiz tab, so the
// page's own cookies and origin apply.
type PageSubmitter struct {
	page     *rod.Page
	endpoint string
	log      *zap.Logger
}

// NewPageSubmitter creates a submitter bound to p. endpoint may be relative
// to the page URL.
func NewPageSubmitter(p *rod.Page, endpoint string, log *zap.Logger) *PageSubmitter {
	if endpoint == "" {
		endpoint = scorer.DefaultEndpoint
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PageSubmitter{page: p, endpoint: endpoint, log: log}
}

// Submitter returns an in-page submitter for the session tab.
func (m *SessionManager) Submitter(sessionID, endpoint string) (*PageSubmitter, error) {
	p, ok := m.Page(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return NewPageSubmitter(p, endpoint, m.log), nil
}

type fetchResult struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Body       string `json:"body"`
}

// Submit posts one round and decodes the reply.
func (s *PageSubmitter) Submit(ctx context.Context, req scorer.Request) (*scorer.Response, error) {
	start := time.Now()
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           submitJS,
		JSArgs:       []interface{}{s.endpoint, req.Form().Encode()},
		ByValue:      true,
		AwaitPromise: true,
	})
	var out fetchResult
	if err := decodeEval("post answers in page", res, err, &out); err != nil {
		return nil, err
	}

	s.log.Debug("scorer round",
		zap.String("transport", "page"),
		zap.Int("status", out.Status),
		zap.Int("answers", len(req.Answers)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if out.Status < 200 || out.Status > 299 {
		return nil, fmt.Errorf("scorer returned %d %s", out.Status, out.StatusText)
	}
	return scorer.DecodeResponse([]byte(out.Body))
}
