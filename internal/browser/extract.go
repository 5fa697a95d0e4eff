package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"quizsolver/internal/page"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// extractJS reads quiz metadata and questions. Choice indexes count every
// choice element; a choice without its input is skipped but still consumes
// an index.
const extractJS = `
(sel) => {
	const inputID = (qid, idx) => sel.inputIdFormat.replace('%s', qid).replace('%d', String(idx));
	const header = document.querySelector(sel.header);
	const session = document.querySelector(sel.session);
	const out = {
		url: location.href,
		quizId: header ? (header.getAttribute(sel.quizIdAttr) || '') : '',
		sessionId: session ? (session.value || session.getAttribute('value') || session.getAttribute('data-value') || '') : '',
		questions: [],
	};
	document.querySelectorAll(sel.question).forEach((q) => {
		const id = q.getAttribute(sel.questionIdAttr) || '';
		const question = { id: id, choices: [] };
		if (id) {
			q.querySelectorAll(sel.choice).forEach((el, idx) => {
				const input = document.getElementById(inputID(id, idx));
				if (!input) return;
				const label = (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
				question.choices.push({ token: input.value || '', label: label, slot: idx });
			});
		}
		out.questions.push(question);
	});
	return out;
}
`

// Snapshot reads the session tab into a page snapshot.
func (m *SessionManager) Snapshot(ctx context.Context, sessionID string, sel page.Selectors) (*page.Snapshot, error) {
	p, ok := m.Page(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return Extract(ctx, p, sel, m.log)
}

// Extract evaluates the extraction script in p.
func Extract(ctx context.Context, p *rod.Page, sel page.Selectors, log *zap.Logger) (*page.Snapshot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sel = sel.WithDefaults()

	res, err := p.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           extractJS,
		JSArgs:       []interface{}{sel},
		ByValue:      true,
		AwaitPromise: true,
	})
	var snap page.Snapshot
	if err := decodeEval("extract quiz", res, err, &snap); err != nil {
		return nil, err
	}

	log.Debug("extracted quiz",
		zap.String("url", snap.URL),
		zap.String("quiz", snap.QuizID),
		zap.Int("questions", len(snap.Questions)),
		zap.Int("choices", snap.ChoiceCount()),
	)
	return &snap, nil
}

// decodeEval unpacks an Evaluate result returned by value into v.
func decodeEval(op string, res *proto.RuntimeRemoteObject, evalErr error, v any) error {
	if evalErr != nil {
		return fmt.Errorf("%s: %w", op, evalErr)
	}
	if res == nil {
		return fmt.Errorf("%s: script returned no result", op)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%s: marshal result: %w", op, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: decode result: %w", op, err)
	}
	return nil
}
