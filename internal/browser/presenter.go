package browser

import (
	"context"

	"quizsolver/internal/page"
	"quizsolver/internal/solver"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// Highlight colours painted on choice containers.
const (
	SolvedColor   = "#d1f7c4"
	UnsolvedColor = "#fce4e4"
)

// markJS selects and paints choices. It returns the question ids whose
// choice could not be found.
const markJS = `
(sel, marks) => {
	const missing = [];
	const inputID = (qid, idx) => sel.inputIdFormat.replace('%s', qid).replace('%d', String(idx));
	marks.forEach((m) => {
		const input = document.getElementById(inputID(m.question, m.slot));
		if (!input) { missing.push(m.question); return; }
		if (m.select && !input.checked) {
			input.click();
		}
		if (m.color) {
			const q = document.querySelector(sel.question + '[' + sel.questionIdAttr + '="' + CSS.escape(m.question) + '"]');
			const box = (q && q.querySelectorAll(sel.choice)[m.slot]) || input.closest(sel.choice) || input.parentElement;
			if (box) box.style.backgroundColor = m.color;
		}
	});
	return missing;
}
`

const iconsJS = `
(sel) => {
	document.querySelectorAll(sel.crossIcon).forEach((el) => el.setAttribute('data-visible', '0'));
	document.querySelectorAll(sel.checkIcon).forEach((el) => el.setAttribute('data-visible', '1'));
}
`

type mark struct {
	Question string `json:"question"`
	Slot     int    `json:"slot"`
	Select   bool   `json:"select"`
	Color    string `json:"color,omitempty"`
}

// Presenter mirrors a run onto the quiz tab: proposed choices are
// selected, confirmed ones painted green, unresolved finals painted red and
// the result icons flipped on a full pass. Page errors are logged and
// otherwise ignored.
type Presenter struct {
	page *rod.Page
	sel  page.Selectors
	log  *zap.Logger
}

var _ solver.Listener = (*Presenter)(nil)

// NewPresenter creates a presenter for p.
func NewPresenter(p *rod.Page, sel page.Selectors, log *zap.Logger) *Presenter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Presenter{page: p, sel: sel.WithDefaults(), log: log}
}

// Presenter returns a presenter for the session tab.
func (m *SessionManager) Presenter(sessionID string, sel page.Selectors) (*Presenter, bool) {
	p, ok := m.Page(sessionID)
	if !ok {
		return nil, false
	}
	return NewPresenter(p, sel, m.log), true
}

func (p *Presenter) Proposed(ctx context.Context, round int, proposals []solver.Proposal) {
	marks := make([]mark, 0, len(proposals))
	for _, pr := range proposals {
		marks = append(marks, mark{Question: pr.QuestionID, Slot: pr.Slot, Select: true})
	}
	p.apply(ctx, "select", round, marks)
}

func (p *Presenter) Judged(ctx context.Context, round int, judgements []solver.Judgement) {
	var marks []mark
	for _, j := range judgements {
		if j.Status == solver.Solved {
			marks = append(marks, mark{Question: j.QuestionID, Slot: j.Slot, Color: SolvedColor})
		}
	}
	if len(marks) > 0 {
		p.apply(ctx, "paint", round, marks)
	}
}

func (p *Presenter) Finished(ctx context.Context, report *solver.Report) {
	marks := make([]mark, 0, len(report.Questions))
	for _, q := range report.Questions {
		m := mark{Question: q.QuestionID, Slot: q.Slot, Select: true, Color: UnsolvedColor}
		if q.Status == solver.Solved {
			m.Color = SolvedColor
		}
		marks = append(marks, m)
	}
	p.apply(ctx, "final", report.Rounds, marks)

	if !report.Passed {
		return
	}
	if _, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:     iconsJS,
		JSArgs: []interface{}{p.sel},
	}); err != nil {
		p.log.Warn("failed to toggle result icons", zap.Error(err))
	}
}

func (p *Presenter) apply(ctx context.Context, step string, round int, marks []mark) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      markJS,
		JSArgs:  []interface{}{p.sel, marks},
		ByValue: true,
	})
	if err != nil {
		p.log.Warn("failed to update page", zap.String("step", step), zap.Int("round", round), zap.Error(err))
		return
	}
	var missing []string
	if res != nil {
		for _, v := range res.Value.Arr() {
			missing = append(missing, v.Str())
		}
	}
	if len(missing) > 0 {
		p.log.Warn("choice inputs missing from page",
			zap.String("step", step),
			zap.Int("round", round),
			zap.Strings("questions", missing),
		)
	}
}
