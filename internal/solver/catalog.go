package solver

import (
	"fmt"

	"quizsolver/internal/page"

	"go.uber.org/zap"
)

// Choice is one candidate answer. Slot is its position in the page and is
// only used to paint results.
type Choice struct {
	Token string
	Label string
	Slot  int
}

// Status is a question's place in the trial loop.
type Status int

const (
	Trying Status = iota
	Solved
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case Exhausted:
		return "exhausted"
	default:
		return "trying"
	}
}

// Trial is one choice tried for a question and what the scorer said.
type Trial struct {
	Round   int
	Choice  int
	Verdict Verdict
}

// QuestionState tracks one question. choices never change; cursor only
// moves forward and solved is set at most once.
type QuestionState struct {
	ID      string
	choices []Choice
	cursor  int
	solved  bool
	trials  []Trial
}

// Choices returns a copy of the question's choices in page order.
func (q *QuestionState) Choices() []Choice {
	out := make([]Choice, len(q.choices))
	copy(out, q.choices)
	return out
}

// Cursor is the index of the next or most recently confirmed choice.
func (q *QuestionState) Cursor() int { return q.cursor }

// Solved reports whether a choice was confirmed correct.
func (q *QuestionState) Solved() bool { return q.solved }

// Trials returns the question's trial history.
func (q *QuestionState) Trials() []Trial {
	out := make([]Trial, len(q.trials))
	copy(out, q.trials)
	return out
}

// Status derives the question's state from cursor and solved.
func (q *QuestionState) Status() Status {
	switch {
	case q.solved:
		return Solved
	case q.cursor >= len(q.choices):
		return Exhausted
	default:
		return Trying
	}
}

// current returns the choice under the cursor.
func (q *QuestionState) current() (Choice, bool) {
	if q.cursor < 0 || q.cursor >= len(q.choices) {
		return Choice{}, false
	}
	return q.choices[q.cursor], true
}

// finalIndex clamps the cursor to the last valid choice.
func (q *QuestionState) finalIndex() int {
	return min(q.cursor, len(q.choices)-1)
}

// record applies a verdict for the choice under the cursor. Anything but
// Correct moves the cursor on, even in a round that scored full marks.
func (q *QuestionState) record(round int, v Verdict) {
	q.trials = append(q.trials, Trial{Round: round, Choice: q.cursor, Verdict: v})
	if v == Correct {
		q.solved = true
		return
	}
	q.cursor++
}

// Catalog maps question ids to their state, in page order.
type Catalog struct {
	order        []string
	states       map[string]*QuestionState
	totalChoices int
}

// BuildCatalog turns page questions into a catalog. Questions without an
// id or without choices are dropped; a repeated id keeps its first
// occurrence.
func BuildCatalog(questions []page.Question, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{states: make(map[string]*QuestionState, len(questions))}
	for i, q := range questions {
		if q.ID == "" {
			log.Warn("dropping question without id", zap.Int("position", i))
			continue
		}
		if len(q.Choices) == 0 {
			log.Warn("no selectable choices for question", zap.String("question", q.ID))
			continue
		}
		if _, dup := c.states[q.ID]; dup {
			log.Warn("dropping duplicate question", zap.String("question", q.ID), zap.Int("position", i))
			continue
		}
		choices := make([]Choice, 0, len(q.Choices))
		for _, ch := range q.Choices {
			label := ch.Label
			if label == "" {
				label = fmt.Sprintf("Choice %d", ch.Slot+1)
			}
			choices = append(choices, Choice{Token: ch.Token, Label: label, Slot: ch.Slot})
		}
		c.order = append(c.order, q.ID)
		c.states[q.ID] = &QuestionState{ID: q.ID, choices: choices}
		c.totalChoices += len(choices)
	}
	log.Debug("catalog built",
		zap.Int("questions", len(c.order)),
		zap.Int("choices", c.totalChoices),
		zap.Int("dropped", len(questions)-len(c.order)),
	)
	return c
}

// Len is the number of questions.
func (c *Catalog) Len() int { return len(c.order) }

// IDs returns question ids in page order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Question returns the state for id.
func (c *Catalog) Question(id string) (*QuestionState, bool) {
	q, ok := c.states[id]
	return q, ok
}

// TotalChoices is the number of choices across all questions.
func (c *Catalog) TotalChoices() int { return c.totalChoices }

// AttemptLimit is the round cap: every choice once plus one slack round
// per question.
func (c *Catalog) AttemptLimit() int { return c.totalChoices + len(c.order) }

// Pending returns, in page order, the questions still Trying.
func (c *Catalog) Pending() []string {
	var out []string
	for _, id := range c.order {
		if c.states[id].Status() == Trying {
			out = append(out, id)
		}
	}
	return out
}
