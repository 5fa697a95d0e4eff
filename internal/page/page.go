// Package page describes a quiz page the way the solver consumes it and
// reads saved copies of such pages from disk.
package page

import "fmt"

// Choice is one selectable answer as found on the page.
type Choice struct {
	Token string `json:"token"` // value posted to the scorer
	Label string `json:"label"`
	Slot  int    `json:"slot"` // index of the choice element inside its question
}

// Question is a question container and the choices that had an input.
type Question struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Snapshot is everything the solver needs from one page load.
type Snapshot struct {
	URL       string     `json:"url,omitempty"`
	QuizID    string     `json:"quizId"`
	SessionID string     `json:"sessionId"`
	Questions []Question `json:"questions"`
}

// Selectors locate quiz structure in the page markup.
type Selectors struct {
	Question       string `yaml:"question" json:"question"`
	QuestionIDAttr string `yaml:"question_id_attr" json:"questionIdAttr"`
	Choice         string `yaml:"choice" json:"choice"`
	InputIDFormat  string `yaml:"input_id_format" json:"inputIdFormat"` // fmt verbs: question id, choice index
	Header         string `yaml:"header" json:"header"`
	QuizIDAttr     string `yaml:"quiz_id_attr" json:"quizIdAttr"`
	Session        string `yaml:"session" json:"session"`
	CheckIcon      string `yaml:"check_icon" json:"checkIcon"`
	CrossIcon      string `yaml:"cross_icon" json:"crossIcon"`
}

// DefaultSelectors matches the CVocp quiz markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Question:       ".cvocp-quiz-item",
		QuestionIDAttr: "data-qstn-nid",
		Choice:         "div[data-part='choice-item']",
		InputIDFormat:  "choice-qstn-%s-%d",
		Header:         "#cvocp-quiz-header",
		QuizIDAttr:     "data-nid",
		Session:        "#cvocp-quiz-session",
		CheckIcon:      `img[data-type="check"]`,
		CrossIcon:      `img[data-type="cross"]`,
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.Question, d.Question)
	fill(&s.QuestionIDAttr, d.QuestionIDAttr)
	fill(&s.Choice, d.Choice)
	fill(&s.InputIDFormat, d.InputIDFormat)
	fill(&s.Header, d.Header)
	fill(&s.QuizIDAttr, d.QuizIDAttr)
	fill(&s.Session, d.Session)
	fill(&s.CheckIcon, d.CheckIcon)
	fill(&s.CrossIcon, d.CrossIcon)
	return s
}

// InputID returns the element id of the input backing a choice.
func (s Selectors) InputID(questionID string, index int) string {
	return fmt.Sprintf(s.InputIDFormat, questionID, index)
}

// ChoiceCount returns the number of choices across all questions.
func (s *Snapshot) ChoiceCount() int {
	n := 0
	for _, q := range s.Questions {
		n += len(q.Choices)
	}
	return n
}
