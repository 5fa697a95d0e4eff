package ui

import (
	"fmt"
	"strconv"
	"strings"

	"quizsolver/internal/solver"
)

// StatusLabel is how a question status reads to the operator. A question
// still trying when the run ended was submitted unconfirmed.
func StatusLabel(s solver.Status) string {
	if s == solver.Trying {
		return "unconfirmed"
	}
	return s.String()
}

// RenderReport renders the run outcome: the success line, or the score line
// followed by a per-question table.
func RenderReport(styles Styles, r *solver.Report) string {
	var sb strings.Builder
	if r.Passed {
		sb.WriteString(styles.Success.Render(r.Summary()))
		sb.WriteString("\n")
		sb.WriteString(styles.Muted.Render(fmt.Sprintf("%d questions, %d rounds, run %s", len(r.Questions), r.Rounds, r.RunID)))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(styles.Error.Render(r.Summary()))
	sb.WriteString("\n")
	sb.WriteString(styles.Muted.Render(fmt.Sprintf("stopped: %s after %d of %d rounds, run %s", r.Stop, r.Rounds, r.AttemptLimit, r.RunID)))
	sb.WriteString("\n")
	counts := r.Counts()
	sb.WriteString(styles.Muted.Render(fmt.Sprintf("%d solved, %d exhausted, %d %s",
		counts[solver.Solved], counts[solver.Exhausted], counts[solver.Trying], StatusLabel(solver.Trying))))
	sb.WriteString("\n\n")

	table := NewTable("Questions", "Question", "Status", "Answer", "Tries")
	for _, q := range r.Questions {
		table.AddRow(
			q.QuestionID,
			renderStatus(styles, q.Status),
			fmt.Sprintf("%d/%d %s", q.Final+1, q.Choices, q.Label),
			strconv.Itoa(len(q.Trials)),
		)
	}
	sb.WriteString(table.View(styles))
	return sb.String()
}

func renderStatus(styles Styles, s solver.Status) string {
	switch s {
	case solver.Solved:
		return styles.Success.Render(StatusLabel(s))
	case solver.Exhausted:
		return styles.Error.Render(StatusLabel(s))
	default:
		return styles.Warning.Render(StatusLabel(s))
	}
}

// RenderCatalog lists the questions and choices a run would try.
func RenderCatalog(styles Styles, quizID, sessionID string, cat *solver.Catalog) string {
	var sb strings.Builder
	sb.WriteString(styles.Bold.Render(fmt.Sprintf("Quiz %s", orDash(quizID))))
	sb.WriteString("\n")
	sb.WriteString(styles.Muted.Render(fmt.Sprintf("session %s, %d questions, %d choices, attempt limit %d",
		orDash(sessionID), cat.Len(), cat.TotalChoices(), cat.AttemptLimit())))
	sb.WriteString("\n\n")

	table := NewTable("", "Question", "#", "Token", "Label")
	for _, id := range cat.IDs() {
		q, _ := cat.Question(id)
		for i, c := range q.Choices() {
			qid := ""
			if i == 0 {
				qid = id
			}
			table.AddRow(qid, strconv.Itoa(i+1), c.Token, c.Label)
		}
	}
	sb.WriteString(table.View(styles))
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
