package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"quizsolver/cmd/quizsolver/ui"
	"quizsolver/internal/scorer"
	"quizsolver/internal/solver"
	"quizsolver/internal/store"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRaw   bool
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run's trials",
		Long: `Without arguments lists the most recent runs. With a run id (or a unique
prefix of one) shows the run's question outcomes and every trial.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	cmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&historyRaw, "raw", false, "Print markdown without terminal styling")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.History.DatabasePath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	hs, err := store.OpenHistory(cfg.History.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer hs.Close()

	ctx := commandContext(cmd)
	var md string
	if len(args) == 0 {
		md, err = runsMarkdown(ctx, hs)
	} else {
		md, err = runMarkdown(ctx, hs, args[0])
	}
	if err != nil {
		return err
	}

	if historyRaw {
		fmt.Fprint(out, md)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Fprint(out, md)
		return nil
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		fmt.Fprint(out, md)
		return nil
	}
	fmt.Fprint(out, rendered)
	return nil
}

func runsMarkdown(ctx context.Context, hs *store.HistoryStore) (string, error) {
	runs, err := hs.ListRuns(ctx, historyLimit)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("# Runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs recorded.\n")
		return sb.String(), nil
	}
	sb.WriteString("| Run | Quiz | Started | Rounds | Score | Result |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range runs {
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %d | %s | %s |\n",
			r.ID, mdCell(r.QuizID), r.StartedAt.Local().Format(time.DateTime), r.Rounds,
			scoreText(r.Score, r.ScoreTotal), resultText(r.Passed))
	}
	return sb.String(), nil
}

func runMarkdown(ctx context.Context, hs *store.HistoryStore, id string) (string, error) {
	run, err := hs.GetRun(ctx, id)
	if err != nil {
		return "", err
	}
	outcomes, err := hs.Outcomes(ctx, run.ID)
	if err != nil {
		return "", err
	}
	trials, err := hs.Trials(ctx, run.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run `%s`\n\n", run.ID)
	fmt.Fprintf(&sb, "- **Quiz:** %s (session %s)\n", mdCell(run.QuizID), mdCell(run.SessionID))
	fmt.Fprintf(&sb, "- **Started:** %s, took %s\n", run.StartedAt.Local().Format(time.DateTime), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&sb, "- **Rounds:** %d of %d (%s)\n", run.Rounds, run.AttemptLimit, run.Stop)
	fmt.Fprintf(&sb, "- **Score:** %s, %s\n\n", scoreText(run.Score, run.ScoreTotal), resultText(run.Passed))

	sb.WriteString("## Questions\n\n| Question | Status | Answer | Token |\n|---|---|---|---|\n")
	for _, o := range outcomes {
		status := o.Status
		if status == solver.Trying.String() {
			status = ui.StatusLabel(solver.Trying)
		}
		fmt.Fprintf(&sb, "| %s | %s | %d/%d %s | `%s` |\n",
			mdCell(o.QuestionID), status, o.Final+1, o.Choices, mdCell(o.Label), o.Token)
	}

	sb.WriteString("\n## Trials\n\n| Round | Question | Choice | Verdict |\n|---|---|---|---|\n")
	for _, t := range trials {
		fmt.Fprintf(&sb, "| %d | %s | %d | %s |\n", t.Round, mdCell(t.QuestionID), t.Choice+1, t.Verdict)
	}
	return sb.String(), nil
}

func scoreText(score, total float64) string {
	return scorer.FormatScore(score) + "/" + scorer.FormatScore(total)
}

func resultText(passed bool) string {
	if passed {
		return "passed"
	}
	return "partial"
}

func mdCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
