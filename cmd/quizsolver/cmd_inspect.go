package main

import (
	"encoding/json"
	"fmt"

	"quizsolver/cmd/quizsolver/ui"
	"quizsolver/internal/logging"
	"quizsolver/internal/page"
	"quizsolver/internal/solver"

	"github.com/spf13/cobra"
)

var inspectJSON bool

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show the questions and choices found in a saved quiz page",
		Long: `Parses a saved quiz page with the configured selectors and prints the
catalog a run would work through. Nothing is submitted.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
	cmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the raw page snapshot as JSON")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	snap, err := page.ParseFile(args[0], cfg.Selectors)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	cat := solver.BuildCatalog(snap.Questions, logging.For(logger, logging.CategoryCatalog))
	fmt.Fprint(out, ui.RenderCatalog(ui.DefaultStyles(), snap.QuizID, snap.SessionID, cat))
	if snap.QuizID == "" || snap.SessionID == "" {
		fmt.Fprintln(out, ui.DefaultStyles().Warning.Render("quiz metadata missing: a run would be refused"))
	}
	return nil
}
