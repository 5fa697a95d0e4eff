// Command quizsolver finds the accepted answers of a multiple-choice quiz
// by submitting candidate choices and reading back the scorer's verdicts.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"quizsolver/internal/config"
	"quizsolver/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// errPartialFailure marks a run that finished without full marks. The
// summary has already been printed.
var errPartialFailure = errors.New("quiz finished without full marks")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizsolver",
		Short: "Discover the accepted answers of a multiple-choice quiz",
		Long: `quizsolver reads a quiz page, submits one candidate choice per question
per round and advances each question on the scorer's verdict until every
question is confirmed or has run out of choices. It then submits the best
known answers and, on a live page, paints the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("config %s: %w", configPath, err)
			}
			cfg = loaded

			logger, err = logging.New(cfg.Logging, verbose)
			if err != nil {
				return err
			}
			logging.For(logger, logging.CategoryBoot).Debug("config loaded",
				zap.String("path", configPath),
				zap.String("transport", cfg.Scorer.Transport),
				zap.String("mode", cfg.Engine.Mode),
			)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort after this long (0 waits for the scorer indefinitely)")

	root.AddCommand(
		newSolveCmd(),
		newInspectCmd(),
		newHistoryCmd(),
		newBrowserCmd(),
		newConfigCmd(),
	)
	return root
}

// exitCode maps a command error to the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errPartialFailure):
		return 2
	default:
		return 1
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil && !errors.Is(err, errPartialFailure) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
