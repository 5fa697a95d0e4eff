package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"quizsolver/internal/browser"
	"quizsolver/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBrowserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browser",
		Short: "Manage the Chrome instance used for live quizzes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "launch",
		Short: "Launch Chrome and keep it running for later solve runs",
		Long: `Launches Chrome and writes its DevTools URL to the configured control
file. Log in to the quiz site in the opened window; 'quizsolver solve' then
reuses this browser and its session. Press Ctrl+C to shut it down.`,
		Args: cobra.NoArgs,
		RunE: browserLaunch,
	})
	return cmd
}

// browserLaunch launches the browser instance
func browserLaunch(cmd *cobra.Command, args []string) error {
	bc := cfg.Browser
	bc.DebuggerURL = ""
	if bc.ControlFile == "" {
		return errors.New("browser.control_file is not configured")
	}

	mgr := browser.NewSessionManager(bc, logging.For(logger, logging.CategoryBrowser))
	if err := mgr.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(bc.ControlFile), 0o755); err != nil {
		logger.Warn("failed to create control file directory", zap.Error(err))
	}
	if err := os.WriteFile(bc.ControlFile, []byte(mgr.ControlURL()), 0o644); err != nil {
		logger.Warn("failed to write browser control file", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Browser launched. Control URL: %s\n", mgr.ControlURL())
	fmt.Fprintf(out, "Control file: %s\n", bc.ControlFile)
	fmt.Fprintln(out, "Press Ctrl+C to shutdown")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := os.Remove(bc.ControlFile); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove browser control file", zap.Error(err))
	}
	if err := mgr.Shutdown(context.Background()); err != nil {
		logger.Warn("failed to shutdown browser", zap.Error(err))
	}
	return nil
}
