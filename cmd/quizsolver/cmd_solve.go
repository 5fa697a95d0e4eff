package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quizsolver/cmd/quizsolver/ui"
	"quizsolver/internal/browser"
	"quizsolver/internal/config"
	"quizsolver/internal/logging"
	"quizsolver/internal/page"
	"quizsolver/internal/scorer"
	"quizsolver/internal/solver"
	"quizsolver/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	solveHTML       string
	solveBaseURL    string
	solveTarget     string
	solveReuse      bool
	solveTransport  string
	solveSequential bool
	solveDelay      time.Duration
	solveNoHistory  bool
)

func newSolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve [url]",
		Short: "Discover and submit the answers of a quiz",
		Long: `Runs the trial loop against a quiz.

Live page (default): the quiz is opened in Chrome (a browser started with
'quizsolver browser launch' is reused), rounds are posted from inside the
page and the result is painted onto it.

Saved page: --html reads a saved copy of the quiz and posts rounds over
HTTP to the scorer of --base-url.

Examples:
  quizsolver solve https://lms.example/node/42
  quizsolver solve --target 5F0C...            # attach to an open tab
  quizsolver solve --html quiz.html --base-url https://lms.example/node/42`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSolve,
	}
	cmd.Flags().StringVar(&solveHTML, "html", "", "Solve a saved quiz page instead of a live one")
	cmd.Flags().StringVar(&solveBaseURL, "base-url", "", "Page URL the saved quiz came from (required with --html)")
	cmd.Flags().StringVar(&solveTarget, "target", "", "Attach to an open tab by DevTools target id")
	cmd.Flags().BoolVar(&solveReuse, "reuse", false, "Attach to an open tab at the URL instead of opening a new one")
	cmd.Flags().StringVar(&solveTransport, "transport", "", "Submission transport: page or http (default from config)")
	cmd.Flags().BoolVar(&solveSequential, "sequential", false, "Try one question per round")
	cmd.Flags().DurationVar(&solveDelay, "delay", 0, "Pause between rounds (default from config)")
	cmd.Flags().BoolVar(&solveNoHistory, "no-history", false, "Do not record the run")
	return cmd
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts := solver.Options{
		Mode:   cfg.GetMode(),
		Delay:  cfg.GetTrialDelay(),
		Logger: logging.For(logger, logging.CategoryEngine),
	}
	if solveSequential {
		opts.Mode = solver.Sequential
	}
	if cmd.Flags().Changed("delay") {
		opts.Delay = solveDelay
	}

	transport := strings.ToLower(cfg.Scorer.Transport)
	if solveTransport != "" {
		transport = strings.ToLower(solveTransport)
	}

	var (
		snap      *page.Snapshot
		sub       scorer.Submitter
		listeners solver.Listeners
	)

	switch {
	case solveHTML != "":
		if len(args) > 0 || solveTarget != "" {
			return errors.New("--html cannot be combined with a URL or --target")
		}
		if solveBaseURL == "" {
			return errors.New("--base-url is required with --html")
		}
		if transport == config.TransportPage && solveTransport != "" {
			return errors.New("--html needs the http transport")
		}
		var err error
		snap, err = page.ParseFile(solveHTML, cfg.Selectors)
		if err != nil {
			return err
		}
		snap.URL = solveBaseURL
		sub, err = newHTTPSubmitter(snap.URL, nil)
		if err != nil {
			return err
		}

	default:
		if len(args) == 0 && solveTarget == "" {
			return errors.New("a quiz URL, --target or --html is required")
		}
		mgr := browser.NewSessionManager(browserConfig(), logging.For(logger, logging.CategoryBrowser))
		if err := mgr.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := mgr.Shutdown(context.Background()); err != nil {
				logger.Warn("browser shutdown failed", zap.Error(err))
			}
		}()

		session, err := openQuizTab(ctx, mgr, args)
		if err != nil {
			return err
		}
		snap, err = mgr.Snapshot(ctx, session.ID, cfg.Selectors)
		if err != nil {
			return err
		}
		if snap.URL == "" {
			snap.URL = session.URL
		}

		switch transport {
		case config.TransportHTTP:
			cookies, err := mgr.Cookies(ctx, session.ID)
			if err != nil {
				return err
			}
			sub, err = newHTTPSubmitter(snap.URL, cookies)
			if err != nil {
				return err
			}
		case config.TransportPage:
			sub, err = mgr.Submitter(session.ID, cfg.Scorer.Endpoint)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown transport %q (valid: %v)", transport, config.ValidTransports)
		}

		if p, ok := mgr.Presenter(session.ID, cfg.Selectors); ok {
			listeners = append(listeners, p)
		}
	}

	opts.Listener = listeners
	run, err := solver.NewRun(snap, sub, opts)
	if err != nil {
		return err
	}
	report, err := run.Execute(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}

	if cfg.History.Enabled && !solveNoHistory {
		recordHistory(ctx, report)
	}

	fmt.Fprint(cmd.OutOrStdout(), ui.RenderReport(ui.DefaultStyles(), report))
	if !report.Passed {
		return errPartialFailure
	}
	return nil
}

func openQuizTab(ctx context.Context, mgr *browser.SessionManager, args []string) (*browser.Session, error) {
	switch {
	case solveTarget != "":
		return mgr.Attach(ctx, solveTarget)
	case solveReuse:
		return mgr.AttachURL(ctx, args[0])
	default:
		return mgr.Open(ctx, args[0])
	}
}

// browserConfig returns the configured browser settings, pointing at the
// browser started by `browser launch` when no debugger URL is configured.
func browserConfig() browser.Config {
	bc := cfg.Browser
	if bc.DebuggerURL != "" || bc.ControlFile == "" {
		return bc
	}
	if data, err := os.ReadFile(bc.ControlFile); err == nil {
		if url := strings.TrimSpace(string(data)); url != "" {
			bc.DebuggerURL = url
			logger.Info("connecting to launched browser", zap.String("control_url", url))
		}
	}
	return bc
}

func newHTTPSubmitter(pageURL string, cookies []*http.Cookie) (*scorer.HTTPSubmitter, error) {
	endpoint, err := scorer.ResolveEndpoint(pageURL, cfg.Scorer.Endpoint)
	if err != nil {
		return nil, err
	}
	opts := []scorer.HTTPOption{
		scorer.WithLogger(logging.For(logger, logging.CategoryScorer)),
		scorer.WithCookies(cookies),
	}
	if cfg.Scorer.Cookie != "" {
		opts = append(opts, scorer.WithCookieHeader(cfg.Scorer.Cookie))
	}
	if cfg.Scorer.UserAgent != "" {
		opts = append(opts, scorer.WithUserAgent(cfg.Scorer.UserAgent))
	}
	return scorer.NewHTTPSubmitter(endpoint, opts...)
}

// recordHistory stores the run. Ledger failures never fail the command.
func recordHistory(ctx context.Context, report *solver.Report) {
	hs, err := store.OpenHistory(cfg.History.DatabasePath, logger)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer hs.Close()
	if err := hs.RecordRun(context.WithoutCancel(ctx), report); err != nil {
		logger.Warn("failed to record run", zap.String("run", report.RunID), zap.Error(err))
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
