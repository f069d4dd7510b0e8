package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"igharvest/internal/harvest"
	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/ui"
	"igharvest/pkg/ui/tui"
)

var (
	maxInFlight  int
	pollInterval time.Duration
	runTimeout   time.Duration
	useTUI       bool
	failOnError  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one harvest batch and exit",
	Long: `Run one harvest batch: list active accounts, keep those due today (daily;
weekly on Mondays; monthly on the 1st), scrape each through Apify and record
the outcome.

The command exits non-zero when the account list cannot be read. Individual
account failures are reported in the summary; pass --fail-on-error to turn
them into a non-zero exit as well.`,
	Example: `  # One batch using igharvest.yaml and stored secrets
  igharvest run

  # Against a local sqlite database with a live dashboard
  igharvest run --store-driver sqlite --store-dsn ./igharvest.db --tui

  # Three accounts at a time
  igharvest run --max-in-flight 3

  # Poll Apify every 10s and give up on a run after 15 minutes
  igharvest run --poll-interval 10s --run-timeout 15m`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&maxInFlight, "max-in-flight", 0, "accounts scraped concurrently (default from config)")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "delay between Apify run status checks (default from config)")
	runCmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "give up on an Apify run after this long, 0 waits forever (default from config)")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live dashboard while the batch runs")
	runCmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any account fails")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary *harvest.Summary
	if useTUI {
		summary, err = runWithDashboard(ctx, cfg)
	} else {
		summary, err = runPlain(ctx, cfg)
	}
	if err != nil {
		ui.PrintError("Harvest failed", err.Error())
		return err
	}

	ui.PrintSummary(ui.Output, summary)

	if failOnError && summary.Succeeded() < summary.AccountsProcessed {
		return fmt.Errorf("%d of %d accounts failed", summary.AccountsProcessed-summary.Succeeded(), summary.AccountsProcessed)
	}
	return nil
}

// runFlags collects the run flags that override configuration. Only flags
// set on the command line are returned, so --run-timeout 0 can still mean
// unbounded.
func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := map[string]interface{}{}
	if cmd.Flags().Changed("max-in-flight") {
		flags["max-in-flight"] = maxInFlight
	}
	if cmd.Flags().Changed("poll-interval") {
		flags["poll-interval"] = pollInterval
	}
	if cmd.Flags().Changed("run-timeout") {
		flags["run-timeout"] = runTimeout
	}
	return flags
}

func runPlain(ctx context.Context, cfg *config.Config) (*harvest.Summary, error) {
	log, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}

	h, err := newHarvester(cfg, log)
	if err != nil {
		return nil, err
	}
	defer h.close()

	return h.orchestrator.Run(ctx)
}

// runWithDashboard runs the batch behind the bubbletea dashboard. Logs only
// go to the configured file so they do not tear the screen.
func runWithDashboard(ctx context.Context, cfg *config.Config) (*harvest.Summary, error) {
	log := logger.NewNopLogger()
	if cfg.Logging.File != "" {
		l, err := logger.NewWithFile(&cfg.Logging)
		if err != nil {
			return nil, err
		}
		log = l
	}
	logger.SetLogger(log)

	dashboard := tui.New(tea.WithContext(ctx))

	h, err := newHarvester(cfg, log, harvest.WithObserver(dashboard))
	if err != nil {
		return nil, err
	}
	defer h.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		summary *harvest.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := h.orchestrator.Run(runCtx)
		dashboard.Finish(s, err)
		done <- outcome{s, err}
	}()

	if _, err := dashboard.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.WithError(err).Warn("Dashboard stopped")
	}

	// the user may quit before the batch ends; stop waiting on the provider
	cancel()
	out := <-done
	return out.summary, out.err
}
