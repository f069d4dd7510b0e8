package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igharvest/internal/api"
	"igharvest/internal/auth"
	"igharvest/internal/scheduler"
	"igharvest/internal/server"
	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
	"igharvest/pkg/ui"
)

const (
	harvestJob = "harvest"
	pruneJob   = "prune-login-limiter"
)

var (
	serveAddr       string
	scheduleEnabled bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin API and run the harvest on a schedule",
	Long: `Serve the admin JSON API, the harvest trigger endpoint and Prometheus metrics.

When the schedule is enabled (the default), the harvest batch also runs in
process on the configured cron expression and time zone. Concurrent triggers
never scrape the same account twice thanks to per-account leases.`,
	Example: `  # Serve on :8080 with the daily 06:00 schedule
  igharvest serve

  # Serve only; an external scheduler calls POST /api/harvest
  igharvest serve --schedule=false --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&scheduleEnabled, "schedule", true, "run the harvest on the configured cron schedule")
}

func runServe(cmd *cobra.Command, args []string) error {
	ui.PrintBanner()

	extra := map[string]interface{}{"addr": serveAddr}
	if cmd.Flags().Changed("schedule") {
		extra["schedule-enabled"] = scheduleEnabled
	}

	cfg, err := loadConfig(extra)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		ui.PrintError("Server configuration is incomplete", err.Error())
		return err
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	h, err := newHarvester(cfg, log)
	if err != nil {
		return err
	}
	defer h.close()

	limiter := ratelimit.NewKeyedLimiter(cfg.Auth.LoginAttempts, cfg.Auth.LoginWindow)

	sched, err := newScheduler(cfg, h, limiter, log)
	if err != nil {
		return err
	}

	handler := api.NewRouter(cfg, api.Deps{
		Store:     h.store,
		Harvester: h.orchestrator,
		Auth:      auth.New(cfg.Auth),
		Metrics:   h.metrics,
		Logger:    log,
		Limiter:   limiter,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoWithFields("igharvest starting", map[string]interface{}{
		"addr":     cfg.Server.Addr,
		"store":    cfg.Store.Driver,
		"schedule": cfg.Schedule.Enabled,
	})
	return server.New(cfg.Server, handler, sched, log).Run(ctx)
}

// newScheduler registers the harvest job (when enabled) and periodic
// pruning of idle login-limiter windows
func newScheduler(cfg *config.Config, h *harvester, limiter *ratelimit.KeyedLimiter, log logger.Logger) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(cfg.Schedule.Timezone, log)
	if err != nil {
		return nil, err
	}

	if cfg.Schedule.Enabled {
		err := sched.AddJob(harvestJob, cfg.Schedule.Cron, func(ctx context.Context) error {
			_, err := h.orchestrator.Run(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	err = sched.AddJob(pruneJob, fmt.Sprintf("@every %s", cfg.Auth.LoginWindow), func(ctx context.Context) error {
		if n := limiter.Prune(); n > 0 {
			log.DebugWithFields("Pruned login windows", map[string]interface{}{"count": n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}
