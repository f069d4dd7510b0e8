package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/secrets"
)

var (
	// Version information, set via -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	logFormat     string
	storeDriver   string
	storeDSN      string
	storeEndpoint string
	noSecrets     bool
)

var rootCmd = &cobra.Command{
	Use:   "igharvest",
	Short: "Scheduled Instagram harvesting through Apify",
	Long: `igharvest selects the Instagram accounts that are due for scraping, runs the
Apify Instagram scraper for each of them and records posts and run logs in a
GraphQL (Hasura) or SQL store.

Configuration is read from (highest priority first):
  - Command line flags
  - Environment variables (IGHARVEST_*, APIFY_API_TOKEN, HASURA_GRAPHQL_*)
  - .env files
  - Configuration file (igharvest.yaml)
  - Default values

Secrets missing from all of the above are looked up in the system keychain
and the encrypted secrets file (see 'igharvest secrets').`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./igharvest.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store-driver", "", "store driver (graphql, postgres, sqlite)")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "store-dsn", "", "SQL store DSN")
	rootCmd.PersistentFlags().StringVar(&storeEndpoint, "store-endpoint", "", "GraphQL endpoint")
	rootCmd.PersistentFlags().BoolVar(&noSecrets, "no-secrets", false, "do not read stored secrets")

	rootCmd.SetVersionTemplate(`igharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	logger.Version = version
}

// globalFlags collects the persistent flags in the shape
// config.MergeCommandLineFlags expects
func globalFlags() map[string]interface{} {
	return map[string]interface{}{
		"log-level":      logLevel,
		"log-format":     logFormat,
		"store-driver":   storeDriver,
		"store-dsn":      storeDSN,
		"store-endpoint": storeEndpoint,
	}
}

// loadConfig resolves configuration from every source, fills missing
// secrets from the secret stores and validates the result
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := globalFlags()
	for k, v := range extra {
		flags[k] = v
	}

	cfg, err := config.Resolve(configFile, flags)
	if err != nil {
		return nil, err
	}

	if !noSecrets {
		if manager, err := secrets.NewManager(); err == nil {
			manager.Apply(cfg)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// setupLogger initializes the global logger from cfg
func setupLogger(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}
