package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverGraphQL  = "graphql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration options for the harvester and admin API
type Config struct {
	// Backing store (GraphQL engine or SQL database)
	Store StoreConfig `yaml:"store" json:"store"`

	// Scraping provider (Apify)
	Provider ProviderConfig `yaml:"provider" json:"provider"`

	// Batch runner settings
	Runner RunnerConfig `yaml:"runner" json:"runner"`

	// In-process schedule used by `serve`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// HTTP server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Admin API authentication
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Error reporting
	Reporting ReportingConfig `yaml:"reporting" json:"reporting"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StoreConfig selects and configures the backing store
type StoreConfig struct {
	Driver      string        `yaml:"driver" json:"driver"`
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	AdminSecret string        `yaml:"admin_secret" json:"admin_secret"`
	DSN         string        `yaml:"dsn" json:"dsn"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// ProviderConfig holds the Apify settings
type ProviderConfig struct {
	Token             string        `yaml:"token" json:"token"`
	ActorID           string        `yaml:"actor_id" json:"actor_id"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	RunTimeout        time.Duration `yaml:"run_timeout" json:"run_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	ResultsLimit      int           `yaml:"results_limit" json:"results_limit"`
	UseProxy          bool          `yaml:"use_proxy" json:"use_proxy"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RunnerConfig controls how accounts are processed within one invocation
type RunnerConfig struct {
	// MaxInFlight is the number of accounts scraped at once. 1 keeps the
	// provider load strictly sequential.
	MaxInFlight int           `yaml:"max_in_flight" json:"max_in_flight"`
	LeaseTTL    time.Duration `yaml:"lease_ttl" json:"lease_ttl"`
}

// ScheduleConfig holds the cron schedule for `serve`
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Cron     string `yaml:"cron" json:"cron"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	TriggerSecret   string        `yaml:"trigger_secret" json:"trigger_secret"`
}

// AuthConfig holds admin login settings
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret" json:"jwt_secret"`
	AdminPassword     string        `yaml:"admin_password" json:"admin_password"`
	AdminPasswordHash string        `yaml:"admin_password_hash" json:"admin_password_hash"`
	TokenDuration     time.Duration `yaml:"token_duration" json:"token_duration"`
	LoginAttempts     int           `yaml:"login_attempts" json:"login_attempts"`
	LoginWindow       time.Duration `yaml:"login_window" json:"login_window"`
}

// ReportingConfig holds Sentry settings; an empty DSN disables reporting
type ReportingConfig struct {
	SentryDSN   string `yaml:"sentry_dsn" json:"sentry_dsn"`
	Environment string `yaml:"environment" json:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:   DriverGraphQL,
			Endpoint: "http://graphql-engine:8080/v1/graphql",
			Timeout:  30 * time.Second,
		},
		Provider: ProviderConfig{
			ActorID:           "apify/instagram-scraper",
			BaseURL:           "https://api.apify.com",
			PollInterval:      5 * time.Second,
			RunTimeout:        30 * time.Minute,
			RequestTimeout:    60 * time.Second,
			ResultsLimit:      100,
			UseProxy:          true,
			RequestsPerMinute: 60,
		},
		Runner: RunnerConfig{
			MaxInFlight: 1,
			LeaseTTL:    2 * time.Hour,
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Cron:     "0 6 * * *",
			Timezone: "UTC",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // harvest requests can outlive any fixed write deadline
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenDuration: 24 * time.Hour,
			LoginAttempts: 5,
			LoginWindow:   time.Minute,
		},
		Reporting: ReportingConfig{
			Environment: "production",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// envVar maps one or more environment variable names onto a setter. The
// first non-empty variable wins, so the IGHARVEST_ name takes precedence
// over the legacy name.
type envVar struct {
	names []string
	set   func(c *Config, v string) error
}

var envVars = []envVar{
	{[]string{"IGHARVEST_STORE_DRIVER"}, func(c *Config, v string) error { c.Store.Driver = strings.ToLower(v); return nil }},
	{[]string{"IGHARVEST_STORE_ENDPOINT", "HASURA_GRAPHQL_ENDPOINT"}, func(c *Config, v string) error { c.Store.Endpoint = v; return nil }},
	{[]string{"IGHARVEST_STORE_ADMIN_SECRET", "HASURA_GRAPHQL_ADMIN_SECRET"}, func(c *Config, v string) error { c.Store.AdminSecret = v; return nil }},
	{[]string{"IGHARVEST_STORE_DSN", "DATABASE_URL"}, func(c *Config, v string) error { c.Store.DSN = v; return nil }},
	{[]string{"IGHARVEST_PROVIDER_TOKEN", "APIFY_API_TOKEN"}, func(c *Config, v string) error { c.Provider.Token = v; return nil }},
	{[]string{"IGHARVEST_PROVIDER_ACTOR_ID"}, func(c *Config, v string) error { c.Provider.ActorID = v; return nil }},
	{[]string{"IGHARVEST_PROVIDER_BASE_URL"}, func(c *Config, v string) error { c.Provider.BaseURL = v; return nil }},
	{[]string{"IGHARVEST_POLL_INTERVAL"}, durationSetter(func(c *Config) *time.Duration { return &c.Provider.PollInterval })},
	{[]string{"IGHARVEST_RUN_TIMEOUT"}, durationSetter(func(c *Config) *time.Duration { return &c.Provider.RunTimeout })},
	{[]string{"IGHARVEST_RESULTS_LIMIT"}, intSetter(func(c *Config) *int { return &c.Provider.ResultsLimit })},
	{[]string{"IGHARVEST_REQUESTS_PER_MINUTE"}, intSetter(func(c *Config) *int { return &c.Provider.RequestsPerMinute })},
	{[]string{"IGHARVEST_MAX_IN_FLIGHT"}, intSetter(func(c *Config) *int { return &c.Runner.MaxInFlight })},
	{[]string{"IGHARVEST_LEASE_TTL"}, durationSetter(func(c *Config) *time.Duration { return &c.Runner.LeaseTTL })},
	{[]string{"IGHARVEST_SCHEDULE_ENABLED"}, func(c *Config, v string) error { c.Schedule.Enabled = strings.ToLower(v) == "true"; return nil }},
	{[]string{"IGHARVEST_SCHEDULE_CRON"}, func(c *Config, v string) error { c.Schedule.Cron = v; return nil }},
	{[]string{"IGHARVEST_TIMEZONE", "TZ"}, func(c *Config, v string) error { c.Schedule.Timezone = v; return nil }},
	{[]string{"IGHARVEST_SERVER_ADDR"}, func(c *Config, v string) error { c.Server.Addr = v; return nil }},
	{[]string{"IGHARVEST_TRIGGER_SECRET"}, func(c *Config, v string) error { c.Server.TriggerSecret = v; return nil }},
	{[]string{"IGHARVEST_JWT_SECRET"}, func(c *Config, v string) error { c.Auth.JWTSecret = v; return nil }},
	{[]string{"IGHARVEST_ADMIN_PASSWORD"}, func(c *Config, v string) error { c.Auth.AdminPassword = v; return nil }},
	{[]string{"IGHARVEST_ADMIN_PASSWORD_HASH"}, func(c *Config, v string) error { c.Auth.AdminPasswordHash = v; return nil }},
	{[]string{"IGHARVEST_SENTRY_DSN", "SENTRY_DSN"}, func(c *Config, v string) error { c.Reporting.SentryDSN = v; return nil }},
	{[]string{"IGHARVEST_ENVIRONMENT"}, func(c *Config, v string) error { c.Reporting.Environment = v; return nil }},
	{[]string{"IGHARVEST_LOG_LEVEL"}, func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{[]string{"IGHARVEST_LOG_FORMAT"}, func(c *Config, v string) error { c.Logging.Format = v; return nil }},
}

func intSetter(field func(c *Config) *int) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationSetter(field func(c *Config) *time.Duration) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error
	for _, ev := range envVars {
		for _, name := range ev.names {
			v := os.Getenv(name)
			if v == "" {
				continue
			}
			if err := ev.set(c, v); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			}
			break
		}
	}
	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"igharvest.yaml",
		"igharvest.yml",
		".igharvest.yaml",
		filepath.Join(home, ".config", "igharvest", "config.yaml"),
		filepath.Join(home, ".igharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. A missing provider token is
// not an error here: it fails each account run instead.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverGraphQL:
		if c.Store.Endpoint == "" {
			errs = append(errs, errors.New("store endpoint is required for the graphql driver"))
		}
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store dsn is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}

	if c.Provider.ActorID == "" {
		errs = append(errs, errors.New("provider actor id is required"))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider base url is required"))
	}
	if c.Provider.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Provider.RunTimeout < 0 {
		errs = append(errs, errors.New("run timeout cannot be negative"))
	}
	if c.Provider.RequestTimeout <= 0 {
		errs = append(errs, errors.New("provider request timeout must be positive"))
	}
	if c.Provider.ResultsLimit <= 0 {
		errs = append(errs, errors.New("results limit must be positive"))
	}
	if c.Provider.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Runner.MaxInFlight < 1 || c.Runner.MaxInFlight > 10 {
		errs = append(errs, errors.New("max in flight must be between 1 and 10"))
	}
	if c.Runner.LeaseTTL <= 0 {
		errs = append(errs, errors.New("lease ttl must be positive"))
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err))
	}
	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		errs = append(errs, errors.New("schedule cron expression is required when the schedule is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if f := strings.ToLower(c.Logging.Format); f != "console" && f != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	return errors.Join(errs...)
}

// ValidateServer checks the settings only the HTTP server needs
func (c *Config) ValidateServer() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Auth.AdminPassword == "" && c.Auth.AdminPasswordHash == "" {
		errs = append(errs, errors.New("admin password or admin password hash is required"))
	}
	if c.Auth.TokenDuration <= 0 {
		errs = append(errs, errors.New("token duration must be positive"))
	}
	if c.Auth.LoginAttempts <= 0 || c.Auth.LoginWindow <= 0 {
		errs = append(errs, errors.New("login attempts and login window must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the schedule time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["store-driver"].(string); ok && v != "" {
		c.Store.Driver = v
	}
	if v, ok := flags["store-endpoint"].(string); ok && v != "" {
		c.Store.Endpoint = v
	}
	if v, ok := flags["store-dsn"].(string); ok && v != "" {
		c.Store.DSN = v
	}
	if v, ok := flags["max-in-flight"].(int); ok && v > 0 {
		c.Runner.MaxInFlight = v
	}
	if v, ok := flags["poll-interval"].(time.Duration); ok && v > 0 {
		c.Provider.PollInterval = v
	}
	if v, ok := flags["run-timeout"].(time.Duration); ok && v >= 0 {
		c.Provider.RunTimeout = v
	}
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := flags["schedule-enabled"].(bool); ok {
		c.Schedule.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-format"].(string); ok && v != "" {
		c.Logging.Format = v
	}
}

// Load loads configuration from all sources with proper precedence and
// validates the result.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	config, err := Resolve(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Resolve merges all sources like Load but skips validation, so callers can
// fill remaining gaps (stored secrets) before validating themselves.
func Resolve(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)
	return config, nil
}
