package main

import (
	"fmt"

	"igharvest/internal/harvest"
	"igharvest/internal/metrics"
	"igharvest/internal/reporting"
	"igharvest/internal/store"
	"igharvest/internal/store/hasura"
	"igharvest/internal/store/sqlstore"
	"igharvest/pkg/apify"
	"igharvest/pkg/config"
	"igharvest/pkg/graphql"
	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
)

// openStore connects to the store selected by cfg.Store.Driver
func openStore(cfg *config.Config, log logger.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverGraphQL:
		client := graphql.NewClient(cfg.Store.Endpoint, cfg.Store.AdminSecret, cfg.Store.Timeout, log)
		return hasura.New(client, log), nil
	case config.DriverPostgres, config.DriverSQLite:
		st, err := sqlstore.Open(cfg.Store, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newProvider builds the paced Apify client
func newProvider(cfg *config.Config, log logger.Logger) *apify.Client {
	return apify.NewClient(apify.Options{
		BaseURL:      cfg.Provider.BaseURL,
		ActorID:      cfg.Provider.ActorID,
		Token:        cfg.Provider.Token,
		ResultsLimit: cfg.Provider.ResultsLimit,
		UseProxy:     cfg.Provider.UseProxy,
		Timeout:      cfg.Provider.RequestTimeout,
		Pacer:        ratelimit.NewPacer(cfg.Provider.RequestsPerMinute),
		Logger:       log,
	})
}

// harvester bundles an orchestrator with the resources it owns
type harvester struct {
	store        store.Store
	orchestrator *harvest.Orchestrator
	metrics      *metrics.Collector
	reporter     reporting.Reporter
}

// newHarvester opens the store and wires the orchestrator with metrics and
// error reporting. Callers must call close.
func newHarvester(cfg *config.Config, log logger.Logger, opts ...harvest.Option) (*harvester, error) {
	st, err := openStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	rep, err := reporting.New(cfg.Reporting, version)
	if err != nil {
		log.WithError(err).Warn("Error reporting disabled")
		rep = reporting.Nop()
	}

	opts = append([]harvest.Option{
		harvest.WithMetrics(m),
		harvest.WithReporter(rep),
		harvest.WithLogger(log),
	}, opts...)

	return &harvester{
		store:        st,
		orchestrator: harvest.New(st, newProvider(cfg, log), cfg, opts...),
		metrics:      m,
		reporter:     rep,
	}, nil
}

func (h *harvester) close() {
	h.reporter.Flush(reporting.FlushTimeout)
	h.store.Close()
}
