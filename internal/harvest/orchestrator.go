// Package harvest selects the accounts that are due, scrapes them through
// the provider and records the outcome of every run.
package harvest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"igharvest/internal/metrics"
	"igharvest/internal/models"
	"igharvest/internal/reporting"
	"igharvest/internal/store"
	"igharvest/internal/worker"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// Summary messages
const (
	MessageNothingDue = "No accounts to scrape today"
	MessageCompleted  = "Instagram scraping completed"
)

// Result is the outcome for one account
type Result struct {
	Success      bool   `json:"success"`
	Account      string `json:"account"`
	ItemsScraped int    `json:"items_scraped,omitempty"`
	Error        string `json:"error,omitempty"`

	// Kind is the error kind on failure; not part of the response body
	Kind errs.ErrorType `json:"-"`
}

// Summary is the response of one invocation
type Summary struct {
	Message           string   `json:"message"`
	AccountsProcessed int      `json:"accounts_processed"`
	Results           []Result `json:"results,omitempty"`
}

// Succeeded counts successful results
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Orchestrator runs one harvest batch per call to Run
type Orchestrator struct {
	store       store.HarvestStore
	runner      *Runner
	writer      *Writer
	maxInFlight int
	leaseTTL    time.Duration
	location    *time.Location
	metrics     *metrics.Collector
	reporter    reporting.Reporter
	observer    Observer
	logger      logger.Logger
	now         func() time.Time
	newHolder   func() string
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records outcomes into m
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithReporter sends per-account failures to r
func WithReporter(r reporting.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// Observer is notified as accounts move through a batch. Implementations
// must be safe for concurrent use when max_in_flight > 1.
type Observer interface {
	BatchSelected(usernames []string)
	AccountStarted(username string)
	AccountFinished(result Result)
}

type nopObserver struct{}

func (nopObserver) BatchSelected([]string)  {}
func (nopObserver) AccountStarted(string)   {}
func (nopObserver) AccountFinished(Result) {}

// WithObserver streams batch progress to obs
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now for selection and log timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New wires an orchestrator from cfg
func New(st store.HarvestStore, provider Provider, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		maxInFlight: cfg.Runner.MaxInFlight,
		leaseTTL:    cfg.Runner.LeaseTTL,
		location:    cfg.Location(),
		reporter:    reporting.Nop(),
		observer:    nopObserver{},
		logger:      logger.GetLogger(),
		now:         time.Now,
		newHolder:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithField("component", "harvest")

	o.runner = NewRunner(provider, cfg.Provider.PollInterval, cfg.Provider.RunTimeout, o.metrics, o.logger)
	o.runner.now = o.now
	o.writer = NewWriter(st)
	o.writer.now = o.now
	return o
}

// Run executes one batch. Only a failure to list accounts is returned as an
// error; per-account failures are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := o.now()
	holder := o.newHolder()
	log := o.logger.WithField("invocation", holder)

	accounts, err := o.store.ListActiveAccounts(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list active accounts")
		o.reporter.Capture(err, map[string]string{"stage": "list_accounts"})
		o.metrics.ObserveBatch(o.now().Sub(start), err)
		return nil, err
	}

	due := Select(start, accounts, o.location)
	log.InfoWithFields("Selected accounts", map[string]interface{}{
		"active": len(accounts),
		"due":    len(due),
	})

	usernames := make([]string, len(due))
	for i, a := range due {
		usernames[i] = a.Username
	}
	o.observer.BatchSelected(usernames)

	if len(due) == 0 {
		o.metrics.ObserveBatch(o.now().Sub(start), nil)
		return &Summary{Message: MessageNothingDue}, nil
	}

	claims := o.claim(ctx, holder, due)
	defer o.release(ctx, log, holder, due, claims)

	results := worker.Map(ctx, o.maxInFlight, due, func(ctx context.Context, i int, account models.Account) Result {
		o.observer.AccountStarted(account.Username)
		result := o.processAccount(ctx, holder, account, claims[i])
		o.observer.AccountFinished(result)
		return result
	}, log)

	summary := &Summary{
		Message:           MessageCompleted,
		AccountsProcessed: len(results),
		Results:           results,
	}

	o.metrics.ObserveBatch(o.now().Sub(start), nil)
	log.InfoWithFields("Harvest finished", map[string]interface{}{
		"processed": summary.AccountsProcessed,
		"succeeded": summary.Succeeded(),
		"duration":  o.now().Sub(start),
	})
	return summary, nil
}

// claim takes the lease of every due account before any of them is
// scraped, so overlapping invocations split the batch instead of racing
// through it. A nil entry means the lease is ours.
func (o *Orchestrator) claim(ctx context.Context, holder string, accounts []models.Account) []error {
	claims := make([]error, len(accounts))
	for i, a := range accounts {
		acquired, err := o.store.AcquireLease(ctx, a.ID, holder, o.leaseTTL)
		switch {
		case err != nil:
			claims[i] = err
		case !acquired:
			claims[i] = errs.LeaseHeld(a.Username)
		}
	}
	return claims
}

// release drops the leases taken by claim once the whole batch is done,
// even when ctx was cancelled mid-run
func (o *Orchestrator) release(ctx context.Context, log logger.Logger, holder string, accounts []models.Account, claims []error) {
	ctx = context.WithoutCancel(ctx)
	for i, a := range accounts {
		if claims[i] != nil {
			continue
		}
		if err := o.store.ReleaseLease(ctx, a.ID, holder); err != nil {
			log.WithError(err).WithField("username", a.Username).Warn("Failed to release lease")
		}
	}
}

// processAccount runs one account end to end. It never returns an error;
// every failure becomes a failed Result.
func (o *Orchestrator) processAccount(ctx context.Context, holder string, account models.Account, claimErr error) Result {
	log := o.logger.WithFields(map[string]interface{}{
		"username":   account.Username,
		"account_id": account.ID,
	})

	if claimErr != nil {
		return o.outcome(log, account, 0, claimErr)
	}
	// renew: the claim may be old when the pool reaches this account
	renewed, err := o.store.AcquireLease(ctx, account.ID, holder, o.leaseTTL)
	if err != nil {
		return o.outcome(log, account, 0, err)
	}
	if !renewed {
		return o.outcome(log, account, 0, errs.LeaseHeld(account.Username))
	}

	logID, err := o.store.CreateLog(ctx, account.ID, models.StatusInProgress)
	if err != nil {
		return o.outcome(log, account, 0, err)
	}

	items, runErr := o.scrape(ctx, account)

	if err := o.writer.Finish(context.WithoutCancel(ctx), logID, items, runErr); err != nil {
		log.WithError(err).WithField("log_id", logID).Error("Failed to finalize scraping log")
		o.reporter.Capture(err, map[string]string{"stage": "finish_log", "username": account.Username})
	}

	return o.outcome(log, account, items, runErr)
}

func (o *Orchestrator) scrape(ctx context.Context, account models.Account) (int, error) {
	posts, err := o.runner.Run(ctx, account.Username)
	if err != nil {
		return 0, err
	}
	return o.writer.Write(ctx, account.ID, posts)
}

func (o *Orchestrator) outcome(log logger.Logger, account models.Account, items int, err error) Result {
	logger.LogAccountOutcome(log, account.Username, items, err)

	if err == nil {
		o.metrics.ObserveAccount(items, "")
		return Result{Success: true, Account: account.Username, ItemsScraped: items}
	}

	kind := errs.TypeOf(err)
	o.metrics.ObserveAccount(0, string(kind))
	// lease contention and empty results are expected outcomes
	if kind != errs.ErrorTypeLeaseHeld && kind != errs.ErrorTypeEmptyResult {
		o.reporter.Capture(err, map[string]string{"username": account.Username})
	}
	return Result{Success: false, Account: account.Username, Error: err.Error(), Kind: kind}
}
