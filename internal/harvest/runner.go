package harvest

import (
	"context"
	"errors"
	"time"

	"igharvest/internal/metrics"
	"igharvest/pkg/apify"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/poll"
)

// Provider is the part of the Apify client the runner drives
type Provider interface {
	StartRun(ctx context.Context, username string) (*apify.Run, error)
	GetRun(ctx context.Context, runID string) (*apify.Run, error)
	GetDatasetItems(ctx context.Context, runID string) ([]apify.Post, error)
}

// Runner starts one actor run per account and waits for it to finish
type Runner struct {
	provider     Provider
	pollInterval time.Duration
	runTimeout   time.Duration
	metrics      *metrics.Collector
	logger       logger.Logger
	now          func() time.Time
}

// NewRunner creates a runner. runTimeout 0 waits until ctx is done.
func NewRunner(p Provider, pollInterval, runTimeout time.Duration, m *metrics.Collector, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		provider:     p,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		metrics:      m,
		logger:       log,
		now:          time.Now,
	}
}

// Run scrapes username and returns the raw posts of a SUCCEEDED run
func (r *Runner) Run(ctx context.Context, username string) ([]apify.Post, error) {
	run, err := r.provider.StartRun(ctx, username)
	if err != nil {
		return nil, err
	}

	log := r.logger.WithFields(map[string]interface{}{
		"username": username,
		"run_id":   run.ID,
	})
	started := r.now()

	final, err := poll.Until(ctx, poll.Config{
		Interval: r.pollInterval,
		Timeout:  r.runTimeout,
		Logger:   log,
	}, func(ctx context.Context, attempt int) (*apify.Run, bool, error) {
		current, err := r.provider.GetRun(ctx, run.ID)
		if err != nil {
			return nil, false, err
		}
		switch {
		case current.Status.Succeeded():
			return current, true, nil
		case current.Status.Failed():
			return current, false, errs.ProviderRun(string(current.Status))
		}
		return nil, false, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			r.metrics.ObserveProviderRun("TIMEOUT", r.now().Sub(started))
			log.WithField("run_timeout", r.runTimeout).Warn("Gave up waiting for actor run")
			return nil, errs.Timeout(run.ID, err)
		}
		var e *errs.Error
		if errors.As(err, &e) && e.Type == errs.ErrorTypeProviderRun && e.Status != "" {
			r.metrics.ObserveProviderRun(e.Status, r.now().Sub(started))
		}
		return nil, err
	}

	r.metrics.ObserveProviderRun(string(final.Status), r.now().Sub(started))
	log.Debug("Actor run succeeded")

	return r.provider.GetDatasetItems(ctx, run.ID)
}
