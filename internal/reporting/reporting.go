// Package reporting forwards unexpected failures to Sentry when a DSN is
// configured. Without a DSN every call is a no-op.
package reporting

import (
	"time"

	sentry "github.com/getsentry/sentry-go"

	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
)

// FlushTimeout bounds how long shutdown waits for queued events
const FlushTimeout = 2 * time.Second

// Reporter captures errors out of band
type Reporter interface {
	Capture(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// New initializes Sentry from cfg. It returns a no-op reporter when no DSN is
// set.
func New(cfg config.ReportingConfig, release string) (Reporter, error) {
	if cfg.SentryDSN == "" {
		return Nop(), nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          "igharvest@" + release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, err
	}

	return &sentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// NewWithHub wraps an existing hub; tests use it with a custom transport
func NewWithHub(hub *sentry.Hub) Reporter {
	return &sentryReporter{hub: hub}
}

type sentryReporter struct {
	hub *sentry.Hub
}

func (r *sentryReporter) Capture(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", string(errs.TypeOf(err)))
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

func (r *sentryReporter) Flush(timeout time.Duration) {
	r.hub.Flush(timeout)
}

type nopReporter struct{}

// Nop returns a reporter that drops everything
func Nop() Reporter { return nopReporter{} }

func (nopReporter) Capture(error, map[string]string) {}
func (nopReporter) Flush(time.Duration)              {}
