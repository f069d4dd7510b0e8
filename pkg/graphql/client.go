// Package graphql runs queries against a Hasura engine through
// github.com/machinebox/graphql, adding the admin credential and typed
// store errors.
package graphql

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	gql "github.com/machinebox/graphql"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// AdminSecretHeader carries the engine admin credential
const AdminSecretHeader = "x-hasura-admin-secret"

// errorPrefix is prepended by the underlying client to engine messages
const errorPrefix = "graphql: "

// Client posts queries to a single endpoint
type Client struct {
	client      *gql.Client
	adminSecret string
	logger      logger.Logger
}

// NewClient creates a GraphQL client. An empty adminSecret sends no
// credential header.
func NewClient(endpoint, adminSecret string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "graphql")

	client := gql.NewClient(endpoint, gql.WithHTTPClient(&http.Client{Timeout: timeout}))
	client.Log = func(s string) { log.Debug(s) }

	return &Client{
		client:      client,
		adminSecret: adminSecret,
		logger:      log,
	}
}

// Do runs query with vars and decodes the "data" member into out. op names
// the operation in logs and errors.
func (c *Client) Do(ctx context.Context, op, query string, vars map[string]interface{}, out interface{}) error {
	req := gql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}
	if c.adminSecret != "" {
		req.Header.Set(AdminSecretHeader, c.adminSecret)
	}

	start := time.Now()
	err := c.client.Run(ctx, req, out)
	fields := map[string]interface{}{
		"operation": op,
		"duration":  time.Since(start),
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.ErrorWithFields("GraphQL request failed", fields)
		return errs.Store(op, &EngineError{Message: strings.TrimPrefix(err.Error(), errorPrefix), Err: err})
	}

	c.logger.DebugWithFields("GraphQL request completed", fields)
	return nil
}

// EngineError is a failed call: a transport failure, a non-JSON answer or
// the first entry of the engine's "errors" array.
type EngineError struct {
	Message string
	Err     error
}

func (e *EngineError) Error() string { return e.Message }

func (e *EngineError) Unwrap() error { return e.Err }

// IsConstraintViolation reports whether err is the engine rejecting a write
// on a unique constraint
func IsConstraintViolation(err error) bool {
	var ee *EngineError
	if !errors.As(err, &ee) {
		return false
	}
	return strings.HasPrefix(ee.Message, "Uniqueness violation")
}
