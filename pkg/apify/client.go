package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
)

// Options configures a Client
type Options struct {
	BaseURL      string
	ActorID      string
	Token        string
	ResultsLimit int
	UseProxy     bool
	Timeout      time.Duration

	// Pacer spaces out every outbound call; nil means unpaced
	Pacer ratelimit.Pacer
	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
	Logger     logger.Logger
}

// Client talks to the Apify v2 REST API
type Client struct {
	httpClient   *http.Client
	baseURL      string
	actorID      string
	token        string
	resultsLimit int
	useProxy     bool
	pacer        ratelimit.Pacer
	logger       logger.Logger
}

// NewClient creates a new Apify client
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ActorID == "" {
		opts.ActorID = DefaultActorID
	}
	if opts.ResultsLimit <= 0 {
		opts.ResultsLimit = DefaultResultsLimit
	}
	if opts.Pacer == nil {
		opts.Pacer = ratelimit.NewPacer(0)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      opts.BaseURL,
		actorID:      opts.ActorID,
		token:        opts.Token,
		resultsLimit: opts.ResultsLimit,
		useProxy:     opts.UseProxy,
		pacer:        opts.Pacer,
		logger:       opts.Logger.WithField("component", "apify"),
	}
}

// HasToken reports whether an API token is configured
func (c *Client) HasToken() bool {
	return c.token != ""
}

// NewRunInput builds the actor input for one profile
func (c *Client) NewRunInput(username string) RunInput {
	return RunInput{
		DirectURLs:    []string{ProfileURL(username)},
		ResultsType:   ResultsTypePosts,
		ResultsLimit:  c.resultsLimit,
		AddParentData: false,
		Proxy:         ProxyConfig{UseApifyProxy: c.useProxy},
	}
}

// StartRun starts the actor for username and returns the new run
func (c *Client) StartRun(ctx context.Context, username string) (*Run, error) {
	if !c.HasToken() {
		return nil, errs.Configuration("APIFY_API_TOKEN environment variable is not set")
	}

	body, err := json.Marshal(c.NewRunInput(username))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to encode actor input", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, StartRunURL(c.baseURL, c.actorID), bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var env runEnvelope
	err = c.doJSON(req, &env)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if env.Data == nil || env.Data.ID == "" {
		e := errs.ProviderStart("Failed to start Apify actor")
		e.Err = err
		if apiErr, ok := err.(*errs.Error); ok {
			e.Code = apiErr.Code
		}
		c.logger.WarnWithFields("actor start returned no run id", map[string]interface{}{
			"username": username,
			"code":     e.Code,
		})
		return nil, e
	}

	c.logger.InfoWithFields("actor run started", map[string]interface{}{
		"username": username,
		"run_id":   env.Data.ID,
		"status":   string(env.Data.Status),
	})
	return env.Data, nil
}

// GetRun fetches the current state of a run
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RunURL(c.baseURL, runID), nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to create request", err)
	}

	var env runEnvelope
	if err := c.doJSON(req, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, errs.Newf(errs.ErrorTypeProviderRun, "run %s: response has no data", runID)
	}
	return env.Data, nil
}

// GetDatasetItems fetches all items of the run's default dataset
func (c *Client) GetDatasetItems(ctx context.Context, runID string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DatasetItemsURL(c.baseURL, runID), nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to create request", err)
	}

	var posts []Post
	if err := c.doJSON(req, &posts); err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("fetched dataset items", map[string]interface{}{
		"run_id": runID,
		"count":  len(posts),
	})
	return posts, nil
}

// doRequest performs a paced, authenticated request
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	c.pacer.Take()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.Path,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
			Err:     err,
		}
	}

	logger.LogRequest(c.logger, req.Method, req.URL.Path, resp.StatusCode, duration)
	return resp, nil
}

// doJSON performs req and decodes a JSON body into target. The body is
// decoded even on error statuses so callers can inspect partial envelopes.
func (c *Client) doJSON(req *http.Request, target interface{}) error {
	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
			Err:     err,
		}
	}

	statusErr := c.checkResponseStatus(resp, body)

	if len(body) > 0 {
		if err := json.Unmarshal(body, target); err != nil && statusErr == nil {
			return &errs.Error{
				Type:    errs.ErrorTypeProviderRun,
				Message: fmt.Sprintf("failed to parse JSON: %v", err),
				Code:    resp.StatusCode,
				Err:     err,
			}
		}
	}
	return statusErr
}

// checkResponseStatus maps HTTP statuses onto typed errors
func (c *Client) checkResponseStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}

	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	c.logger.WarnWithFields("Apify API error", map[string]interface{}{
		"status":       resp.StatusCode,
		"url":          resp.Request.URL.Path,
		"body_preview": preview,
	})

	e := &errs.Error{
		Code:   resp.StatusCode,
		Status: http.StatusText(resp.StatusCode),
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Type = errs.ErrorTypeAuth
		e.Message = "Apify rejected the API token"
	case http.StatusNotFound:
		e.Type = errs.ErrorTypeNotFound
		e.Message = "Apify resource not found"
	default:
		e.Type = errs.ErrorTypeNetwork
		e.Message = fmt.Sprintf("Apify returned status %d", resp.StatusCode)
	}
	return e
}
