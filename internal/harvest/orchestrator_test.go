package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/internal/models"
	"igharvest/pkg/apify"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

var monday = time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.PollInterval = time.Millisecond
	cfg.Provider.RunTimeout = 5 * time.Second
	return cfg
}

func newTestOrchestrator(st *memStore, p Provider, cfg *config.Config, at time.Time) *Orchestrator {
	return New(st, p, cfg,
		WithLogger(logger.NewTestLogger()),
		WithClock(func() time.Time { return at }),
	)
}

// fakeApify serves the three Apify endpoints. Usernames listed in drop have
// their start request's connection closed.
func fakeApify(t *testing.T, posts map[string][]apify.Post, drop ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
			var in apify.RunInput
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			username := strings.TrimSuffix(strings.TrimPrefix(in.DirectURLs[0], apify.InstagramBaseURL+"/"), "/")
			for _, d := range drop {
				if d == username {
					conn, _, err := w.(http.Hijacker).Hijack()
					assert.NoError(t, err)
					conn.Close()
					return
				}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]string{"id": "run-" + username, "status": "READY"},
			})
		case strings.HasSuffix(r.URL.Path, "/dataset/items"):
			runID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/actor-runs/"), "/dataset/items")
			items := posts[strings.TrimPrefix(runID, "run-")]
			if items == nil {
				items = []apify.Post{}
			}
			json.NewEncoder(w).Encode(items)
		case strings.HasPrefix(r.URL.Path, "/v2/actor-runs/"):
			runID := strings.TrimPrefix(r.URL.Path, "/v2/actor-runs/")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]string{"id": runID, "status": "SUCCEEDED"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunThreeAccountsMixedOutcomes(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
		account("id-c", "charlie", models.FrequencyDaily),
	)
	srv := fakeApify(t, map[string][]apify.Post{"alpha": makePosts("alpha", 5)}, "charlie")

	client := apify.NewClient(apify.Options{
		BaseURL: srv.URL,
		Token:   "tok",
		Timeout: 5 * time.Second,
		Logger:  logger.NewTestLogger(),
	})
	o := newTestOrchestrator(st, client, testConfig(), monday)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, MessageCompleted, summary.Message)
	assert.Equal(t, 3, summary.AccountsProcessed)
	require.Len(t, summary.Results, 3)

	assert.Equal(t, Result{Success: true, Account: "alpha", ItemsScraped: 5}, summary.Results[0])

	assert.False(t, summary.Results[1].Success)
	assert.Equal(t, "bravo", summary.Results[1].Account)
	assert.Equal(t, "No data returned from Apify", summary.Results[1].Error)

	assert.False(t, summary.Results[2].Success)
	assert.Equal(t, "charlie", summary.Results[2].Account)
	assert.NotEmpty(t, summary.Results[2].Error)

	assert.Equal(t, 1, summary.Succeeded())
	assert.Len(t, st.logs, 3)
	for id, l := range st.logs {
		assert.Contains(t, []models.LogStatus{models.StatusSuccess, models.StatusFailed}, l.Status, id)
		assert.Equal(t, 1, st.finishes[id], "log %s must be finished exactly once", id)
	}

	alphaLog := st.logsFor("id-a")[0]
	assert.Equal(t, 5, *alphaLog.ItemsScraped)
	assert.Nil(t, alphaLog.ErrorMessage)

	bravoLog := st.logsFor("id-b")[0]
	assert.Equal(t, models.StatusFailed, bravoLog.Status)
	assert.Equal(t, 0, *bravoLog.ItemsScraped)

	assert.Len(t, st.items, 5)
	assert.Empty(t, st.leases, "every lease is released")
}

func TestRunNothingDue(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyWeekly),
		account("id-b", "bravo", models.FrequencyWeekly),
	)
	p := newScriptedProvider()

	summary, err := newTestOrchestrator(st, p, testConfig(), tuesday).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Message: MessageNothingDue}, summary)
	assert.Empty(t, st.logs)
	assert.Empty(t, p.started)

	body, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"No accounts to scrape today","accounts_processed":0}`, string(body))
}

func TestRunProviderDidNotStart(t *testing.T) {
	st := newMemStore(account("id-a", "alpha", models.FrequencyDaily))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"actor-not-found"}}`))
	}))
	defer srv.Close()

	client := apify.NewClient(apify.Options{BaseURL: srv.URL, Token: "tok", Logger: logger.NewTestLogger()})
	summary, err := newTestOrchestrator(st, client, testConfig(), monday).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Success)
	assert.Equal(t, "Failed to start Apify actor", summary.Results[0].Error)
	assert.Equal(t, errs.ErrorTypeProviderStart, summary.Results[0].Kind)

	l := st.logsFor("id-a")[0]
	assert.Equal(t, models.StatusFailed, l.Status)
	assert.Equal(t, 0, *l.ItemsScraped)
	assert.Equal(t, "Failed to start Apify actor", *l.ErrorMessage)
}

func TestRunMissingTokenIsPerAccount(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
	)
	client := apify.NewClient(apify.Options{BaseURL: "http://127.0.0.1:0", Logger: logger.NewTestLogger()})

	summary, err := newTestOrchestrator(st, client, testConfig(), monday).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	for _, r := range summary.Results {
		assert.False(t, r.Success)
		assert.Equal(t, "APIFY_API_TOKEN environment variable is not set", r.Error)
	}
	assert.Len(t, st.logs, 2)
}

func TestRunNonSuccessTerminalStates(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
		account("id-c", "charlie", models.FrequencyDaily),
	)
	p := newScriptedProvider()
	p.statuses["alpha"] = []apify.RunStatus{apify.StatusRunning, apify.StatusFailed}
	p.statuses["bravo"] = []apify.RunStatus{apify.StatusAborting, apify.StatusAborted}
	p.statuses["charlie"] = []apify.RunStatus{apify.StatusTimingOut, apify.StatusTimedOut}

	summary, err := newTestOrchestrator(st, p, testConfig(), monday).Run(context.Background())
	require.NoError(t, err)

	want := []string{"FAILED", "ABORTED", "TIMED-OUT"}
	for i, r := range summary.Results {
		assert.False(t, r.Success)
		assert.Equal(t, "Apify actor run failed with status: "+want[i], r.Error)
	}
	for _, l := range st.logs {
		assert.Equal(t, models.StatusFailed, l.Status)
	}
}

func TestRunIdempotentUpsert(t *testing.T) {
	st := newMemStore(account("id-a", "alpha", models.FrequencyDaily))
	p := newScriptedProvider()
	p.posts["alpha"] = makePosts("alpha", 4)

	o := newTestOrchestrator(st, p, testConfig(), monday)
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	updated := makePosts("alpha", 4)
	updated[0]["likesCount"] = float64(1000)
	p.mu.Lock()
	p.posts["alpha"] = updated
	p.mu.Unlock()

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, st.items, 4)
	assert.Equal(t, 1000, st.items["id-a/alpha-0"].LikesCount)
	assert.Len(t, st.logs, 2)
}

func TestRunLeaseHeldSkipsAccount(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
	)
	_, err := st.AcquireLease(context.Background(), "id-a", "other-invocation", time.Hour)
	require.NoError(t, err)

	p := newScriptedProvider()
	p.posts["bravo"] = makePosts("bravo", 2)

	summary, err := newTestOrchestrator(st, p, testConfig(), monday).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.False(t, summary.Results[0].Success)
	assert.Equal(t, errs.ErrorTypeLeaseHeld, summary.Results[0].Kind)
	assert.True(t, summary.Results[1].Success)

	assert.Empty(t, st.logsFor("id-a"), "no log for a skipped account")
	assert.Equal(t, []string{"bravo"}, p.started)
	assert.Equal(t, "other-invocation", st.leases["id-a"].Holder)
}

func TestRunListFailure(t *testing.T) {
	st := newMemStore()
	st.listErr = errs.Store("list active accounts", errors.New("connection refused"))

	summary, err := newTestOrchestrator(st, newScriptedProvider(), testConfig(), monday).Run(context.Background())
	assert.Nil(t, summary)
	assert.EqualError(t, err, "list active accounts: connection refused")
}

func TestRunPoolKeepsOrder(t *testing.T) {
	var accounts []models.Account
	names := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	for _, n := range names {
		accounts = append(accounts, account("id-"+n, n, models.FrequencyDaily))
	}
	st := newMemStore(accounts...)

	p := newScriptedProvider()
	p.delay = 5 * time.Millisecond
	for i, n := range names {
		p.posts[n] = makePosts(n, i+1)
		// earlier accounts take longer to finish
		seq := make([]apify.RunStatus, len(names)-i)
		for j := range seq {
			seq[j] = apify.StatusRunning
		}
		p.statuses[n] = append(seq, apify.StatusSucceeded)
	}

	cfg := testConfig()
	cfg.Runner.MaxInFlight = 3

	summary, err := newTestOrchestrator(st, p, cfg, monday).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, len(names))
	for i, r := range summary.Results {
		assert.Equal(t, names[i], r.Account)
		assert.True(t, r.Success)
		assert.Equal(t, i+1, r.ItemsScraped)
	}
}

func TestRunSequentialByDefault(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
		account("id-c", "charlie", models.FrequencyDaily),
	)

	var inFlight, peak int32
	p := &trackingProvider{scriptedProvider: newScriptedProvider(), inFlight: &inFlight, peak: &peak}
	for _, n := range []string{"alpha", "bravo", "charlie"} {
		p.posts[n] = makePosts(n, 1)
	}

	_, err := newTestOrchestrator(st, p, testConfig(), monday).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, p.started)
}

// trackingProvider records how many runs are active at once
type trackingProvider struct {
	*scriptedProvider
	inFlight *int32
	peak     *int32
}

func (p *trackingProvider) StartRun(ctx context.Context, username string) (*apify.Run, error) {
	n := atomic.AddInt32(p.inFlight, 1)
	if n > atomic.LoadInt32(p.peak) {
		atomic.StoreInt32(p.peak, n)
	}
	time.Sleep(2 * time.Millisecond)
	return p.scriptedProvider.StartRun(ctx, username)
}

func (p *trackingProvider) GetDatasetItems(ctx context.Context, runID string) ([]apify.Post, error) {
	defer atomic.AddInt32(p.inFlight, -1)
	return p.scriptedProvider.GetDatasetItems(ctx, runID)
}

type recordingObserver struct {
	mu       sync.Mutex
	selected []string
	started  []string
	finished []Result
}

func (r *recordingObserver) BatchSelected(usernames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = usernames
}

func (r *recordingObserver) AccountStarted(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, username)
}

func (r *recordingObserver) AccountFinished(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

func TestRunNotifiesObserver(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyWeekly),
		account("id-c", "charlie", models.FrequencyDaily),
	)
	p := newScriptedProvider()
	p.posts["alpha"] = makePosts("alpha", 2)

	obs := &recordingObserver{}
	tuesday := monday.AddDate(0, 0, 1)
	o := New(st, p, testConfig(),
		WithLogger(logger.NewTestLogger()),
		WithClock(func() time.Time { return tuesday }),
		WithObserver(obs),
	)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "charlie"}, obs.selected)
	assert.Equal(t, []string{"alpha", "charlie"}, obs.started)
	assert.Equal(t, summary.Results, obs.finished)
}

// leaseCounter records how many leases exist when each account starts
type leaseCounter struct {
	nopObserver
	st     *memStore
	mu     sync.Mutex
	counts []int
}

func (c *leaseCounter) AccountStarted(string) {
	c.st.mu.Lock()
	n := len(c.st.leases)
	c.st.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = append(c.counts, n)
}

func TestRunClaimsWholeBatchBeforeScraping(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
		account("id-c", "charlie", models.FrequencyDaily),
	)
	p := newScriptedProvider()
	p.posts["alpha"] = makePosts("alpha", 1)
	p.posts["bravo"] = makePosts("bravo", 1)
	p.posts["charlie"] = makePosts("charlie", 1)

	counter := &leaseCounter{st: st}
	o := New(st, p, testConfig(),
		WithLogger(logger.NewTestLogger()),
		WithClock(func() time.Time { return monday }),
		WithObserver(counter),
	)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded())

	assert.Equal(t, []int{3, 3, 3}, counter.counts, "every lease is held until the batch ends")
	assert.Empty(t, st.leases)
}

func TestConcurrentRunsScrapeEachAccountOnce(t *testing.T) {
	st := newMemStore(
		account("id-a", "alpha", models.FrequencyDaily),
		account("id-b", "bravo", models.FrequencyDaily),
		account("id-c", "charlie", models.FrequencyDaily),
	)
	p := newScriptedProvider()
	p.delay = 50 * time.Millisecond
	for _, u := range []string{"alpha", "bravo", "charlie"} {
		p.posts[u] = makePosts(u, 2)
	}

	var (
		wg        sync.WaitGroup
		summaries [2]*Summary
	)
	for i := range summaries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := newTestOrchestrator(st, p, testConfig(), monday)
			s, err := o.Run(context.Background())
			assert.NoError(t, err)
			summaries[i] = s
		}(i)
	}
	wg.Wait()

	scraped := map[string]int{}
	for _, s := range summaries {
		require.NotNil(t, s)
		require.Len(t, s.Results, 3)
		for _, r := range s.Results {
			if r.Success {
				scraped[r.Account]++
				continue
			}
			assert.Equal(t, errs.ErrorTypeLeaseHeld, r.Kind, r.Account)
		}
	}

	assert.Equal(t, map[string]int{"alpha": 1, "bravo": 1, "charlie": 1}, scraped)
	assert.Len(t, st.logs, 3, "one log per account across both invocations")
	assert.Len(t, p.started, 3)
	assert.Empty(t, st.leases)
}

func TestRunRenewalLostSkipsAccount(t *testing.T) {
	st := newMemStore(account("id-a", "alpha", models.FrequencyDaily))
	p := newScriptedProvider()

	cfg := testConfig()
	cfg.Runner.LeaseTTL = time.Nanosecond

	// the claim expires at once and another invocation takes the lease
	// before this one starts the account
	obs := &takeoverObserver{st: st}
	o := New(st, p, cfg,
		WithLogger(logger.NewTestLogger()),
		WithClock(func() time.Time { return monday }),
		WithObserver(obs),
	)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, errs.ErrorTypeLeaseHeld, summary.Results[0].Kind)
	assert.Empty(t, st.logs)
	assert.Empty(t, p.started)
	assert.Equal(t, "other-invocation", st.leases["id-a"].Holder, "the new holder keeps its lease")
}

type takeoverObserver struct {
	nopObserver
	st *memStore
}

func (o *takeoverObserver) AccountStarted(string) {
	time.Sleep(time.Millisecond)
	_, _ = o.st.AcquireLease(context.Background(), "id-a", "other-invocation", time.Hour)
}
