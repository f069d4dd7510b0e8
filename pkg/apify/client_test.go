package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		BaseURL:  srv.URL,
		ActorID:  DefaultActorID,
		Token:    token,
		UseProxy: true,
		Timeout:  5 * time.Second,
		Logger:   logger.NewTestLogger(),
	})
}

func TestStartRun(t *testing.T) {
	var gotInput RunInput
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/apify/instagram-scraper/runs", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotInput))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"run-1","status":"READY"}}`))
	}, "secret-token")

	run, err := client.StartRun(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, StatusReady, run.Status)

	assert.Equal(t, []string{"https://www.instagram.com/natgeo/"}, gotInput.DirectURLs)
	assert.Equal(t, "posts", gotInput.ResultsType)
	assert.Equal(t, 100, gotInput.ResultsLimit)
	assert.False(t, gotInput.AddParentData)
	assert.True(t, gotInput.Proxy.UseApifyProxy)
}

func TestStartRunBodyShape(t *testing.T) {
	var raw map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"data":{"id":"run-2"}}`))
	}, "tok")

	_, err := client.StartRun(context.Background(), "nasa")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"directUrls", "resultsType", "resultsLimit", "addParentData", "proxy"}, keys(raw))
	assert.Equal(t, map[string]interface{}{"useApifyProxy": true}, raw["proxy"])
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestStartRunWithoutToken(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := client.StartRun(context.Background(), "natgeo")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
	assert.Equal(t, "APIFY_API_TOKEN environment variable is not set", err.Error())
	assert.False(t, called, "no request may be sent without a token")
}

func TestStartRunWithoutRunID(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty data", http.StatusCreated, `{"data":{}}`},
		{"error body", http.StatusBadRequest, `{"error":{"type":"invalid-input","message":"bad"}}`},
		{"not json", http.StatusBadGateway, `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "tok")

			_, err := client.StartRun(context.Background(), "natgeo")
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrorTypeProviderStart))
			assert.Equal(t, "Failed to start Apify actor", err.Error())
		})
	}
}

func TestGetRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/actor-runs/run-9", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"run-9","status":"TIMED-OUT"}}`))
	}, "tok")

	run, err := client.GetRun(context.Background(), "run-9")
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, run.Status)
	assert.True(t, run.Status.Failed())
}

func TestGetRunHTTPErrors(t *testing.T) {
	tests := []struct {
		status   int
		wantType errs.ErrorType
	}{
		{http.StatusUnauthorized, errs.ErrorTypeAuth},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusServiceUnavailable, errs.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, "tok")

			_, err := client.GetRun(context.Background(), "run-1")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
		})
	}
}

func TestGetDatasetItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/actor-runs/run-3/dataset/items", r.URL.Path)
		w.Write([]byte(`[
			{"id":"p1","caption":"hello","displayUrl":"https://cdn/p1.jpg","likesCount":10,"commentsCount":2,"timestamp":"2024-03-01T12:00:00.000Z"},
			{"id":"p2","likesCount":null}
		]`))
	}, "tok")

	posts, err := client.GetDatasetItems(context.Background(), "run-3")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "p1", posts[0].ID())
	assert.Equal(t, "hello", posts[0].Caption())
	assert.Equal(t, "https://cdn/p1.jpg", posts[0].DisplayURL())
	assert.Equal(t, 10, posts[0].LikesCount())
	assert.Equal(t, 2, posts[0].CommentsCount())

	assert.Equal(t, "", posts[1].Caption())
	assert.Equal(t, 0, posts[1].LikesCount())
}

func TestRequestsHonorContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetRun(ctx, "run-1")
	assert.Error(t, err)
}
