// Package apifytest provides an in-process fake of the Apify endpoints the
// harvester uses: start run, get run and list dataset items.
package apifytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"igharvest/pkg/apify"
)

// Server simulates the Apify API with scripted per-username behavior
type Server struct {
	server *httptest.Server
	token  string

	mu          sync.RWMutex
	posts       map[string][]apify.Post
	statuses    map[string][]apify.RunStatus
	startErrors map[string]int
	delays      map[string]time.Duration
	polls       map[string]int
	started     []apify.RunInput

	requestCount int32
}

// NewServer starts a fake Apify API that accepts token as bearer token. An
// empty token accepts any request.
func NewServer(token string) *Server {
	s := &Server{
		token:       token,
		posts:       make(map[string][]apify.Post),
		statuses:    make(map[string][]apify.RunStatus),
		startErrors: make(map[string]int),
		delays:      make(map[string]time.Duration),
		polls:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/{owner}/{actor}/runs", s.handleStart)
	mux.HandleFunc("GET /v2/actor-runs/{run}", s.handleRun)
	mux.HandleFunc("GET /v2/actor-runs/{run}/dataset/items", s.handleItems)

	s.server = httptest.NewServer(s.authorize(mux))
	return s
}

// URL is the base URL to hand to apify.Options.BaseURL
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down
func (s *Server) Close() {
	s.server.Close()
}

// SetPosts sets the dataset returned for username's runs
func (s *Server) SetPosts(username string, posts []apify.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[username] = posts
}

// SetStatuses scripts the statuses returned by successive polls of
// username's run; the last one repeats. Unscripted runs succeed at once.
func (s *Server) SetStatuses(username string, statuses ...apify.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[username] = statuses
}

// SetStartError makes starting a run for username answer with code
func (s *Server) SetStartError(username string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErrors[username] = code
}

// SetDelay delays every response concerning username
func (s *Server) SetDelay(username string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[username] = delay
}

// Started returns the inputs of every accepted start request, in order
func (s *Server) Started() []apify.RunInput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]apify.RunInput(nil), s.started...)
}

// RequestCount returns the number of requests served
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.requestCount))
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.requestCount, 1)
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			sendError(w, http.StatusUnauthorized, "user-or-token-not-found", "Authentication token is not valid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var in apify.RunInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.DirectURLs) == 0 {
		sendError(w, http.StatusBadRequest, "invalid-input", "Input is not valid")
		return
	}
	username := usernameFromURL(in.DirectURLs[0])
	s.wait(username)

	s.mu.Lock()
	code := s.startErrors[username]
	if code == 0 {
		s.started = append(s.started, in)
	}
	s.mu.Unlock()

	if code > 0 {
		sendError(w, code, "run-failed-to-start", fmt.Sprintf("Could not start run for %s", username))
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeRun(w, runID(username), apify.StatusReady)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("run")
	username, ok := usernameFromRunID(id)
	if !ok {
		sendError(w, http.StatusNotFound, "record-not-found", "Actor run was not found")
		return
	}
	s.wait(username)

	s.mu.Lock()
	seq := s.statuses[username]
	i := s.polls[username]
	s.polls[username]++
	s.mu.Unlock()

	status := apify.StatusSucceeded
	if len(seq) > 0 {
		if i >= len(seq) {
			i = len(seq) - 1
		}
		status = seq[i]
	}
	writeRun(w, id, status)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameFromRunID(r.PathValue("run"))
	if !ok {
		sendError(w, http.StatusNotFound, "record-not-found", "Dataset was not found")
		return
	}
	s.wait(username)

	s.mu.RLock()
	items := s.posts[username]
	s.mu.RUnlock()
	if items == nil {
		items = []apify.Post{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (s *Server) wait(username string) {
	s.mu.RLock()
	d := s.delays[username]
	s.mu.RUnlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func writeRun(w http.ResponseWriter, id string, status apify.RunStatus) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": apify.Run{ID: id, Status: status, DefaultDatasetID: "ds-" + id},
	})
}

func sendError(w http.ResponseWriter, code int, typ, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"type": typ, "message": message},
	})
}

const runPrefix = "run-"

func runID(username string) string {
	return runPrefix + username
}

func usernameFromRunID(id string) (string, bool) {
	if !strings.HasPrefix(id, runPrefix) || len(id) == len(runPrefix) {
		return "", false
	}
	return strings.TrimPrefix(id, runPrefix), true
}

func usernameFromURL(u string) string {
	u = strings.TrimPrefix(u, apify.InstagramBaseURL+"/")
	return strings.Trim(u, "/")
}

// Posts builds n dataset items for username with distinct ids
func Posts(username string, n int) []apify.Post {
	posts := make([]apify.Post, n)
	for i := range posts {
		posts[i] = apify.Post{
			"id":            fmt.Sprintf("%s_%d", username, i+1),
			"caption":       fmt.Sprintf("%s post %d", username, i+1),
			"displayUrl":    fmt.Sprintf("https://scontent.cdninstagram.com/%s/%d.jpg", username, i+1),
			"likesCount":    float64(100 * (i + 1)),
			"commentsCount": float64(i),
			"timestamp":     time.Date(2024, 3, 1, 12, i, 0, 0, time.UTC).Format("2006-01-02T15:04:05.000Z"),
		}
	}
	return posts
}
