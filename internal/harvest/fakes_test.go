package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"igharvest/internal/models"
	"igharvest/internal/store"
	"igharvest/pkg/apify"
	errs "igharvest/pkg/errors"
)

// memStore is an in-memory HarvestStore
type memStore struct {
	mu       sync.Mutex
	accounts []models.Account
	listErr  error
	logs     map[string]*models.ScrapingLog
	logOrder []string
	items    map[string]models.ScrapedItem
	leases   map[string]models.Lease
	finishes map[string]int
	upserts  int
	nextID   int
}

func newMemStore(accounts ...models.Account) *memStore {
	return &memStore{
		accounts: accounts,
		logs:     make(map[string]*models.ScrapingLog),
		items:    make(map[string]models.ScrapedItem),
		leases:   make(map[string]models.Lease),
		finishes: make(map[string]int),
	}
}

var _ store.HarvestStore = (*memStore)(nil)

func (s *memStore) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Account
	for _, a := range s.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) CreateLog(ctx context.Context, accountID string, status models.LogStatus) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("log-%d", s.nextID)
	s.logs[id] = &models.ScrapingLog{ID: id, InstagramAccountID: accountID, Status: status, StartedAt: time.Now()}
	s.logOrder = append(s.logOrder, id)
	return id, nil
}

func (s *memStore) FinishLog(ctx context.Context, logID string, u store.LogUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[logID]
	if !ok {
		return errs.NotFound("log not found")
	}
	s.finishes[logID]++
	finished := u.FinishedAt
	items := u.ItemsScraped
	l.Status = u.Status
	l.FinishedAt = &finished
	l.ItemsScraped = &items
	l.ErrorMessage = u.ErrorMessage
	return nil
}

func (s *memStore) UpsertItems(ctx context.Context, items []models.ScrapedItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, it := range items {
		key := it.InstagramAccountID + "/" + it.PostID
		if existing, ok := s.items[key]; ok {
			existing.Caption = it.Caption
			existing.ImageURL = it.ImageURL
			existing.LikesCount = it.LikesCount
			existing.CommentsCount = it.CommentsCount
			existing.Metadata = it.Metadata
			existing.ScrapedAt = it.ScrapedAt
			s.items[key] = existing
			continue
		}
		s.items[key] = it
	}
	return len(items), nil
}

func (s *memStore) AcquireLease(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if l, ok := s.leases[accountID]; ok && l.Holder != holder && l.ExpiresAt.After(now) {
		return false, nil
	}
	s.leases[accountID] = models.Lease{AccountID: accountID, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	return true, nil
}

func (s *memStore) ReleaseLease(ctx context.Context, accountID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[accountID]; ok && l.Holder == holder {
		delete(s.leases, accountID)
	}
	return nil
}

func (s *memStore) logsFor(accountID string) []*models.ScrapingLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScrapingLog
	for _, id := range s.logOrder {
		if s.logs[id].InstagramAccountID == accountID {
			out = append(out, s.logs[id])
		}
	}
	return out
}

// scriptedProvider answers from per-username scripts
type scriptedProvider struct {
	mu       sync.Mutex
	statuses map[string][]apify.RunStatus
	posts    map[string][]apify.Post
	startErr map[string]error
	calls    map[string]int
	started  []string
	delay    time.Duration
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		statuses: make(map[string][]apify.RunStatus),
		posts:    make(map[string][]apify.Post),
		startErr: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (p *scriptedProvider) StartRun(ctx context.Context, username string) (*apify.Run, error) {
	p.mu.Lock()
	p.started = append(p.started, username)
	err := p.startErr[username]
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if err != nil {
		return nil, err
	}
	return &apify.Run{ID: username, Status: apify.StatusReady}, nil
}

func (p *scriptedProvider) GetRun(ctx context.Context, runID string) (*apify.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.statuses[runID]
	if len(seq) == 0 {
		return &apify.Run{ID: runID, Status: apify.StatusSucceeded}, nil
	}
	i := p.calls[runID]
	if i >= len(seq) {
		i = len(seq) - 1
	}
	p.calls[runID]++
	return &apify.Run{ID: runID, Status: seq[i]}, nil
}

func (p *scriptedProvider) GetDatasetItems(ctx context.Context, runID string) ([]apify.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posts[runID], nil
}

func makePosts(prefix string, n int) []apify.Post {
	posts := make([]apify.Post, n)
	for i := range posts {
		posts[i] = apify.Post{
			"id":            fmt.Sprintf("%s-%d", prefix, i),
			"caption":       fmt.Sprintf("caption %d", i),
			"displayUrl":    fmt.Sprintf("https://cdn.example.com/%s/%d.jpg", prefix, i),
			"likesCount":    float64(10 * i),
			"commentsCount": float64(i),
			"timestamp":     "2024-03-04T10:00:00.000Z",
		}
	}
	return posts
}

func account(id, username string, f models.Frequency) models.Account {
	return models.Account{ID: id, Username: username, ScrapeFrequency: f, IsActive: true}
}
