// Package hasura implements store.Store on top of a Hasura GraphQL engine.
package hasura

import (
	"context"
	"errors"
	"time"

	"igharvest/internal/models"
	"igharvest/internal/store"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/graphql"
	"igharvest/pkg/logger"
)

// Store talks to the engine through a graphql.Client
type Store struct {
	client *graphql.Client
	logger logger.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a Store
func New(client *graphql.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		client: client,
		logger: log.WithField("component", "hasura_store"),
		now:    time.Now,
	}
}

// Close is a no-op; the engine holds no client-side resources
func (s *Store) Close() error { return nil }

type aggregate struct {
	Aggregate struct {
		Count int `json:"count"`
	} `json:"aggregate"`
}

type affected struct {
	AffectedRows int `json:"affected_rows"`
}

type idOnly struct {
	ID string `json:"id"`
}

func (s *Store) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	var out struct {
		Accounts []models.Account `json:"instagram_accounts"`
	}
	if err := s.client.Do(ctx, "GetActiveInstagramAccounts", getActiveAccounts, nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

func (s *Store) CreateLog(ctx context.Context, accountID string, status models.LogStatus) (string, error) {
	var out struct {
		Log *idOnly `json:"insert_scraping_logs_one"`
	}
	vars := map[string]interface{}{
		"instagram_account_id": accountID,
		"status":               string(status),
	}
	if err := s.client.Do(ctx, "CreateScrapingLog", createScrapingLog, vars, &out); err != nil {
		return "", err
	}
	if out.Log == nil || out.Log.ID == "" {
		return "", errs.Store("CreateScrapingLog", errors.New("no id returned"))
	}
	return out.Log.ID, nil
}

func (s *Store) FinishLog(ctx context.Context, logID string, update store.LogUpdate) error {
	vars := map[string]interface{}{
		"id":            logID,
		"status":        string(update.Status),
		"finished_at":   update.FinishedAt.UTC().Format(time.RFC3339Nano),
		"items_scraped": update.ItemsScraped,
		"error_message": update.ErrorMessage,
	}
	var out struct {
		Log *idOnly `json:"update_scraping_logs_by_pk"`
	}
	if err := s.client.Do(ctx, "UpdateScrapingLog", updateScrapingLog, vars, &out); err != nil {
		return err
	}
	if out.Log == nil {
		return errs.NotFound("scraping log " + logID + " not found")
	}
	return nil
}

func (s *Store) UpsertItems(ctx context.Context, items []models.ScrapedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	objects := make([]map[string]interface{}, len(items))
	for i, it := range items {
		var postedAt interface{}
		if it.PostedAt != nil {
			postedAt = it.PostedAt.UTC().Format(time.RFC3339)
		}
		objects[i] = map[string]interface{}{
			"instagram_account_id": it.InstagramAccountID,
			"post_id":              it.PostID,
			"caption":              it.Caption,
			"image_url":            it.ImageURL,
			"likes_count":          it.LikesCount,
			"comments_count":       it.CommentsCount,
			"posted_at":            postedAt,
			"scraped_at":           it.ScrapedAt.UTC().Format(time.RFC3339Nano),
			"metadata":             it.Metadata,
		}
	}

	var out struct {
		Insert affected `json:"insert_scraped_data"`
	}
	vars := map[string]interface{}{"objects": objects}
	if err := s.client.Do(ctx, "InsertScrapedData", insertScrapedData, vars, &out); err != nil {
		return 0, err
	}
	return out.Insert.AffectedRows, nil
}

func (s *Store) AcquireLease(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	vars := map[string]interface{}{
		"object": map[string]interface{}{
			"account_id":  accountID,
			"holder":      holder,
			"acquired_at": now.Format(time.RFC3339Nano),
			"expires_at":  now.Add(ttl).Format(time.RFC3339Nano),
		},
		"now":    now.Format(time.RFC3339Nano),
		"holder": holder,
	}
	var out struct {
		Insert affected `json:"insert_scrape_leases"`
	}
	if err := s.client.Do(ctx, "AcquireScrapeLease", acquireLease, vars, &out); err != nil {
		return false, err
	}
	return out.Insert.AffectedRows > 0, nil
}

func (s *Store) ReleaseLease(ctx context.Context, accountID, holder string) error {
	vars := map[string]interface{}{
		"account_id": accountID,
		"holder":     holder,
	}
	var out struct {
		Delete affected `json:"delete_scrape_leases"`
	}
	return s.client.Do(ctx, "ReleaseScrapeLease", releaseLease, vars, &out)
}

type accountRow struct {
	models.Account
	LogsAggregate aggregate            `json:"scraping_logs_aggregate"`
	Logs          []models.ScrapingLog `json:"scraping_logs"`
}

func (r accountRow) withLastLog() models.AccountWithLastLog {
	a := models.AccountWithLastLog{Account: r.Account, LogCount: r.LogsAggregate.Aggregate.Count}
	if len(r.Logs) > 0 {
		last := r.Logs[0]
		last.InstagramAccountID = r.ID
		a.LastLog = &last
	}
	return a
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.AccountWithLastLog, error) {
	var out struct {
		Accounts []accountRow `json:"instagram_accounts"`
	}
	if err := s.client.Do(ctx, "GetInstagramAccounts", getAccounts, nil, &out); err != nil {
		return nil, err
	}
	accounts := make([]models.AccountWithLastLog, len(out.Accounts))
	for i, row := range out.Accounts {
		accounts[i] = row.withLastLog()
	}
	return accounts, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var out struct {
		Account *models.Account `json:"instagram_accounts_by_pk"`
	}
	if err := s.client.Do(ctx, "GetInstagramAccount", getAccount, map[string]interface{}{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.Account == nil {
		return nil, errs.NotFound("account not found")
	}
	return out.Account, nil
}

func accountVars(a *models.Account) map[string]interface{} {
	vars := map[string]interface{}{
		"username":         a.Username,
		"profile_id":       nullable(a.ProfileID),
		"scrape_frequency": string(a.ScrapeFrequency),
		"notes":            nullable(a.Notes),
		"is_active":        a.IsActive,
	}
	if a.ID != "" {
		vars["id"] = a.ID
	}
	return vars
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	var out struct {
		Account *models.Account `json:"insert_instagram_accounts_one"`
	}
	if err := s.client.Do(ctx, "AddInstagramAccount", addAccount, accountVars(account), &out); err != nil {
		return translateConstraint(err)
	}
	if out.Account == nil {
		return errs.Store("AddInstagramAccount", errors.New("no account returned"))
	}
	*account = *out.Account
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	var out struct {
		Account *models.Account `json:"update_instagram_accounts_by_pk"`
	}
	if err := s.client.Do(ctx, "UpdateInstagramAccount", updateAccount, accountVars(account), &out); err != nil {
		return translateConstraint(err)
	}
	if out.Account == nil {
		return errs.NotFound("account not found")
	}
	*account = *out.Account
	return nil
}

func (s *Store) SetAccountActive(ctx context.Context, id string, active bool) error {
	var out struct {
		Account *idOnly `json:"update_instagram_accounts_by_pk"`
	}
	vars := map[string]interface{}{"id": id, "is_active": active}
	if err := s.client.Do(ctx, "UpdateAccountStatus", updateAccountStatus, vars, &out); err != nil {
		return err
	}
	if out.Account == nil {
		return errs.NotFound("account not found")
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	var out struct {
		Account *idOnly `json:"delete_instagram_accounts_by_pk"`
	}
	if err := s.client.Do(ctx, "DeleteAccount", deleteAccount, map[string]interface{}{"id": id}, &out); err != nil {
		return err
	}
	if out.Account == nil {
		return errs.NotFound("account not found")
	}
	return nil
}

func (s *Store) ListLogs(ctx context.Context, filter models.LogFilter) (*models.LogPage, error) {
	filter = filter.Normalize()

	where := map[string]interface{}{}
	if filter.Status != "" {
		where["status"] = map[string]interface{}{"_eq": string(filter.Status)}
	}
	if filter.AccountID != "" {
		where["instagram_account_id"] = map[string]interface{}{"_eq": filter.AccountID}
	}

	vars := map[string]interface{}{
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"where":  where,
	}
	var out struct {
		Logs      []models.ScrapingLog `json:"scraping_logs"`
		Aggregate aggregate            `json:"scraping_logs_aggregate"`
	}
	if err := s.client.Do(ctx, "GetScrapingLogs", getScrapingLogs, vars, &out); err != nil {
		return nil, err
	}
	if out.Logs == nil {
		out.Logs = []models.ScrapingLog{}
	}
	return &models.LogPage{Logs: out.Logs, Total: out.Aggregate.Aggregate.Count}, nil
}

func (s *Store) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	var out struct {
		AccountsAggregate aggregate            `json:"instagram_accounts_aggregate"`
		Active            []accountRow         `json:"instagram_accounts"`
		LogsAggregate     aggregate            `json:"scraping_logs_aggregate"`
		Recent            []models.ScrapingLog `json:"scraping_logs"`
	}
	vars := map[string]interface{}{"recent": models.RecentLogCount}
	if err := s.client.Do(ctx, "GetDashboardStats", getDashboardStats, vars, &out); err != nil {
		return nil, err
	}

	d := &models.Dashboard{
		TotalAccounts:  out.AccountsAggregate.Aggregate.Count,
		TotalJobs:      out.LogsAggregate.Aggregate.Count,
		ActiveAccounts: make([]models.AccountWithLastLog, len(out.Active)),
		RecentLogs:     out.Recent,
	}
	for i, row := range out.Active {
		d.ActiveAccounts[i] = row.withLastLog()
	}
	if d.RecentLogs == nil {
		d.RecentLogs = []models.ScrapingLog{}
	}
	for _, l := range d.RecentLogs {
		if l.ItemsScraped != nil {
			d.ItemsScraped += *l.ItemsScraped
		}
	}
	return d, nil
}

// translateConstraint turns a unique violation into a validation error
func translateConstraint(err error) error {
	if graphql.IsConstraintViolation(err) {
		return errs.Validation("an account with this username already exists")
	}
	return err
}
