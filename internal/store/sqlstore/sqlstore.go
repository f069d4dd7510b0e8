// Package sqlstore implements store.Store with gorm on postgres or sqlite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"igharvest/internal/models"
	"igharvest/internal/store"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// Store is a gorm-backed store.Store
type Store struct {
	db     *gorm.DB
	logger logger.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to the configured database and migrates the schema
func Open(cfg config.StoreConfig, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "sql_store")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		// lib/pq registers itself as "postgres"
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: cfg.DSN})
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errs.Configuration(fmt.Sprintf("unsupported sql driver %q", cfg.Driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errs.Store("failed to connect to database", err)
	}

	if cfg.Driver == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errs.Store("failed to get database handle", err)
		}
		// one connection keeps ":memory:" databases shared and serializes writers
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Account{}, &models.ScrapingLog{}, &models.ScrapedItem{}, &models.Lease{}); err != nil {
		return nil, errs.Store("failed to migrate schema", err)
	}

	log.InfoWithFields("database ready", map[string]interface{}{"driver": cfg.Driver})
	return &Store{db: db, logger: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&accounts).Error; err != nil {
		return nil, errs.Store("GetActiveInstagramAccounts", err)
	}
	return accounts, nil
}

func (s *Store) CreateLog(ctx context.Context, accountID string, status models.LogStatus) (string, error) {
	log := models.ScrapingLog{
		ID:                 uuid.NewString(),
		InstagramAccountID: accountID,
		Status:             status,
		StartedAt:          s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return "", errs.Store("CreateScrapingLog", err)
	}
	return log.ID, nil
}

func (s *Store) FinishLog(ctx context.Context, logID string, update store.LogUpdate) error {
	res := s.db.WithContext(ctx).Model(&models.ScrapingLog{}).Where("id = ?", logID).Updates(map[string]interface{}{
		"status":        update.Status,
		"finished_at":   update.FinishedAt.UTC(),
		"items_scraped": update.ItemsScraped,
		"error_message": update.ErrorMessage,
	})
	if res.Error != nil {
		return errs.Store("UpdateScrapingLog", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("scraping log " + logID + " not found")
	}
	return nil
}

func (s *Store) UpsertItems(ctx context.Context, items []models.ScrapedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instagram_account_id"}, {Name: "post_id"}},
		DoUpdates: clause.AssignmentColumns(models.UpsertColumns),
	}).Create(&items)
	if res.Error != nil {
		return 0, errs.Store("InsertScrapedData", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) AcquireLease(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error) {
	now := s.now()
	lease := models.Lease{
		AccountID:  accountID,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder", "acquired_at", "expires_at"}),
		// taken over when expired, renewed by its own holder
		Where: clause.Where{Exprs: []clause.Expression{clause.Or(
			clause.Lt{Column: clause.Column{Table: models.Lease{}.TableName(), Name: "expires_at"}, Value: now},
			clause.Eq{Column: clause.Column{Table: models.Lease{}.TableName(), Name: "holder"}, Value: holder},
		)}},
	}).Create(&lease)
	if res.Error != nil {
		return false, errs.Store("AcquireScrapeLease", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ReleaseLease(ctx context.Context, accountID, holder string) error {
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND holder = ?", accountID, holder).
		Delete(&models.Lease{}).Error
	if err != nil {
		return errs.Store("ReleaseScrapeLease", err)
	}
	return nil
}

func (s *Store) lastLog(ctx context.Context, accountID string) (*models.ScrapingLog, error) {
	var logs []models.ScrapingLog
	err := s.db.WithContext(ctx).
		Where("instagram_account_id = ?", accountID).
		Order("started_at desc").
		Limit(1).
		Find(&logs).Error
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return &logs[0], nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.AccountWithLastLog, error) {
	var accounts []models.Account
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&accounts).Error; err != nil {
		return nil, errs.Store("GetInstagramAccounts", err)
	}

	var counts []struct {
		InstagramAccountID string
		Count              int
	}
	err := s.db.WithContext(ctx).Model(&models.ScrapingLog{}).
		Select("instagram_account_id, count(*) as count").
		Group("instagram_account_id").
		Scan(&counts).Error
	if err != nil {
		return nil, errs.Store("GetInstagramAccounts", err)
	}
	byAccount := make(map[string]int, len(counts))
	for _, c := range counts {
		byAccount[c.InstagramAccountID] = c.Count
	}

	out := make([]models.AccountWithLastLog, len(accounts))
	for i, a := range accounts {
		last, err := s.lastLog(ctx, a.ID)
		if err != nil {
			return nil, errs.Store("GetInstagramAccounts", err)
		}
		out[i] = models.AccountWithLastLog{Account: a, LogCount: byAccount[a.ID], LastLog: last}
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("account not found")
	}
	if err != nil {
		return nil, errs.Store("GetInstagramAccount", err)
	}
	return &account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	account.ID = uuid.NewString()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
		account.UpdatedAt = account.CreatedAt
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.Validation("an account with this username already exists")
		}
		return errs.Store("AddInstagramAccount", err)
	}
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(map[string]interface{}{
		"username":         account.Username,
		"profile_id":       account.ProfileID,
		"scrape_frequency": account.ScrapeFrequency,
		"notes":            account.Notes,
		"is_active":        account.IsActive,
		"updated_at":       s.now(),
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return errs.Validation("an account with this username already exists")
		}
		return errs.Store("UpdateInstagramAccount", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("account not found")
	}

	updated, err := s.GetAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	*account = *updated
	return nil
}

func (s *Store) SetAccountActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":  active,
		"updated_at": s.now(),
	})
	if res.Error != nil {
		return errs.Store("UpdateAccountStatus", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("account not found")
	}
	return nil
}

// DeleteAccount removes the account together with its logs, items and lease
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dependent := range []interface{}{&models.ScrapingLog{}, &models.ScrapedItem{}} {
			if err := tx.Where("instagram_account_id = ?", id).Delete(dependent).Error; err != nil {
				return errs.Store("DeleteAccount", err)
			}
		}
		if err := tx.Where("account_id = ?", id).Delete(&models.Lease{}).Error; err != nil {
			return errs.Store("DeleteAccount", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Account{})
		if res.Error != nil {
			return errs.Store("DeleteAccount", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.NotFound("account not found")
		}
		return nil
	})
}

func (s *Store) ListLogs(ctx context.Context, filter models.LogFilter) (*models.LogPage, error) {
	filter = filter.Normalize()

	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.ScrapingLog{})
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.AccountID != "" {
			q = q.Where("instagram_account_id = ?", filter.AccountID)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, errs.Store("GetScrapingLogs", err)
	}

	logs := []models.ScrapingLog{}
	err := filtered().Preload("Account").
		Order("started_at desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&logs).Error
	if err != nil {
		return nil, errs.Store("GetScrapingLogs", err)
	}
	return &models.LogPage{Logs: logs, Total: int(total)}, nil
}

func (s *Store) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := &models.Dashboard{}

	var totalAccounts, totalJobs int64
	if err := db.Model(&models.Account{}).Count(&totalAccounts).Error; err != nil {
		return nil, errs.Store("GetDashboardStats", err)
	}
	if err := db.Model(&models.ScrapingLog{}).Count(&totalJobs).Error; err != nil {
		return nil, errs.Store("GetDashboardStats", err)
	}
	d.TotalAccounts = int(totalAccounts)
	d.TotalJobs = int(totalJobs)

	active, err := s.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	d.ActiveAccounts = make([]models.AccountWithLastLog, len(active))
	for i, a := range active {
		last, err := s.lastLog(ctx, a.ID)
		if err != nil {
			return nil, errs.Store("GetDashboardStats", err)
		}
		d.ActiveAccounts[i] = models.AccountWithLastLog{Account: a, LastLog: last}
	}

	d.RecentLogs = []models.ScrapingLog{}
	err = db.Preload("Account").
		Order("started_at desc").
		Limit(models.RecentLogCount).
		Find(&d.RecentLogs).Error
	if err != nil {
		return nil, errs.Store("GetDashboardStats", err)
	}
	for _, l := range d.RecentLogs {
		if l.ItemsScraped != nil {
			d.ItemsScraped += *l.ItemsScraped
		}
	}
	return d, nil
}
