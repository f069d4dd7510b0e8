// Package store defines the persistence contract shared by the harvester and
// the admin API. Implementations live in the hasura and sqlstore
// subpackages.
package store

import (
	"context"
	"time"

	"igharvest/internal/models"
)

// LogUpdate is the single terminal write applied to a scraping log
type LogUpdate struct {
	Status       models.LogStatus
	FinishedAt   time.Time
	ItemsScraped int
	// ErrorMessage is nil on success
	ErrorMessage *string
}

// HarvestStore is what one harvest invocation needs
type HarvestStore interface {
	// ListActiveAccounts returns every account with is_active = true
	ListActiveAccounts(ctx context.Context) ([]models.Account, error)
	// CreateLog inserts a log row and returns its id
	CreateLog(ctx context.Context, accountID string, status models.LogStatus) (string, error)
	// FinishLog applies the terminal update to a log
	FinishLog(ctx context.Context, logID string, update LogUpdate) error
	// UpsertItems inserts items in one batch, overwriting models.UpsertColumns
	// on (instagram_account_id, post_id) conflicts. It returns affected rows.
	UpsertItems(ctx context.Context, items []models.ScrapedItem) (int, error)

	// AcquireLease takes the lease on accountID for holder when it is free
	// or expired. It reports false when another holder owns a live lease.
	AcquireLease(ctx context.Context, accountID, holder string, ttl time.Duration) (bool, error)
	// ReleaseLease drops the lease if holder still owns it
	ReleaseLease(ctx context.Context, accountID, holder string) error
}

// AdminStore backs the admin API
type AdminStore interface {
	ListAccounts(ctx context.Context) ([]models.AccountWithLastLog, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, account *models.Account) error
	SetAccountActive(ctx context.Context, id string, active bool) error
	DeleteAccount(ctx context.Context, id string) error
	ListLogs(ctx context.Context, filter models.LogFilter) (*models.LogPage, error)
	Dashboard(ctx context.Context) (*models.Dashboard, error)
}

// Store is the full contract
type Store interface {
	HarvestStore
	AdminStore
	Close() error
}
