// Package models holds the records shared by the harvester, the stores and
// the admin API.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Frequency is how often an account is due for scraping
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// LogStatus is the state of a scraping log record
type LogStatus string

const (
	StatusQueued     LogStatus = "queued"
	StatusInProgress LogStatus = "in_progress"
	StatusSuccess    LogStatus = "success"
	StatusFailed     LogStatus = "failed"
)

// Valid reports whether s is a known log status
func (s LogStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]{1,30}$`)

// IsValidUsername checks the Instagram handle rules
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// SanitizeUsername strips whitespace, a leading @ and trailing slashes
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	username = strings.TrimRight(username, "/")
	return strings.TrimSpace(username)
}

// Account is a tracked Instagram profile
type Account struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	Username        string    `json:"username" gorm:"uniqueIndex;size:30;not null"`
	ProfileID       string    `json:"profile_id,omitempty"`
	ScrapeFrequency Frequency `json:"scrape_frequency" gorm:"size:16;not null;default:daily"`
	IsActive        bool      `json:"is_active" gorm:"index;not null"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName pins the table name shared with the GraphQL engine
func (Account) TableName() string { return "instagram_accounts" }

// ScrapingLog tracks one scrape of one account
type ScrapingLog struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	InstagramAccountID string     `json:"instagram_account_id" gorm:"index;size:36;not null"`
	Status             LogStatus  `json:"status" gorm:"index;size:16;not null"`
	StartedAt          time.Time  `json:"started_at" gorm:"index;not null"`
	FinishedAt         *time.Time `json:"finished_at"`
	ItemsScraped       *int       `json:"items_scraped"`
	ErrorMessage       *string    `json:"error_message"`

	Account *Account `json:"instagram_account,omitempty" gorm:"foreignKey:InstagramAccountID;constraint:OnDelete:CASCADE"`
}

func (ScrapingLog) TableName() string { return "scraping_logs" }

// ScrapedItem is one stored post, unique per (account, post id)
type ScrapedItem struct {
	InstagramAccountID string     `json:"instagram_account_id" gorm:"primaryKey;size:36"`
	PostID             string     `json:"post_id" gorm:"primaryKey;size:64"`
	Caption            string     `json:"caption"`
	ImageURL           string     `json:"image_url"`
	LikesCount         int        `json:"likes_count"`
	CommentsCount      int        `json:"comments_count"`
	PostedAt           *time.Time `json:"posted_at"`
	ScrapedAt          time.Time  `json:"scraped_at"`
	Metadata           JSONMap    `json:"metadata"`
}

func (ScrapedItem) TableName() string { return "scraped_data" }

// UpsertColumns are the only columns a repeated insert may overwrite
var UpsertColumns = []string{"caption", "image_url", "likes_count", "comments_count", "metadata", "scraped_at"}

// Lease marks an account as being processed by one invocation
type Lease struct {
	AccountID  string    `json:"account_id" gorm:"primaryKey;size:36"`
	Holder     string    `json:"holder" gorm:"size:36;not null"`
	AcquiredAt time.Time `json:"acquired_at" gorm:"not null"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"index;not null"`
}

func (Lease) TableName() string { return "scrape_leases" }

// JSONMap is a schema-less JSON document column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source %T", src)
	}
	return json.Unmarshal(data, m)
}

// GormDataType declares the column type for migrations
func (JSONMap) GormDataType() string { return "json" }

// GormDBDataType uses jsonb on postgres so the column matches the GraphQL
// engine schema
func (JSONMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "json"
}
