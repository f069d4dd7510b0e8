package models

// LogFilter narrows a log listing. Zero values mean "no filter".
type LogFilter struct {
	Status    LogStatus
	AccountID string
	Limit     int
	Offset    int
}

// Default page sizes for log listings
const (
	DefaultLogLimit = 20
	MaxLogLimit     = 100
)

// Normalize clamps Limit and Offset into range
func (f LogFilter) Normalize() LogFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLogLimit
	}
	if f.Limit > MaxLogLimit {
		f.Limit = MaxLogLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// LogPage is one page of logs plus the total matching count
type LogPage struct {
	Logs  []ScrapingLog `json:"logs"`
	Total int           `json:"total"`
}

// AccountWithLastLog pairs an account with its most recent log and, in
// account listings, the number of logs it has
type AccountWithLastLog struct {
	Account
	LogCount int          `json:"log_count"`
	LastLog  *ScrapingLog `json:"last_log"`
}

// Dashboard is the overview returned to the admin panel
type Dashboard struct {
	TotalAccounts  int                  `json:"total_accounts"`
	TotalJobs      int                  `json:"total_jobs"`
	ActiveAccounts []AccountWithLastLog `json:"active_accounts"`
	RecentLogs     []ScrapingLog        `json:"recent_logs"`
	// ItemsScraped sums items_scraped over RecentLogs
	ItemsScraped int `json:"items_scraped"`
}

// RecentLogCount is the number of logs shown on the dashboard
const RecentLogCount = 5
