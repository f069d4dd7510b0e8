package harvest

import (
	"time"

	"igharvest/internal/models"
)

// Due reports whether an account with frequency f is due at t. Unknown
// frequencies are always due.
func Due(f models.Frequency, t time.Time) bool {
	switch f {
	case models.FrequencyDaily:
		return true
	case models.FrequencyWeekly:
		return t.Weekday() == time.Monday
	case models.FrequencyMonthly:
		return t.Day() == 1
	default:
		return true
	}
}

// Select returns the accounts due at now, keeping their order. Weekday and
// day of month are read in loc (UTC when nil).
func Select(now time.Time, accounts []models.Account, loc *time.Location) []models.Account {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	due := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		if Due(a.ScrapeFrequency, local) {
			due = append(due, a)
		}
	}
	return due
}
