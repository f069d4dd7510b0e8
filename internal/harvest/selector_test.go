package harvest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"igharvest/internal/models"
)

func TestDue(t *testing.T) {
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	tuesday := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	firstOfMonth := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		name string
		freq models.Frequency
		at   time.Time
		want bool
	}{
		{"daily on tuesday", models.FrequencyDaily, tuesday, true},
		{"weekly on monday", models.FrequencyWeekly, monday, true},
		{"weekly on tuesday", models.FrequencyWeekly, tuesday, false},
		{"monthly on the first", models.FrequencyMonthly, firstOfMonth, true},
		{"monthly mid month", models.FrequencyMonthly, tuesday, false},
		{"unknown frequency", models.Frequency("hourly"), tuesday, true},
		{"empty frequency", models.Frequency(""), tuesday, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Due(tt.freq, tt.at))
		})
	}
}

func TestDueWeeklyOnlyOnMonday(t *testing.T) {
	// 2024-03-04 is a Monday
	for i := 0; i < 7; i++ {
		at := time.Date(2024, 3, 4+i, 12, 0, 0, 0, time.UTC)
		t.Run(at.Weekday().String(), func(t *testing.T) {
			assert.Equal(t, at.Weekday() == time.Monday, Due(models.FrequencyWeekly, at))
			assert.True(t, Due(models.FrequencyDaily, at))
		})
	}
}

func TestDueMonthlyOnlyOnFirst(t *testing.T) {
	for _, day := range []int{1, 2, 15, 31} {
		at := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, day == 1, Due(models.FrequencyMonthly, at), "day %d", day)
	}
}

func TestSelectKeepsOrder(t *testing.T) {
	monday := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	accounts := []models.Account{
		account("1", "c", models.FrequencyWeekly),
		account("2", "a", models.FrequencyMonthly),
		account("3", "b", models.FrequencyDaily),
		account("4", "d", "yearly"),
	}

	got := Select(monday, accounts, nil)

	var names []string
	for _, a := range got {
		names = append(names, a.Username)
	}
	assert.Equal(t, []string{"c", "b", "d"}, names)
}

func TestSelectOnlyWeeklyOnTuesday(t *testing.T) {
	tuesday := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	accounts := []models.Account{
		account("1", "a", models.FrequencyWeekly),
		account("2", "b", models.FrequencyWeekly),
	}
	assert.Empty(t, Select(tuesday, accounts, time.UTC))
}

func TestSelectUsesLocation(t *testing.T) {
	// Sunday 23:30 UTC is already Monday in UTC+2
	sundayNight := time.Date(2024, 3, 3, 23, 30, 0, 0, time.UTC)
	accounts := []models.Account{account("1", "a", models.FrequencyWeekly)}

	assert.Empty(t, Select(sundayNight, accounts, time.UTC))
	assert.Len(t, Select(sundayNight, accounts, time.FixedZone("UTC+2", 2*60*60)), 1)
}
