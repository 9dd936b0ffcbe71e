package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	at := func(s string) time.Time {
		t.Helper()
		v, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return v
	}

	tests := []struct {
		name         string
		interval     string
		scheduledFor string
		now          string
		want         string
	}{
		{"daily", "daily", "2026-03-02T09:00:00Z", "2026-03-02T09:01:00Z", "2026-03-03T09:00:00Z"},
		{"weekly skips missed occurrences", "weekly", "2026-03-02T09:00:00Z", "2026-03-20T00:00:00Z", "2026-03-23T09:00:00Z"},
		{"biweekly", "biweekly", "2026-03-02T09:00:00Z", "2026-03-02T09:00:00Z", "2026-03-16T09:00:00Z"},
		{"monthly clamps to month end", "monthly", "2026-01-31T08:00:00Z", "2026-01-31T08:00:01Z", "2026-02-28T08:00:00Z"},
		{"monthly keeps anchor day", "monthly", "2026-01-31T08:00:00Z", "2026-03-01T00:00:00Z", "2026-03-31T08:00:00Z"},
		{"quarterly", "Quarterly", "2026-11-30T10:00:00Z", "2026-11-30T10:00:00Z", "2027-02-28T10:00:00Z"},
		{"yearly leap day", "yearly", "2028-02-29T00:00:00Z", "2028-02-29T00:00:00Z", "2029-02-28T00:00:00Z"},
		{"early run still advances", "daily", "2026-03-02T09:00:00Z", "2026-03-01T00:00:00Z", "2026-03-03T09:00:00Z"},
		{"cron expression", "0 9 * * 1", "2026-03-02T09:00:00Z", "2026-03-02T09:00:05Z", "2026-03-09T09:00:00Z"},
		{"cron descriptor", "@daily", "2026-03-02T00:00:00Z", "2026-03-02T00:00:01Z", "2026-03-03T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.interval, at(tt.scheduledFor), at(tt.now))
			require.NoError(t, err)
			assert.True(t, at(tt.want).Equal(got), "got %s", got.UTC())
		})
	}
}

func TestNextOccurrenceRejectsUnknownInterval(t *testing.T) {
	_, err := NextOccurrence("every other blue moon", time.Now(), time.Now())
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(ValidateRecurrence("")))
	assert.NoError(t, ValidateRecurrence("monthly"))
	assert.NoError(t, ValidateRecurrence("*/15 * * * *"))
}
