package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const maxRecurrenceSteps = 100000

// calendarStep advances by whole months plus days. Month arithmetic clamps to
// the last day of the target month.
type calendarStep struct {
	months int
	days   int
}

var namedIntervals = map[string]calendarStep{
	"daily":     {days: 1},
	"weekly":    {days: 7},
	"biweekly":  {days: 14},
	"monthly":   {months: 1},
	"quarterly": {months: 3},
	"yearly":    {months: 12},
	"annually":  {months: 12},
}

// ValidateRecurrence reports whether interval is a named interval or a cron spec.
func ValidateRecurrence(interval string) error {
	_, _, err := parseRecurrence(interval)
	return err
}

func parseRecurrence(interval string) (*calendarStep, cron.Schedule, error) {
	key := strings.ToLower(strings.TrimSpace(interval))
	if key == "" {
		return nil, nil, ValidationError("recurrenceInterval is required for recurring actions")
	}
	if step, ok := namedIntervals[key]; ok {
		return &step, nil, nil
	}
	schedule, err := cron.ParseStandard(strings.TrimSpace(interval))
	if err != nil {
		return nil, nil, ValidationError(fmt.Sprintf("invalid recurrenceInterval %q: %v", interval, err))
	}
	return nil, schedule, nil
}

// NextOccurrence returns the first occurrence of interval, anchored at
// scheduledFor, that is strictly after both scheduledFor and now. Occurrences
// missed while the action was waiting are skipped rather than replayed.
func NextOccurrence(interval string, scheduledFor, now time.Time) (time.Time, error) {
	step, schedule, err := parseRecurrence(interval)
	if err != nil {
		return time.Time{}, err
	}
	floor := scheduledFor
	if now.After(floor) {
		floor = now
	}

	if schedule != nil {
		next := schedule.Next(floor)
		if next.IsZero() {
			return time.Time{}, ValidationError(fmt.Sprintf("recurrenceInterval %q has no future occurrence", interval))
		}
		return next, nil
	}

	for k := 1; k <= maxRecurrenceSteps; k++ {
		next := addMonthsClamped(scheduledFor, k*step.months).AddDate(0, 0, k*step.days)
		if next.After(floor) {
			return next, nil
		}
	}
	return time.Time{}, ValidationError(fmt.Sprintf("recurrenceInterval %q did not advance past %s", interval, floor.Format(time.RFC3339)))
}

func addMonthsClamped(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
