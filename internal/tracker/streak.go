package tracker

import (
	"sort"
	"time"
)

// CurrentStreak counts the consecutive calendar days ending at today or
// yesterday on which the user has at least one daily log. A most-recent log
// older than yesterday means the streak is broken and the count is 0.
// Duplicate dates in the input are collapsed before walking.
func CurrentStreak(dates []time.Time, today time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := dayOf(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	now := dayOf(today)
	yesterday := now.AddDate(0, 0, -1)
	if !days[0].Equal(now) && !days[0].Equal(yesterday) {
		return 0
	}

	streak := 1
	expected := days[0].AddDate(0, 0, -1)
	for _, day := range days[1:] {
		if !day.Equal(expected) {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}

	return streak
}

// dayOf normalizes a timestamp to its calendar day at UTC midnight, so dates
// read from the database and the server clock compare by day regardless of
// their locations.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
