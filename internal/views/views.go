// Package views derives agenda and dashboard projections from task and test lists.
// Every function is pure; callers pass the lists they already hold.
package views

import (
	"sort"
	"time"

	"studyplan/internal/domain"
)

// GroupByCalendarDay buckets tasks by the local calendar day of ScheduledAt.
// Tasks keep their input order inside each bucket.
func GroupByCalendarDay(tasks []domain.Task, loc *time.Location) map[string][]domain.Task {
	if loc == nil {
		loc = time.Local
	}
	groups := make(map[string][]domain.Task)
	for _, t := range tasks {
		key := t.ScheduledAt.In(loc).Format(domain.DateLayout)
		groups[key] = append(groups[key], t)
	}
	return groups
}

// SortedDays returns the keys of a day grouping in ascending order.
func SortedDays(groups map[string][]domain.Task) []string {
	days := make([]string, 0, len(groups))
	for day := range groups {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

func PartitionByCompletion(tasks []domain.Task) (incomplete, completed []domain.Task) {
	incomplete = []domain.Task{}
	completed = []domain.Task{}
	for _, t := range tasks {
		if t.Completed {
			completed = append(completed, t)
		} else {
			incomplete = append(incomplete, t)
		}
	}
	return incomplete, completed
}

// PartitionByTestEnd splits tests into those still running or ahead of today
// and those whose end date has passed.
func PartitionByTestEnd(tests []domain.Test, now time.Time) (upcoming, ended []domain.Test) {
	today := now.Format(domain.DateLayout)
	upcoming = []domain.Test{}
	ended = []domain.Test{}
	for _, t := range tests {
		if t.EndDate >= today {
			upcoming = append(upcoming, t)
		} else {
			ended = append(ended, t)
		}
	}
	return upcoming, ended
}

// FindUpcoming returns the earliest-starting test that has not ended yet.
func FindUpcoming(tests []domain.Test, now time.Time) (domain.Test, bool) {
	today := now.Format(domain.DateLayout)
	sorted := make([]domain.Test, len(tests))
	copy(sorted, tests)
	SortTests(sorted)
	for _, t := range sorted {
		if t.EndDate >= today {
			return t, true
		}
	}
	return domain.Test{}, false
}

// DaysUntil counts whole calendar days from now to the test start; zero once started.
func DaysUntil(t domain.Test, now time.Time) int {
	// UTC midnights, so a 23 or 25 hour local day still counts as one.
	start, err := time.Parse(domain.DateLayout, t.StartDate)
	if err != nil {
		return 0
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(start.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func TotalMinutes(tasks []domain.Task) int {
	total := 0
	for _, t := range tasks {
		total += t.DurationMinutes
	}
	return total
}

// SortTasks orders tasks by scheduled time, then id.
func SortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].ScheduledAt.Equal(tasks[j].ScheduledAt) {
			return tasks[i].ScheduledAt.Before(tasks[j].ScheduledAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// SortTests orders tests by start date, then id.
func SortTests(tests []domain.Test) {
	sort.SliceStable(tests, func(i, j int) bool {
		if tests[i].StartDate != tests[j].StartDate {
			return tests[i].StartDate < tests[j].StartDate
		}
		return tests[i].ID < tests[j].ID
	})
}
