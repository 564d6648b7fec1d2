package streak

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/utils"
)

type Streak struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	UserID           uuid.UUID  `json:"user_id" db:"user_id"`
	GoalID           uuid.UUID  `json:"goal_id" db:"goal_id"`
	CurrentStreak    int        `json:"current_streak" db:"current_streak"`
	LongestStreak    int        `json:"longest_streak" db:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date" db:"last_activity_date"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

type Result struct {
	Current          int
	Longest          int
	LastActivityDate *time.Time
}

// Calculate derives a goal's streak from its whole history.
//
// A day qualifies when its minutes reach threshold. The current streak is
// only alive when the most recent logged day is today or yesterday and that
// day qualifies; it then extends backward over consecutive qualifying days.
func Calculate(threshold int, minutesByDate map[time.Time]int, today time.Time) Result {
	days := make(map[time.Time]int, len(minutesByDate))
	for d, m := range minutesByDate {
		days[utils.DateOnly(d)] += m
	}
	if len(days) == 0 {
		return Result{}
	}

	qualifies := func(d time.Time) bool {
		m, ok := days[d]
		return ok && m >= threshold
	}

	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	longest, run := 0, 0
	var prev time.Time
	for _, d := range dates {
		if !qualifies(d) {
			run = 0
			continue
		}
		if run > 0 && utils.DaysBetween(prev, d) == 1 {
			run++
		} else {
			run = 1
		}
		prev = d
		if run > longest {
			longest = run
		}
	}

	latest := dates[len(dates)-1]
	current := 0
	gap := utils.DaysBetween(latest, utils.DateOnly(today))
	if (gap == 0 || gap == 1) && qualifies(latest) {
		for d := latest; qualifies(d); d = d.AddDate(0, 0, -1) {
			current++
		}
	}

	return Result{Current: current, Longest: longest, LastActivityDate: &latest}
}

// Merge folds a fresh result into the stored record. Longest never decreases.
func Merge(stored *Streak, fresh Result) Result {
	if stored != nil && stored.LongestStreak > fresh.Longest {
		fresh.Longest = stored.LongestStreak
	}
	return fresh
}

// AtRisk reports whether a live streak has no activity logged for today yet.
func AtRisk(s *Streak, today time.Time) bool {
	if s == nil || s.CurrentStreak == 0 || s.LastActivityDate == nil {
		return false
	}
	return utils.DaysBetween(*s.LastActivityDate, today) >= 1
}
