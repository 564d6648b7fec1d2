package points

import (
	"math"
	"time"

	"focusforgeAPI/utils"
)

type Rules struct {
	BasePoints          int
	DailyCap            int
	TimeBonusFreeMins   int
	TimeBonusStepMins   int
	StreakBonusPerDay   int
	StreakBonusMaxDays  int
	SimilarToleranceMin int
	DiminishingRunLen   int
	DiminishingFactor   float64
	WeeklyBonusPoints   int
	WeeklyBonusDays     int
}

func DefaultRules() Rules {
	return Rules{
		BasePoints:          10,
		DailyCap:            100,
		TimeBonusFreeMins:   20,
		TimeBonusStepMins:   10,
		StreakBonusPerDay:   2,
		StreakBonusMaxDays:  21,
		SimilarToleranceMin: 10,
		DiminishingRunLen:   4,
		DiminishingFactor:   0.8,
		WeeklyBonusPoints:   50,
		WeeklyBonusDays:     5,
	}
}

// DifficultyMultiplier maps a 1..5 goal difficulty onto its point multiplier.
func DifficultyMultiplier(difficulty int) float64 {
	switch {
	case difficulty <= 2:
		return 1.0
	case difficulty <= 4:
		return 1.5
	default:
		return 2.0
	}
}

type Input struct {
	Difficulty    int
	Minutes       int
	CurrentStreak int
	Date          time.Time
	// GoalMinutes is the goal's minutes by date, used to detect repeated durations.
	GoalMinutes map[time.Time]int
	// AwardedToday is what the user already earned from activity-completion on Date.
	AwardedToday int
}

type Breakdown struct {
	DifficultyPoints int     `json:"difficulty_points"`
	TimeBonus        int     `json:"time_bonus"`
	StreakBonus      int     `json:"streak_bonus"`
	Raw              int     `json:"raw"`
	Multiplier       float64 `json:"multiplier"`
	SimilarRun       int     `json:"similar_run"`
	Uncapped         int     `json:"uncapped"`
	Points           int     `json:"points"`
}

func (r Rules) Score(in Input) Breakdown {
	b := Breakdown{
		DifficultyPoints: int(math.Round(float64(r.BasePoints) * DifficultyMultiplier(in.Difficulty))),
		TimeBonus:        r.TimeBonus(in.Minutes),
		StreakBonus:      r.StreakBonus(in.CurrentStreak),
		Multiplier:       1.0,
	}
	b.Raw = b.DifficultyPoints + b.TimeBonus + b.StreakBonus

	b.SimilarRun = r.SimilarRunLength(in.GoalMinutes, in.Date, in.Minutes)
	if b.SimilarRun >= r.DiminishingRunLen {
		b.Multiplier = r.DiminishingFactor
	}
	b.Uncapped = int(math.Floor(float64(b.Raw) * b.Multiplier))

	remaining := r.DailyCap - in.AwardedToday
	if remaining < 0 {
		remaining = 0
	}
	b.Points = b.Uncapped
	if b.Points > remaining {
		b.Points = remaining
	}
	if b.Points < 0 {
		b.Points = 0
	}
	return b
}

func (r Rules) TimeBonus(minutes int) int {
	extra := minutes - r.TimeBonusFreeMins
	if extra <= 0 || r.TimeBonusStepMins <= 0 {
		return 0
	}
	return extra / r.TimeBonusStepMins
}

func (r Rules) StreakBonus(streak int) int {
	if streak < 0 {
		streak = 0
	}
	if streak > r.StreakBonusMaxDays {
		streak = r.StreakBonusMaxDays
	}
	return streak * r.StreakBonusPerDay
}

// SimilarRunLength counts consecutive days ending on date whose minutes sit
// within the tolerance of minutes. The day being scored always counts.
func (r Rules) SimilarRunLength(goalMinutes map[time.Time]int, date time.Time, minutes int) int {
	byDay := make(map[time.Time]int, len(goalMinutes))
	for d, m := range goalMinutes {
		byDay[utils.DateOnly(d)] = m
	}
	run := 1
	for d := utils.AddDays(date, -1); ; d = d.AddDate(0, 0, -1) {
		m, ok := byDay[d]
		if !ok || abs(m-minutes) > r.SimilarToleranceMin {
			break
		}
		run++
	}
	return run
}

// WeeklyBonusDue reports whether activeDates holds enough distinct days inside
// the Monday-aligned week of date, returning that week's start.
func (r Rules) WeeklyBonusDue(activeDates []time.Time, date time.Time) (bool, time.Time) {
	weekStart := utils.WeekStart(date)
	weekEnd := weekStart.AddDate(0, 0, 6)
	seen := make(map[time.Time]struct{})
	for _, d := range activeDates {
		d = utils.DateOnly(d)
		if d.Before(weekStart) || d.After(weekEnd) {
			continue
		}
		seen[d] = struct{}{}
	}
	return len(seen) >= r.WeeklyBonusDays, weekStart
}

// Award is the outcome of scoring one submission.
type Award struct {
	Breakdown   Breakdown `json:"breakdown"`
	EntryPoints int       `json:"entry_points"`
	WeeklyBonus int       `json:"weekly_bonus"`
}

func (a Award) Total() int {
	return a.EntryPoints + a.WeeklyBonus
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
