package points

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func TestDifficultyMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, DifficultyMultiplier(1))
	assert.Equal(t, 1.0, DifficultyMultiplier(2))
	assert.Equal(t, 1.5, DifficultyMultiplier(3))
	assert.Equal(t, 1.5, DifficultyMultiplier(4))
	assert.Equal(t, 2.0, DifficultyMultiplier(5))
}

func TestScoreComponents(t *testing.T) {
	r := DefaultRules()

	b := r.Score(Input{Difficulty: 3, Minutes: 65, CurrentStreak: 4, Date: monday})
	assert.Equal(t, 15, b.DifficultyPoints)
	assert.Equal(t, 4, b.TimeBonus)
	assert.Equal(t, 8, b.StreakBonus)
	assert.Equal(t, 27, b.Raw)
	assert.Equal(t, 27, b.Points)
}

func TestStreakBonusIsBounded(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, 0, r.StreakBonus(-3))
	assert.Equal(t, 42, r.StreakBonus(21))
	assert.Equal(t, 42, r.StreakBonus(400))
}

func TestTimeBonusBelowFreeMinutes(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, 0, r.TimeBonus(10))
	assert.Equal(t, 0, r.TimeBonus(29))
	assert.Equal(t, 1, r.TimeBonus(30))
	assert.Equal(t, 58, r.TimeBonus(600))
}

func TestScoreRespectsDailyCap(t *testing.T) {
	r := DefaultRules()

	b := r.Score(Input{Difficulty: 5, Minutes: 300, CurrentStreak: 21, Date: monday, AwardedToday: 80})
	assert.Greater(t, b.Uncapped, 20)
	assert.Equal(t, 20, b.Points)

	b = r.Score(Input{Difficulty: 5, Minutes: 300, CurrentStreak: 21, Date: monday, AwardedToday: 100})
	assert.Equal(t, 0, b.Points)

	b = r.Score(Input{Difficulty: 5, Minutes: 300, CurrentStreak: 21, Date: monday, AwardedToday: 130})
	assert.Equal(t, 0, b.Points)
}

func TestRepeatedDurationEarnsLessOnDayFour(t *testing.T) {
	r := DefaultRules()
	day4 := monday.AddDate(0, 0, 3)

	repeated := map[time.Time]int{
		monday:                  60,
		monday.AddDate(0, 0, 1): 55,
		monday.AddDate(0, 0, 2): 65,
		day4:                    60,
	}
	varied := map[time.Time]int{
		monday:                  20,
		monday.AddDate(0, 0, 1): 120,
		monday.AddDate(0, 0, 2): 90,
		day4:                    60,
	}

	same := r.Score(Input{Difficulty: 3, Minutes: 60, CurrentStreak: 4, Date: day4, GoalMinutes: repeated})
	diff := r.Score(Input{Difficulty: 3, Minutes: 60, CurrentStreak: 4, Date: day4, GoalMinutes: varied})

	assert.Equal(t, 4, same.SimilarRun)
	assert.Equal(t, 0.8, same.Multiplier)
	assert.Equal(t, 1, diff.SimilarRun)
	assert.Less(t, same.Points, diff.Points)
}

func TestSimilarRunStopsAtGap(t *testing.T) {
	r := DefaultRules()
	history := map[time.Time]int{
		monday:                  60,
		monday.AddDate(0, 0, 2): 60,
		monday.AddDate(0, 0, 3): 60,
	}
	assert.Equal(t, 2, r.SimilarRunLength(history, monday.AddDate(0, 0, 3), 60))
}

func TestWeeklyBonusDue(t *testing.T) {
	r := DefaultRules()
	var dates []time.Time
	for i := 0; i < 4; i++ {
		dates = append(dates, monday.AddDate(0, 0, i))
	}
	// the previous Sunday belongs to another week
	dates = append(dates, monday.AddDate(0, 0, -1))

	due, start := r.WeeklyBonusDue(dates, monday.AddDate(0, 0, 3))
	assert.False(t, due)
	assert.Equal(t, monday, start)

	dates = append(dates, monday.AddDate(0, 0, 6))
	due, _ = r.WeeklyBonusDue(dates, monday.AddDate(0, 0, 6))
	assert.True(t, due)
}

func TestAwardTotal(t *testing.T) {
	assert.Equal(t, 75, Award{EntryPoints: 25, WeeklyBonus: 50}.Total())
}
