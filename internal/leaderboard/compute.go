package leaderboard

import (
	"bytes"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/utils"
)

type Weights struct {
	Points float64
	Streak float64
	Days   float64
}

func DefaultWeights() Weights {
	return Weights{Points: 0.40, Streak: 0.30, Days: 0.30}
}

// GoalRef is an eligible goal: active, public, and in the scope's category.
type GoalRef struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

type ActivityRef struct {
	GoalID uuid.UUID
	Date   time.Time
}

// Input is everything needed to rank one scope. Activities must already be
// limited to the scope window.
type Input struct {
	Goals        []GoalRef
	Visible      map[uuid.UUID]bool
	Activities   []ActivityRef
	PointsByGoal map[uuid.UUID]int
	StreakByGoal map[uuid.UUID]int
}

type Standing struct {
	UserID     uuid.UUID
	RawPoints  int
	DaysActive int
	Streak     int
	Score      float64
	Rank       int
}

// Compute derives raw metrics per eligible user, normalizes them against the
// scope maxima, and returns standings ranked 1..n.
func Compute(in Input, w Weights) []*Standing {
	owner := make(map[uuid.UUID]uuid.UUID, len(in.Goals))
	for _, g := range in.Goals {
		if !in.Visible[g.UserID] {
			continue
		}
		owner[g.ID] = g.UserID
	}

	activeDays := make(map[uuid.UUID]map[time.Time]struct{})
	for _, a := range in.Activities {
		uid, ok := owner[a.GoalID]
		if !ok {
			continue
		}
		if activeDays[uid] == nil {
			activeDays[uid] = make(map[time.Time]struct{})
		}
		activeDays[uid][utils.DateOnly(a.Date)] = struct{}{}
	}

	byUser := make(map[uuid.UUID]*Standing, len(activeDays))
	for uid, ds := range activeDays {
		byUser[uid] = &Standing{UserID: uid, DaysActive: len(ds)}
	}
	for goalID, uid := range owner {
		s, ok := byUser[uid]
		if !ok {
			continue
		}
		s.RawPoints += in.PointsByGoal[goalID]
		if st := in.StreakByGoal[goalID]; st > s.Streak {
			s.Streak = st
		}
	}

	standings := make([]*Standing, 0, len(byUser))
	maxPoints, maxStreak, maxDays := 1, 1, 1
	for _, s := range byUser {
		standings = append(standings, s)
		maxPoints = maxInt(maxPoints, s.RawPoints)
		maxStreak = maxInt(maxStreak, s.Streak)
		maxDays = maxInt(maxDays, s.DaysActive)
	}
	for _, s := range standings {
		s.Score = CompositeScore(w,
			float64(s.RawPoints)/float64(maxPoints),
			float64(s.Streak)/float64(maxStreak),
			float64(s.DaysActive)/float64(maxDays))
	}

	Rank(standings)
	return standings
}

func CompositeScore(w Weights, points, streak, days float64) float64 {
	return 100 * (w.Points*points + w.Streak*streak + w.Days*days)
}

// Rank orders by score, then raw points, then user id, and assigns 1..n.
func Rank(standings []*Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RawPoints != b.RawPoints {
			return a.RawPoints > b.RawPoints
		}
		return bytes.Compare(a.UserID[:], b.UserID[:]) < 0
	})
	for i, s := range standings {
		s.Rank = i + 1
	}
}

func RoundScore(score float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(score*p) / p
}

// SnapshotRows turns standings into a persistable generation. previous maps
// user ids to their rank in the generation being replaced.
func SnapshotRows(key ScopeKey, standings []*Standing, previous map[uuid.UUID]int, snapshotDate time.Time, generation int64) []*SnapshotRow {
	rows := make([]*SnapshotRow, 0, len(standings))
	for _, s := range standings {
		movement := 0
		if prev, ok := previous[s.UserID]; ok {
			movement = prev - s.Rank
		}
		rows = append(rows, &SnapshotRow{
			ID:           uuid.New(),
			UserID:       s.UserID,
			Category:     key.Category,
			PeriodType:   key.Period,
			PeriodStart:  key.Start,
			PeriodEnd:    key.End,
			Rank:         s.Rank,
			Score:        RoundScore(s.Score, 2),
			RawPoints:    s.RawPoints,
			DaysActive:   s.DaysActive,
			Streak:       s.Streak,
			RankMovement: movement,
			SnapshotDate: utils.DateOnly(snapshotDate),
			Generation:   generation,
		})
	}
	return rows
}

// PreviousRanks indexes a generation by user, keeping each user's best rank.
func PreviousRanks(rows []*SnapshotRow) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		if r.Rank <= 0 {
			continue
		}
		if cur, ok := out[r.UserID]; !ok || r.Rank < cur {
			out[r.UserID] = r.Rank
		}
	}
	return out
}

// CleanRows drops malformed rows, keeps one row per user (the best rank) and
// returns them in rank order along with the number of rows dropped.
func CleanRows(rows []*SnapshotRow) ([]*SnapshotRow, int) {
	skipped := 0
	best := make(map[uuid.UUID]*SnapshotRow, len(rows))
	for _, r := range rows {
		if r == nil || r.UserID == uuid.Nil || r.Rank <= 0 {
			skipped++
			continue
		}
		if cur, ok := best[r.UserID]; !ok || r.Rank < cur.Rank {
			best[r.UserID] = r
		}
	}
	out := make([]*SnapshotRow, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, skipped
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
