package leaderboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/utils"
)

type Period string

const (
	PeriodWeekly  Period = "WEEKLY"
	PeriodMonthly Period = "MONTHLY"
	PeriodAllTime Period = "ALL_TIME"
)

var Periods = []Period{PeriodWeekly, PeriodMonthly, PeriodAllTime}

// AllTimeStart is the fixed lower bound of the ALL_TIME window.
var AllTimeStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToUpper(strings.TrimSpace(s))) {
	case "", PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodAllTime:
		return PeriodAllTime, nil
	}
	return "", fmt.Errorf("unknown leaderboard period %q", s)
}

// Bounds returns the rolling window [start, end] for period ending today.
func Bounds(p Period, today time.Time) (time.Time, time.Time) {
	end := utils.DateOnly(today)
	switch p {
	case PeriodMonthly:
		return end.AddDate(0, 0, -30), end
	case PeriodAllTime:
		return AllTimeStart, end
	default:
		return end.AddDate(0, 0, -7), end
	}
}

// ScopeKey identifies one snapshot generation.
type ScopeKey struct {
	Period   Period
	Category *string
	Start    time.Time
	End      time.Time
}

func NewScopeKey(p Period, category *string, today time.Time) ScopeKey {
	start, end := Bounds(p, today)
	return ScopeKey{Period: p, Category: category, Start: start, End: end}
}

func (k ScopeKey) CategoryLabel() string {
	if k.Category == nil {
		return "overall"
	}
	return strings.ToLower(*k.Category)
}

// LockKey is hashed into a transaction-scoped advisory lock.
func (k ScopeKey) LockKey() string {
	return fmt.Sprintf("leaderboard:%s:%s:%s:%s", k.Period, k.CategoryLabel(), utils.FormatDate(k.Start), utils.FormatDate(k.End))
}

// CacheKey ignores the window dates. Cached payloads carry their window and
// are checked against the key on read.
func (k ScopeKey) CacheKey() string {
	return fmt.Sprintf("leaderboard:%s:%s", k.Period, k.CategoryLabel())
}

type SnapshotRow struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Category     *string   `json:"category" db:"category"`
	PeriodType   Period    `json:"period_type" db:"period_type"`
	PeriodStart  time.Time `json:"period_start" db:"period_start"`
	PeriodEnd    time.Time `json:"period_end" db:"period_end"`
	Rank         int       `json:"rank" db:"rank"`
	Score        float64   `json:"score" db:"score"`
	RawPoints    int       `json:"raw_points" db:"raw_points"`
	DaysActive   int       `json:"days_active" db:"days_active"`
	Streak       int       `json:"streak" db:"streak"`
	RankMovement int       `json:"rank_movement" db:"rank_movement"`
	SnapshotDate time.Time `json:"snapshot_date" db:"snapshot_date"`
	Generation   int64     `json:"generation" db:"generation"`
}

type LeaderboardEntry struct {
	Rank         int       `json:"rank"`
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	ImageURL     *string   `json:"image_url,omitempty"`
	Score        float64   `json:"score"`
	RawPoints    int       `json:"raw_points"`
	DaysActive   int       `json:"days_active"`
	Streak       int       `json:"streak"`
	RankMovement int       `json:"rank_movement"`
}

type Leaderboard struct {
	Rankings     []*LeaderboardEntry `json:"rankings"`
	Period       Period              `json:"period"`
	Category     *string             `json:"category"`
	StartDate    string              `json:"start_date"`
	EndDate      string              `json:"end_date"`
	FromSnapshot bool                `json:"from_snapshot"`
	SkippedRows  int                 `json:"skipped_rows"`
}

type RankContext struct {
	AboveMe           *LeaderboardEntry `json:"above_me,omitempty"`
	MyRank            *LeaderboardEntry `json:"my_rank,omitempty"`
	BelowMe           *LeaderboardEntry `json:"below_me,omitempty"`
	TotalParticipants int               `json:"total_participants"`
	NotRanked         bool              `json:"not_ranked"`
	Reason            *string           `json:"reason,omitempty"`
	FromSnapshot      bool              `json:"from_snapshot"`
}

const NotRankedReason = "Log activity on public goals and enable leaderboard sharing to appear here."

// BuildRankContext locates userID in a ranked list and returns its neighbours.
func BuildRankContext(entries []*LeaderboardEntry, userID uuid.UUID) *RankContext {
	rc := &RankContext{TotalParticipants: len(entries)}
	for i, e := range entries {
		if e.UserID != userID {
			continue
		}
		rc.MyRank = e
		if i > 0 {
			rc.AboveMe = entries[i-1]
		}
		if i+1 < len(entries) {
			rc.BelowMe = entries[i+1]
		}
		return rc
	}
	reason := NotRankedReason
	rc.NotRanked = true
	rc.Reason = &reason
	return rc
}

// Catalog holds the known leaderboard categories.
type Catalog struct {
	names []string
}

func NewCatalog(names []string) *Catalog {
	return &Catalog{names: append([]string(nil), names...)}
}

func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Canonical maps an incoming category onto its configured spelling.
func (c *Catalog) Canonical(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, n := range c.names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}
