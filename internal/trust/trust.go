package trust

import (
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/utils"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type FlagType string

const (
	FlagInvalidActivity FlagType = "INVALID_ACTIVITY"
	FlagRepeatedPattern FlagType = "REPEATED_PATTERN"
)

type Band string

const (
	BandHigh   Band = "HIGH"
	BandMedium Band = "MEDIUM"
	BandLow    Band = "LOW"
)

type Flag struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	UserID    uuid.UUID      `json:"user_id" db:"user_id"`
	Type      FlagType       `json:"type" db:"type"`
	Details   map[string]any `json:"details" db:"details"`
	Severity  Severity       `json:"severity" db:"severity"`
	Reviewed  bool           `json:"reviewed" db:"reviewed"`
	FlaggedAt time.Time      `json:"flagged_at" db:"flagged_at"`
}

type Summary struct {
	Score             int            `json:"score"`
	Band              Band           `json:"band"`
	SignalsLast30Days int            `json:"signals_last_30_days"`
	SignalBreakdown   map[string]int `json:"signal_breakdown"`
}

const (
	startingScore = 100
	lookback      = 30 * 24 * time.Hour
	burstWindow   = 7 * 24 * time.Hour
	burstFree     = 2
	burstPenalty  = 4
)

type Limits struct {
	MaxMinutesPerEntry int
	MaxMinutesPerDay   int
}

func DefaultLimits() Limits {
	return Limits{MaxMinutesPerEntry: 480, MaxMinutesPerDay: 720}
}

// Validate rejects a submission that would breach a hard ceiling.
func (l Limits) Validate(minutes, alreadyToday int) error {
	if minutes > l.MaxMinutesPerEntry {
		return apperr.AntiCheat("a single entry cannot exceed %d minutes", l.MaxMinutesPerEntry)
	}
	if alreadyToday+minutes > l.MaxMinutesPerDay {
		return apperr.AntiCheat("daily total cannot exceed %d minutes (already logged %d)", l.MaxMinutesPerDay, alreadyToday)
	}
	return nil
}

// NearCeiling marks accepted entries that come within 90% of either ceiling.
func (l Limits) NearCeiling(minutes, alreadyToday int) bool {
	return minutes*10 >= l.MaxMinutesPerEntry*9 || (alreadyToday+minutes)*10 >= l.MaxMinutesPerDay*9
}

type RecentEntry struct {
	Minutes int
	Date    time.Time
}

// DetectDuplicatePattern looks at a goal's most recent entries, newest first.
// It fires when at least three of them repeat minutes exactly and the three
// newest all fall within three days of date.
func DetectDuplicatePattern(recent []RecentEntry, minutes int, date time.Time) bool {
	if len(recent) < 3 {
		return false
	}
	if len(recent) > 5 {
		recent = recent[:5]
	}
	same := 0
	for _, e := range recent {
		if e.Minutes == minutes {
			same++
		}
	}
	if same < 3 {
		return false
	}
	for _, e := range recent[:3] {
		d := utils.DaysBetween(e.Date, date)
		if d < 0 {
			d = -d
		}
		if d > 3 {
			return false
		}
	}
	return true
}

func weight(f *Flag) int {
	var w int
	switch f.Severity {
	case SeverityHigh:
		w = 15
	case SeverityLow:
		w = 3
	default:
		w = 8
	}
	if f.Reviewed {
		w /= 3
		if w < 1 {
			w = 1
		}
	}
	return w
}

// Score derives a 0..100 trust score from flags. It is never persisted.
func Score(flags []*Flag, now time.Time) int {
	score := startingScore
	recent := 0
	for _, f := range flags {
		age := now.Sub(f.FlaggedAt)
		if age > lookback {
			continue
		}
		score -= weight(f)
		if age <= burstWindow {
			recent++
		}
	}
	if recent > burstFree {
		score -= (recent - burstFree) * burstPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

func BandFor(score int) Band {
	switch {
	case score >= 85:
		return BandHigh
	case score >= 65:
		return BandMedium
	default:
		return BandLow
	}
}

func Summarize(flags []*Flag, now time.Time) Summary {
	s := Summary{Score: Score(flags, now), SignalBreakdown: map[string]int{}}
	s.Band = BandFor(s.Score)
	for _, f := range flags {
		if now.Sub(f.FlaggedAt) > lookback {
			continue
		}
		s.SignalsLast30Days++
		s.SignalBreakdown[string(f.Type)]++
	}
	return s
}
