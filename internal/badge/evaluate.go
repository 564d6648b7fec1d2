package badge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"focusforgeAPI/utils"
)

type GoalStreak struct {
	GoalID  uuid.UUID
	Title   string
	Current int
}

// Metrics is everything the criteria need, for one user over one scope.
type Metrics struct {
	TotalPoints        int
	GoalStreaks        []GoalStreak
	DistinctDays       int
	LongestConsecutive int
}

func BuildMetrics(totalPoints int, streaks []GoalStreak, activeDates []time.Time) Metrics {
	m := Metrics{TotalPoints: totalPoints, GoalStreaks: streaks}

	seen := make(map[time.Time]struct{}, len(activeDates))
	for _, d := range activeDates {
		seen[utils.DateOnly(d)] = struct{}{}
	}
	m.DistinctDays = len(seen)

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	run := 0
	for i, d := range dates {
		if i > 0 && utils.DaysBetween(dates[i-1], d) == 1 {
			run++
		} else {
			run = 1
		}
		if run > m.LongestConsecutive {
			m.LongestConsecutive = run
		}
	}
	return m
}

func (m Metrics) bestStreak() (GoalStreak, bool) {
	var best GoalStreak
	found := false
	for _, s := range m.GoalStreaks {
		if !found || s.Current > best.Current {
			best = s
			found = true
		}
	}
	return best, found
}

type Result struct {
	Earned        bool
	Reason        string
	RelatedGoalID *uuid.UUID
}

type evaluator func(def *Definition, m Metrics) Result

var evaluators = map[CriteriaType]evaluator{
	CriteriaPoints: func(def *Definition, m Metrics) Result {
		if m.TotalPoints < def.Threshold {
			return Result{}
		}
		return Result{Earned: true, Reason: fmt.Sprintf("Reached %d total points", m.TotalPoints)}
	},
	CriteriaStreak: func(def *Definition, m Metrics) Result {
		best, ok := m.bestStreak()
		if !ok || best.Current < def.Threshold {
			return Result{}
		}
		if def.Scope == ScopeGlobal {
			return Result{Earned: true, Reason: fmt.Sprintf("Achieved %d-day streak", best.Current)}
		}
		goalID := best.GoalID
		return Result{
			Earned:        true,
			Reason:        fmt.Sprintf("Maintained %d-day streak on %s goal", best.Current, best.Title),
			RelatedGoalID: &goalID,
		}
	},
	CriteriaDaysActive: func(def *Definition, m Metrics) Result {
		if m.DistinctDays < def.Threshold {
			return Result{}
		}
		return Result{Earned: true, Reason: fmt.Sprintf("Logged activity on %d different days", m.DistinctDays)}
	},
	CriteriaConsistency: func(def *Definition, m Metrics) Result {
		if m.LongestConsecutive < def.Threshold {
			return Result{}
		}
		return Result{Earned: true, Reason: fmt.Sprintf("Logged activity for %d consecutive days", m.LongestConsecutive)}
	},
}

func Evaluate(def *Definition, m Metrics) (Result, error) {
	eval, ok := evaluators[def.CriteriaType]
	if !ok {
		return Result{}, fmt.Errorf("no evaluator for criteria %q", def.CriteriaType)
	}
	return eval(def, m), nil
}

// Loader computes metrics for a user, restricted to a category when non-nil.
type Loader func(ctx context.Context, category *string) (Metrics, error)

// Resolver hands out metrics per evaluation scope and memoizes them for the
// lifetime of one evaluation pass.
type Resolver struct {
	load       Loader
	global     *Metrics
	byCategory map[string]Metrics
}

func NewResolver(load Loader) *Resolver {
	return &Resolver{load: load, byCategory: make(map[string]Metrics)}
}

func (r *Resolver) Resolve(ctx context.Context, def *Definition) (Metrics, error) {
	if def.Scope != ScopePerCategory {
		if r.global == nil {
			m, err := r.load(ctx, nil)
			if err != nil {
				return Metrics{}, err
			}
			r.global = &m
		}
		return *r.global, nil
	}

	key := strings.ToLower(strings.TrimSpace(*def.TargetCategory))
	if m, ok := r.byCategory[key]; ok {
		return m, nil
	}
	m, err := r.load(ctx, def.TargetCategory)
	if err != nil {
		return Metrics{}, err
	}
	r.byCategory[key] = m
	return m, nil
}

type Candidate struct {
	Definition *Definition
	Result     Result
}

// Pending evaluates every definition the user has not yet earned and returns
// the ones whose criteria are now met. Invalid definitions are skipped.
func Pending(ctx context.Context, defs []*Definition, earned map[uuid.UUID]bool, r *Resolver) ([]Candidate, error) {
	var out []Candidate
	for _, def := range defs {
		if earned[def.ID] {
			continue
		}
		if err := def.Validate(); err != nil {
			continue
		}
		m, err := r.Resolve(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve metrics for badge %s: %w", def.Name, err)
		}
		res, err := Evaluate(def, m)
		if err != nil {
			return nil, err
		}
		if res.Earned {
			out = append(out, Candidate{Definition: def, Result: res})
		}
	}
	return out, nil
}
