package badge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func days(offsets ...int) []time.Time {
	var out []time.Time
	for _, o := range offsets {
		out = append(out, base.AddDate(0, 0, o))
	}
	return out
}

func def(criteria CriteriaType, scope Scope, threshold int) *Definition {
	return &Definition{ID: uuid.New(), Name: string(criteria), CriteriaType: criteria, Scope: scope, Threshold: threshold}
}

func TestBuildMetrics(t *testing.T) {
	m := BuildMetrics(120, nil, append(days(0, 1, 2, 5, 6), base.Add(5*time.Hour)))
	assert.Equal(t, 120, m.TotalPoints)
	assert.Equal(t, 5, m.DistinctDays)
	assert.Equal(t, 3, m.LongestConsecutive)

	empty := BuildMetrics(0, nil, nil)
	assert.Equal(t, 0, empty.DistinctDays)
	assert.Equal(t, 0, empty.LongestConsecutive)
}

func TestEvaluatePoints(t *testing.T) {
	m := Metrics{TotalPoints: 104}

	res, err := Evaluate(def(CriteriaPoints, ScopeGlobal, 100), m)
	require.NoError(t, err)
	assert.True(t, res.Earned)
	assert.Equal(t, "Reached 104 total points", res.Reason)

	res, err = Evaluate(def(CriteriaPoints, ScopeGlobal, 500), m)
	require.NoError(t, err)
	assert.False(t, res.Earned)
}

func TestEvaluateStreakScopes(t *testing.T) {
	reading := uuid.New()
	m := Metrics{GoalStreaks: []GoalStreak{
		{GoalID: uuid.New(), Title: "Run", Current: 2},
		{GoalID: reading, Title: "Read", Current: 8},
	}}

	res, err := Evaluate(def(CriteriaStreak, ScopePerGoal, 7), m)
	require.NoError(t, err)
	assert.True(t, res.Earned)
	assert.Equal(t, "Maintained 8-day streak on Read goal", res.Reason)
	require.NotNil(t, res.RelatedGoalID)
	assert.Equal(t, reading, *res.RelatedGoalID)

	res, err = Evaluate(def(CriteriaStreak, ScopeGlobal, 7), m)
	require.NoError(t, err)
	assert.True(t, res.Earned)
	assert.Equal(t, "Achieved 8-day streak", res.Reason)
	assert.Nil(t, res.RelatedGoalID)

	res, err = Evaluate(def(CriteriaStreak, ScopePerGoal, 14), m)
	require.NoError(t, err)
	assert.False(t, res.Earned)

	res, err = Evaluate(def(CriteriaStreak, ScopePerGoal, 1), Metrics{})
	require.NoError(t, err)
	assert.False(t, res.Earned)
}

func TestEvaluateDaysAndConsistency(t *testing.T) {
	m := BuildMetrics(0, nil, days(0, 1, 2, 3, 4, 5, 6, 10, 20))

	res, err := Evaluate(def(CriteriaDaysActive, ScopeGlobal, 9), m)
	require.NoError(t, err)
	assert.True(t, res.Earned)
	assert.Equal(t, "Logged activity on 9 different days", res.Reason)

	res, err = Evaluate(def(CriteriaConsistency, ScopeGlobal, 7), m)
	require.NoError(t, err)
	assert.True(t, res.Earned)
	assert.Equal(t, "Logged activity for 7 consecutive days", res.Reason)

	res, err = Evaluate(def(CriteriaConsistency, ScopeGlobal, 8), m)
	require.NoError(t, err)
	assert.False(t, res.Earned)
}

func TestEvaluateUnknownCriteria(t *testing.T) {
	_, err := Evaluate(&Definition{CriteriaType: "VIBES"}, Metrics{})
	assert.Error(t, err)
}

func TestValidateRequiresCategoryForCategoryScope(t *testing.T) {
	d := def(CriteriaPoints, ScopePerCategory, 10)
	assert.Error(t, d.Validate())

	coding := "Coding"
	d.TargetCategory = &coding
	assert.NoError(t, d.Validate())
}

func TestResolverCachesPerCategory(t *testing.T) {
	calls := map[string]int{}
	r := NewResolver(func(ctx context.Context, category *string) (Metrics, error) {
		key := "global"
		if category != nil {
			key = *category
		}
		calls[key]++
		return Metrics{TotalPoints: len(key)}, nil
	})

	coding, upper := "Coding", "CODING"
	ctx := context.Background()

	for _, d := range []*Definition{
		{Scope: ScopeGlobal},
		{Scope: ScopePerGoal},
		{Scope: ScopePerCategory, TargetCategory: &coding},
		{Scope: ScopePerCategory, TargetCategory: &upper},
	} {
		_, err := r.Resolve(ctx, d)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, calls["global"])
	assert.Equal(t, 1, calls["Coding"])
	assert.Equal(t, 0, calls["CODING"])
}

func TestPendingSkipsEarnedAndInvalid(t *testing.T) {
	earnedDef := def(CriteriaPoints, ScopeGlobal, 10)
	openDef := def(CriteriaPoints, ScopeGlobal, 50)
	tooHigh := def(CriteriaPoints, ScopeGlobal, 5000)
	broken := def(CriteriaPoints, ScopePerCategory, 1)

	r := NewResolver(func(ctx context.Context, category *string) (Metrics, error) {
		return Metrics{TotalPoints: 60}, nil
	})

	got, err := Pending(context.Background(),
		[]*Definition{earnedDef, openDef, tooHigh, broken},
		map[uuid.UUID]bool{earnedDef.ID: true}, r)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, openDef.ID, got[0].Definition.ID)
}

func TestPendingPropagatesLoaderErrors(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(func(ctx context.Context, category *string) (Metrics, error) {
		return Metrics{}, boom
	})

	_, err := Pending(context.Background(), []*Definition{def(CriteriaPoints, ScopeGlobal, 1)}, nil, r)
	assert.ErrorIs(t, err, boom)
}

func TestDefaultCatalogIsValid(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Len(t, catalog, 16)
	names := map[string]bool{}
	for _, d := range catalog {
		assert.NoError(t, d.Validate())
		assert.False(t, names[d.Name], "duplicate badge %s", d.Name)
		names[d.Name] = true
	}
}
