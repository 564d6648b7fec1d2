package badge

type seed struct {
	name      string
	desc      string
	criteria  CriteriaType
	scope     Scope
	threshold int
	bonus     int
}

var defaultCatalog = []seed{
	{"First Steps", "Earn your first 10 points", CriteriaPoints, ScopeGlobal, 10, 5},
	{"Rising Star", "Earn 50 points", CriteriaPoints, ScopeGlobal, 50, 10},
	{"Century Club", "Earn 100 points", CriteriaPoints, ScopeGlobal, 100, 25},
	{"Points Master", "Earn 500 points", CriteriaPoints, ScopeGlobal, 500, 100},
	{"Millennium Master", "Earn 1000 points", CriteriaPoints, ScopeGlobal, 1000, 250},

	{"Three Day Fire", "Keep a goal streak alive for 3 days", CriteriaStreak, ScopePerGoal, 3, 10},
	{"Week Warrior", "Keep a goal streak alive for 7 days", CriteriaStreak, ScopePerGoal, 7, 25},
	{"Two Week Titan", "Keep a goal streak alive for 14 days", CriteriaStreak, ScopePerGoal, 14, 50},
	{"Month Master", "Keep a goal streak alive for 30 days", CriteriaStreak, ScopePerGoal, 30, 100},

	{"Dedication", "Log activity 7 days in a row", CriteriaConsistency, ScopeGlobal, 7, 20},
	{"Persistence", "Log activity 14 days in a row", CriteriaConsistency, ScopeGlobal, 14, 40},
	{"Consistency King", "Log activity 30 days in a row", CriteriaConsistency, ScopeGlobal, 30, 100},

	{"Getting Started", "Log activity on 5 different days", CriteriaDaysActive, ScopeGlobal, 5, 10},
	{"Committed", "Log activity on 15 different days", CriteriaDaysActive, ScopeGlobal, 15, 30},
	{"30 Day Challenge", "Log activity on 30 different days", CriteriaDaysActive, ScopeGlobal, 30, 75},
	{"100 Day Club", "Log activity on 100 different days", CriteriaDaysActive, ScopeGlobal, 100, 200},
}

// DefaultCatalog returns the badges seeded into a fresh database. IDs are
// left zero so the store assigns them.
func DefaultCatalog() []*Definition {
	out := make([]*Definition, 0, len(defaultCatalog))
	for _, s := range defaultCatalog {
		out = append(out, &Definition{
			Name:         s.name,
			Description:  s.desc,
			CriteriaType: s.criteria,
			Scope:        s.scope,
			Threshold:    s.threshold,
			PointsBonus:  s.bonus,
		})
	}
	return out
}
