package leaderboard

import (
	"sync/atomic"
	"time"
)

// Generations hands out snapshot generation markers. A marker is taken before
// a scope is ranked, so a larger marker never describes older data. Markers
// follow the wall clock in microseconds and strictly increase within a process.
type Generations struct {
	last atomic.Int64
	now  func() time.Time
}

func NewGenerations() *Generations {
	return &Generations{now: time.Now}
}

func (g *Generations) Next() int64 {
	candidate := g.now().UnixMicro()
	for {
		last := g.last.Load()
		next := candidate
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// GenerationOf reports the newest marker carried by rows, or 0.
func GenerationOf(rows []*SnapshotRow) int64 {
	var gen int64
	for _, r := range rows {
		if r != nil && r.Generation > gen {
			gen = r.Generation
		}
	}
	return gen
}
