package workers

import (
	"context"
	"strings"
	"sync"
	"time"

	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/metrics"
	"focusforgeAPI/internal/store"
)

const refreshBatch = 50

// Refresher recomputes the leaderboard scopes touched by an activity.
type Refresher interface {
	RefreshForActivity(ctx context.Context, category *string) error
}

// RefreshWorker drains the leaderboard refresh outbox. It runs on a poll
// interval and whenever Wake is called after a commit.
type RefreshWorker struct {
	store     store.Store
	refresher Refresher
	interval  time.Duration
	wake      chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	log       *logger.Logger
}

func NewRefreshWorker(st store.Store, refresher Refresher, interval time.Duration, log *logger.Logger) *RefreshWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RefreshWorker{
		store:     st,
		refresher: refresher,
		interval:  interval,
		wake:      make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		log:       log.With("component", "RefreshWorker"),
	}
}

func (w *RefreshWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Wake never blocks. Wakes that arrive while a drain is pending collapse into one.
func (w *RefreshWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *RefreshWorker) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-w.wake:
		case <-w.stopChan:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if _, err := w.DrainOnce(ctx); err != nil {
			w.log.Error("refresh drain failed", "error", err)
		}
		cancel()
	}
}

func categoryKey(c *string) string {
	if c == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*c))
}

// DrainOnce claims one batch and refreshes each distinct category once.
// Tasks are completed or failed together with their category's refresh.
func (w *RefreshWorker) DrainOnce(ctx context.Context) (int, error) {
	tasks, err := w.store.ClaimRefreshTasks(ctx, refreshBatch)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	var order []string
	groups := make(map[string][]*store.RefreshTask)
	for _, t := range tasks {
		k := categoryKey(t.Category)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	for _, k := range order {
		group := groups[k]
		refreshErr := w.refresher.RefreshForActivity(ctx, group[0].Category)
		for _, t := range group {
			if refreshErr != nil {
				metrics.RefreshTasks.WithLabelValues("failed").Inc()
				if err := w.store.FailRefreshTask(ctx, t.ID, refreshErr); err != nil {
					w.log.Warn("failed to record refresh failure", "task_id", t.ID, "error", err)
				}
				continue
			}
			metrics.RefreshTasks.WithLabelValues("completed").Inc()
			if err := w.store.CompleteRefreshTask(ctx, t.ID); err != nil {
				w.log.Warn("failed to complete refresh task", "task_id", t.ID, "error", err)
			}
		}
		if refreshErr != nil {
			w.log.Error("leaderboard refresh failed", "category", k, "tasks", len(group), "error", refreshErr)
		}
	}

	w.log.Debug("refresh batch drained", "tasks", len(tasks), "categories", len(order))
	return len(tasks), nil
}

func (w *RefreshWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Aggregator runs the full leaderboard recompute.
type Aggregator interface {
	RecomputeAll(ctx context.Context) error
}

// Sweeper generates the periodic notifications for every user.
type Sweeper interface {
	SweepAll(ctx context.Context) int
}

// Scheduler runs the periodic full aggregation and the daily notification sweep.
type Scheduler struct {
	aggregator Aggregator
	sweeper    Sweeper
	interval   time.Duration
	sweepEvery time.Duration
	onStart    bool
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	log        *logger.Logger
}

func NewScheduler(agg Aggregator, sweeper Sweeper, cfg config.Leaderboard, log *logger.Logger) *Scheduler {
	interval := cfg.AggregationInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		aggregator: agg,
		sweeper:    sweeper,
		interval:   interval,
		sweepEvery: 24 * time.Hour,
		onStart:    cfg.AggregateOnStart,
		stopChan:   make(chan struct{}),
		log:        log.With("component", "Scheduler"),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.aggregateLoop()

	if s.sweeper != nil {
		s.wg.Add(1)
		go s.sweepLoop()
	}
}

func (s *Scheduler) aggregateLoop() {
	defer s.wg.Done()
	if s.onStart {
		s.Aggregate()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Aggregate()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			failed := s.sweeper.SweepAll(ctx)
			cancel()
			if failed > 0 {
				s.log.Warn("notification sweep finished with failures", "failed", failed)
			}
		case <-s.stopChan:
			return
		}
	}
}

// Aggregate runs one full recompute and logs the outcome.
func (s *Scheduler) Aggregate() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.aggregator.RecomputeAll(ctx); err != nil {
		s.log.Error("leaderboard aggregation failed", "error", err, "took", time.Since(start))
		return
	}
	s.log.Info("leaderboard aggregation complete", "took", time.Since(start))
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
}
