package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/queue/streams"
	"github.com/reflow-agent/reflow/internal/store"
)

// Scheduler periodically scans enabled schedules and enqueues runs for the
// ones that are due. A Redis lock keeps multiple API replicas from firing the
// same schedule twice.
type Scheduler struct {
	Store     *store.Store
	Rdb       *redis.Client
	Publisher *streams.Publisher
	Cfg       *config.Config
	Stop      chan struct{}
	Logger    *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	interval := s.Cfg.Scheduler.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	schedules, err := s.Store.ListEnabledSchedules(ctx)
	if err != nil {
		s.Logger.Printf("list schedules failed: %v", err)
		return
	}
	for _, sched := range schedules {
		if !isDue(sched.CronSpec, sched.LastRunAt) {
			continue
		}

		// distributed lock to avoid duplicate dispatch across replicas
		if s.Rdb != nil {
			lockKey := "sched:lock:" + sched.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}

		if err := s.dispatch(ctx, sched); err != nil {
			s.Logger.Printf("dispatch schedule %s failed: %v", sched.ID, err)
			continue
		}
		if err := s.Store.TouchScheduleLastRun(ctx, sched.ID, time.Now().UTC()); err != nil {
			s.Logger.Printf("touch schedule %s failed: %v", sched.ID, err)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, sched store.Schedule) error {
	runID, err := s.Store.CreateRun(ctx, sched.UserID, sched.Query, sched.MaxIterations, store.RunStatusQueued)
	if err != nil {
		return err
	}
	env, err := streams.NewRunRequested(streams.RunRequested{
		RunID:         runID,
		UserID:        sched.UserID,
		Query:         sched.Query,
		MaxIterations: sched.MaxIterations,
	})
	if err != nil {
		return err
	}
	if _, err := s.Publisher.Publish(ctx, s.Cfg.Queue.Redis.Stream, env); err != nil {
		errMsg := "failed to enqueue scheduled run"
		_ = s.Store.FinishRun(ctx, runID, store.RunStatusFailed, nil, &errMsg)
		return err
	}
	s.Logger.Printf("schedule %s enqueued run %s", sched.ID, runID)
	return nil
}

// isDue determines whether a schedule with cronSpec should fire now given its
// last dispatch time. Supports "@daily", "@hourly" and standard 5-field cron
// expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
