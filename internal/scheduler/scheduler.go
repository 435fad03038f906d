package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/robfig/cron/v3"

	"github.com/quillagent/quill/internal/actions"
	"github.com/quillagent/quill/internal/store"
)

// ActionRunner is the interface the scheduler uses to execute actions.
// Satisfied by actions.Registry (and by the policy-checked dispatcher).
type ActionRunner interface {
	Execute(ctx context.Context, name string, params map[string]any) actions.Response
}

// Scheduler polls the store for due scheduled publishes and runs them.
// A schedule may carry a "when" guard expression evaluated against
// {action, params, now}; a falsy guard records a "skipped" run instead of
// executing.
type Scheduler struct {
	store  store.Store
	runner ActionRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing (dedup)

	guardMu    sync.RWMutex
	guardCache map[string]*vm.Program
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner ActionRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      s,
		runner:     runner,
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:     logger,
		inflight:   make(map[string]struct{}),
		guardCache: make(map[string]*vm.Program),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled schedules and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	scheds, err := s.store.ListScheduledPublishes(ctx, store.ScheduledPublishFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled publishes", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sp := range scheds {
		if sp.NextRunAt == nil || !sp.NextRunAt.After(now) {
			if !s.tryAcquire(sp.ID) {
				continue // already running (dedup)
			}
			if err := s.run(ctx, sp, now); err != nil {
				s.logger.Error("failed to run scheduled publish",
					slog.String("schedule_id", sp.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(sp.ID)
		}
	}
}

// run executes one scheduled publish and updates its timestamps.
func (s *Scheduler) run(ctx context.Context, sp *store.ScheduledPublish, now time.Time) error {
	s.logger.Info("running scheduled publish",
		slog.String("schedule_id", sp.ID),
		slog.String("action", sp.Action),
	)

	var params map[string]any
	if len(sp.Params) > 0 {
		if err := json.Unmarshal(sp.Params, &params); err != nil {
			return s.updateStatus(ctx, sp, now, "error")
		}
	}

	if sp.When != "" {
		ok, err := s.evalGuard(sp.When, sp.Action, params, now)
		if err != nil {
			s.logger.Warn("schedule guard failed",
				slog.String("schedule_id", sp.ID),
				slog.String("error", err.Error()),
			)
			return s.updateStatus(ctx, sp, now, "error")
		}
		if !ok {
			s.logger.Info("schedule guard not met, skipping",
				slog.String("schedule_id", sp.ID))
			return s.updateStatus(ctx, sp, now, "skipped")
		}
	}

	resp := s.runner.Execute(ctx, sp.Action, params)
	status := "success"
	if resp.Status == actions.StatusError {
		status = "error"
		s.logger.Error("scheduled publish execution failed",
			slog.String("schedule_id", sp.ID),
			slog.String("error", resp.Error),
		)
	}

	return s.updateStatus(ctx, sp, now, status)
}

// evalGuard evaluates a "when" expression with action, params, and now in
// scope. Compiled programs are cached per expression.
func (s *Scheduler) evalGuard(expression, action string, params map[string]any, now time.Time) (bool, error) {
	if params == nil {
		params = map[string]any{}
	}
	env := map[string]any{
		"action": action,
		"params": params,
		"now":    now,
	}

	s.guardMu.RLock()
	prg, ok := s.guardCache[expression]
	s.guardMu.RUnlock()
	if !ok {
		var err error
		prg, err = expr.Compile(expression,
			expr.Env(env),
			expr.AllowUndefinedVariables(),
		)
		if err != nil {
			return false, fmt.Errorf("compile guard %q: %w", expression, err)
		}
		s.guardMu.Lock()
		s.guardCache[expression] = prg
		s.guardMu.Unlock()
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return false, fmt.Errorf("evaluate guard %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("guard %q did not return a boolean", expression)
	}
	return b, nil
}

func (s *Scheduler) updateStatus(ctx context.Context, sp *store.ScheduledPublish, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(sp.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sp.ID, err)
	}

	return s.store.UpdateScheduledPublish(ctx, sp.ID, store.ScheduledPublishUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
	})
}

// tryAcquire returns true and marks the schedule as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed checks for schedules that missed their next_run_at and runs them once.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	scheds, err := s.store.ListScheduledPublishes(ctx, store.ScheduledPublishFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sp := range scheds {
		if sp.NextRunAt != nil && sp.NextRunAt.Before(now) {
			if !s.tryAcquire(sp.ID) {
				continue
			}
			if err := s.run(ctx, sp, now); err != nil {
				s.logger.Error("failed to recover missed schedule",
					slog.String("schedule_id", sp.ID),
					slog.String("error", err.Error()),
				)
				s.release(sp.ID)
				continue
			}
			s.release(sp.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
