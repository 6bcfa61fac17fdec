package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/macta/internal/logging"
	"github.com/rendis/macta/internal/store"
	"github.com/rendis/macta/pkg/schema"
)

// SimulationRunner is the interface the scheduler uses to run simulations.
// Satisfied by the analysis service (avoids import cycle).
type SimulationRunner interface {
	Simulate(ctx context.Context, req schema.SimulationRequest) (*schema.SimulationResponse, error)
}

// Scheduler polls the store for due scheduled simulations and runs them.
type Scheduler struct {
	store    store.Store
	runner   SimulationRunner
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler that polls every 60 seconds.
func NewScheduler(s store.Store, runner SimulationRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: 60 * time.Second,
		inflight: make(map[string]struct{}),
	}
}

// Register validates a schedule, fills its ID and next run time, and stores it.
func (s *Scheduler) Register(ctx context.Context, sched *store.ScheduledSimulation) error {
	if sched.ProcessID == "" || sched.ConfigType == "" {
		return schema.NewError(schema.ErrCodeValidation, "schedule needs a process ID and a config type")
	}
	if sched.SimulationHours <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "simulation hours must be positive, got %d", sched.SimulationHours)
	}
	next, err := s.CalculateNextRun(sched.CronExpression, time.Now().UTC())
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	sched.NextRunAt = &next
	return s.store.CreateSchedule(ctx, sched)
}

// Start launches the background scheduling loop.
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
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
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
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled simulations", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sched := range scheds {
		if sched.NextRunAt != nil && sched.NextRunAt.After(now) {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue // already running (dedup)
		}
		if err := s.runSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to run scheduled simulation",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseSchedule(sched.ID)
	}
}

// runSchedule runs one scheduled simulation and updates its bookkeeping.
func (s *Scheduler) runSchedule(ctx context.Context, sched *store.ScheduledSimulation, now time.Time) error {
	ctx = logging.WithTrigger(logging.WithProcessID(ctx, sched.ProcessID), "schedule:"+sched.ID)
	s.logger.InfoContext(ctx, "running scheduled simulation",
		slog.String("schedule_id", sched.ID),
		slog.String("config_type", sched.ConfigType),
	)

	resp, err := s.runner.Simulate(ctx, schema.SimulationRequest{
		ProcessID:       sched.ProcessID,
		ConfigType:      sched.ConfigType,
		SimulationHours: sched.SimulationHours,
	})
	status, runID := string(schema.RunStatusCompleted), ""
	if err != nil {
		status = string(schema.RunStatusFailed)
		s.logger.ErrorContext(ctx, "scheduled simulation failed",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
	} else if resp != nil {
		runID = resp.RunID
	}

	if evErr := s.store.AppendEvent(ctx, &store.Event{
		SubjectID: sched.ID,
		Type:      schema.EventScheduleTriggered,
		Payload:   []byte(fmt.Sprintf(`{"status":%q,"run_id":%q}`, status, runID)),
	}); evErr != nil {
		s.logger.WarnContext(ctx, "failed to record schedule event", slog.String("error", evErr.Error()))
	}

	return s.updateScheduleStatus(ctx, sched, now, status, runID)
}

func (s *Scheduler) updateScheduleStatus(ctx context.Context, sched *store.ScheduledSimulation, now time.Time, status, runID string) error {
	nextRun, err := s.CalculateNextRun(sched.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, err)
	}

	return s.store.UpdateSchedule(ctx, sched.ID, store.ScheduleUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
		LastRunID:     runID,
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

// releaseSchedule removes the schedule from the in-flight set.
func (s *Scheduler) releaseSchedule(id string) {
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

// RecoverMissed runs once every enabled schedule whose next run passed while
// the process was down.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sched := range scheds {
		if sched.NextRunAt == nil || !sched.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue
		}
		err := s.runSchedule(ctx, sched, now)
		s.releaseSchedule(sched.ID)
		if err != nil {
			s.logger.Error("failed to recover missed schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
