package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/radarbase/restructure/internal/logging"
)

// Service runs an Orchestrator repeatedly at a fixed cadence
// (-S/--service, -i/--interval), grounded on the same gocron/v2 job
// scheduler used elsewhere in the pack for fixed-cadence background work.
type Service struct {
	orch      *Orchestrator
	roots     []string
	scheduler gocron.Scheduler
	log       *slog.Logger
}

// NewService wraps orch to run one full Process pass every interval,
// starting immediately.
func NewService(orch *Orchestrator, roots []string, interval time.Duration, log *slog.Logger) (*Service, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create scheduler: %w", err)
	}
	svc := &Service{
		orch:      orch,
		roots:     roots,
		scheduler: sched,
		log:       logging.Component(log, "service"),
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(svc.runOnce),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: schedule job: %w", err)
	}
	return svc, nil
}

// runOnce executes one Process pass, logging totals and any error; a
// failed pass never stops the schedule, matching the spec's resumable,
// run-again-later model.
func (s *Service) runOnce() {
	ctx := context.Background()
	totals, err := s.orch.Process(ctx, s.roots)
	if err != nil {
		s.log.Error("scheduled pass failed", "error", err)
		return
	}
	s.log.Info("scheduled pass complete", "files", totals.Files, "records", totals.Records, "skipped", totals.Skipped)
}

// Start begins the fixed-cadence schedule; it returns immediately, the
// first pass runs asynchronously.
func (s *Service) Start() {
	s.scheduler.Start()
	s.log.Info("service scheduler started")
}

// Stop shuts the scheduler down, waiting for any in-flight pass to finish
// its current file (the Orchestrator's own Close handles cooperative
// cancellation of that in-flight pass).
func (s *Service) Stop() error {
	s.orch.Close()
	return s.scheduler.Shutdown()
}
