package params

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler activates approved parameter sets when their scheduled time arrives
type Scheduler struct {
	Cron     *cron.Cron
	Registry *Registry
	Ctx      context.Context

	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler for reg
func NewScheduler(ctx context.Context, reg *Registry, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Registry: reg,
		Ctx:      ctx,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register adds the activation check on the given cron spec
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.activationTask); err != nil {
		return fmt.Errorf("register activation task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("activation scheduler started")
}

// Stop stops the scheduler and waits for a running task to finish
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("activation scheduler stopped")
}

// RunNow performs one activation pass immediately
func (s *Scheduler) RunNow() ([]string, error) {
	return s.Registry.ActivateDue(s.Ctx, s.now())
}

func (s *Scheduler) activationTask() {
	ids, err := s.RunNow()
	if err != nil {
		s.logger.Error("scheduled activation failed", zap.Error(err), zap.Strings("activated", ids))
		return
	}
	if len(ids) > 0 {
		s.logger.Info("scheduled activation complete", zap.Strings("activated", ids))
	}
}
