package dtp

import (
	"context"
	"errors"
	"sync"

	"dtp-ingest/config"
	"dtp-ingest/core/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers periodic ingestion runs on a cron spec. It only
// re-drains whatever the external fetcher has appended to the buffer;
// deciding what to fetch stays outside this service.
type Scheduler struct {
	cfg    config.SchedulerConfig
	driver *Driver
	logger *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg config.SchedulerConfig, driver *Driver, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, driver: driver, logger: logger}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || s.driver == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	_, err := c.AddFunc(s.cfg.CronSpec, func() {
		if _, err := s.driver.Run(runCtx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.Errorf("scheduled ingestion run failed: %v", err)
		}
	})
	if err != nil {
		cancel()
		return err
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	s.logger.Printf("ingestion scheduler started with spec %q", s.cfg.CronSpec)
	return nil
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
