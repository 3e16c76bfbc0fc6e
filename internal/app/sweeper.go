package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically deletes rooms past the retention horizon.
type Sweeper struct {
	service  *RoomService
	interval time.Duration
	timeout  time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewSweeper schedules service.SweepExpired every interval once started.
func NewSweeper(service *RoomService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		timeout:  30 * time.Second,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler. A non-positive interval disables it.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		s.logger.Info("room sweeper disabled")
		return nil
	}
	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("room sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule room sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("room sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("room sweeper stopped")
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.service.SweepExpired(ctx)
}
