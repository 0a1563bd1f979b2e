package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/config"
)

// Purger removes sessions that have not been touched within ttl.
type Purger interface {
	PurgeExpired(ctx context.Context, ttl time.Duration) (int, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	purger Purger
	cfg    config.CleanupConfig
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.CleanupConfig, purger Purger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard 5-field cron expressions; overlapping purges are skipped.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &Scheduler{
		cron:   c,
		purger: purger,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the cleanup job and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.purgeExpired); err != nil {
		return fmt.Errorf("schedule session cleanup %q: %w", s.cfg.CronSchedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	purged, err := s.purger.PurgeExpired(ctx, s.cfg.SessionTTL)
	if err != nil {
		s.logger.Error("failed to purge expired sessions", zap.Int("purged", purged), zap.Error(err))
		return
	}
	s.logger.Info("expired sessions purged", zap.Int("purged", purged), zap.Duration("ttl", s.cfg.SessionTTL))
}
