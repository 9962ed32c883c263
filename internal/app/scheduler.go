/**
 * @description
 * Cron scheduler that keeps the catalog cache warm so page renders rarely wait
 * on the payment provider.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// CatalogRefresher reloads the catalog into the cache.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	catalog  CatalogRefresher
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(catalog CatalogRefresher, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		catalog:  catalog,
		logger:   logger,
		schedule: schedule,
		timeout:  30 * time.Second,
	}
}

// Start registers the catalog warm-up job, runs it once, and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.WarmCatalog); err != nil {
		s.logger.Error("failed to schedule catalog warm-up job", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled catalog warm-up job", "schedule", s.schedule)

	go s.WarmCatalog()
	s.cron.Start()
	return nil
}

// WarmCatalog refreshes the catalog cache.
func (s *Scheduler) WarmCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.Warn("catalog warm-up failed", "error", err)
		return
	}
	s.logger.Info("catalog cache warmed")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
