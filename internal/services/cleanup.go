package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/database"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// DefaultRetentionDays is how long forecasts and seasonality patterns are kept.
const DefaultRetentionDays = 90

// RetentionStore deletes stale rows and reports table sizes.
type RetentionStore interface {
	DeleteForecastsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePatternsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetDataStats(ctx context.Context) (*database.DataStats, error)
}

// CleanupReport describes one cleanup run.
type CleanupReport struct {
	Cutoff           time.Time `json:"cutoff"`
	ForecastsDeleted int64     `json:"forecasts_deleted"`
	PatternsDeleted  int64     `json:"patterns_deleted"`
}

// CleanupService handles automatic cleanup of old data
type CleanupService struct {
	store         RetentionStore
	retentionDays int
	logger        *logrus.Logger
	now           func() time.Time
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(store RetentionStore, retentionDays int, logger *logrus.Logger) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start runs a cleanup immediately and then every interval until Stop is called.
func (c *CleanupService) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	c.logger.WithFields(logrus.Fields{
		"retention_days": c.retentionDays,
		"interval":       interval,
	}).Info("Starting cleanup service")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if _, err := c.RunCleanup(c.ctx); err != nil {
			c.logger.WithError(err).Error("Initial cleanup failed")
		}
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.RunCleanup(c.ctx); err != nil {
					c.logger.WithError(err).Error("Cleanup failed")
				}
			}
		}
	}()
}

// Stop stops the cleanup service and waits for a running cleanup to return.
func (c *CleanupService) Stop() {
	c.logger.Info("Stopping cleanup service")
	c.cancel()
	c.wg.Wait()
}

// RunCleanup deletes forecasts dated before the retention cutoff and patterns not refreshed since it.
func (c *CleanupService) RunCleanup(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{Cutoff: models.Day(c.now()).AddDate(0, 0, -c.retentionDays)}

	deleted, err := c.store.DeleteForecastsBefore(ctx, report.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cleanup forecasts: %w", err)
	}
	report.ForecastsDeleted = deleted

	deleted, err = c.store.DeletePatternsBefore(ctx, report.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cleanup seasonality patterns: %w", err)
	}
	report.PatternsDeleted = deleted

	c.logger.WithFields(logrus.Fields{
		"cutoff":            report.Cutoff.Format("2006-01-02"),
		"forecasts_deleted": report.ForecastsDeleted,
		"patterns_deleted":  report.PatternsDeleted,
	}).Info("Data cleanup completed")
	return report, nil
}

// GetDataStats returns statistics about current data storage
func (c *CleanupService) GetDataStats(ctx context.Context) (*database.DataStats, error) {
	stats, err := c.store.GetDataStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get data stats: %w", err)
	}
	return stats, nil
}
