package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/config"
)

// Job is a named unit of background work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals until stopped. Runs of the same job never overlap.
type Scheduler struct {
	jobs    []Job
	logger  *logrus.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun map[string]JobStatus
}

// JobStatus is the outcome of a job's latest run.
type JobStatus struct {
	LastRun  time.Time     `json:"last_run"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NewScheduler creates a scheduler for the given jobs. Jobs with a non-positive interval are skipped.
func NewScheduler(logger *logrus.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:    jobs,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		lastRun: make(map[string]JobStatus),
	}
}

// NewForecastScheduler builds the standard schedule: batch forecasts, monitor checks and cleanup.
func NewForecastScheduler(cfg config.SchedulerConfig, batch *BatchForecaster, monitor *ForecastMonitor, cleanup *CleanupService, logger *logrus.Logger) *Scheduler {
	var jobs []Job
	if batch != nil {
		jobs = append(jobs, Job{Name: "update_all_forecasts", Interval: cfg.ForecastInterval, Run: func(ctx context.Context) error {
			_, err := batch.UpdateAll(ctx)
			return err
		}})
	}
	if monitor != nil {
		jobs = append(jobs, Job{Name: "monitor_forecasts", Interval: cfg.MonitorInterval, Run: func(ctx context.Context) error {
			_, err := monitor.RunAll(ctx)
			return err
		}})
	}
	if cleanup != nil {
		jobs = append(jobs, Job{Name: "cleanup_old_forecasts", Interval: cfg.CleanupInterval, Run: func(ctx context.Context) error {
			_, err := cleanup.RunCleanup(ctx)
			return err
		}})
	}
	return NewScheduler(logger, jobs...)
}

// Start launches one loop per enabled job.
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.WithField("job", job.Name).Info("Scheduled job disabled")
			continue
		}
		s.wg.Add(1)
		go s.loop(job)
		s.logger.WithFields(logrus.Fields{
			"job":      job.Name,
			"interval": job.Interval,
		}).Info("Scheduled job started")
	}
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(job)
		}
	}
}

func (s *Scheduler) runOnce(job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{"job": job.Name, "panic": r}).Error("Scheduled job panicked")
			s.record(job.Name, JobStatus{LastRun: start, Duration: time.Since(start), Error: "panic"})
		}
	}()

	err := job.Run(s.ctx)
	status := JobStatus{LastRun: start, Duration: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
		s.logger.WithField("job", job.Name).WithError(err).Error("Scheduled job failed")
	} else {
		s.logger.WithFields(logrus.Fields{"job": job.Name, "duration": status.Duration}).Debug("Scheduled job finished")
	}
	s.record(job.Name, status)
}

func (s *Scheduler) record(name string, status JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[name] = status
}

// Status returns the latest outcome of every job that has run.
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStatus, len(s.lastRun))
	for k, v := range s.lastRun {
		out[k] = v
	}
	return out
}

// Stop cancels running jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
