package services

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceOptimizer sizes the batch worker pool from the host's cores, memory and current load.
type ResourceOptimizer struct {
	mu                 sync.RWMutex
	config             ResourceOptimizerConfig
	cpuCores           int
	memoryGB           float64
	currentCPUUsage    float64
	currentMemoryUsage float64
	optimal            OptimalConcurrency
	lastOptimization   time.Time
	history            []BatchSnapshot
	logger             *logrus.Logger
}

// OptimalConcurrency holds the calculated concurrency limits
type OptimalConcurrency struct {
	MaxWorkers          int     `json:"max_workers"`
	MaxConcurrentWrites int     `json:"max_concurrent_writes"`
	MemoryThreshold     float64 `json:"memory_threshold"`
	CPUThreshold        float64 `json:"cpu_threshold"`
}

// BatchSnapshot captures how one batch run went
type BatchSnapshot struct {
	Timestamp  time.Time     `json:"timestamp"`
	CPUUsage   float64       `json:"cpu_usage"`
	Memory     float64       `json:"memory_usage"`
	Goroutines int           `json:"goroutines"`
	Scopes     int           `json:"scopes"`
	FailRate   float64       `json:"fail_rate"`
	Duration   time.Duration `json:"duration"`
}

// ResourceOptimizerConfig holds configuration for the resource optimizer
type ResourceOptimizerConfig struct {
	OptimizationInterval time.Duration `mapstructure:"optimization_interval"`
	MaxHistorySize       int           `mapstructure:"max_history_size"`
	CPUThreshold         float64       `mapstructure:"cpu_threshold"`
	MemoryThreshold      float64       `mapstructure:"memory_threshold"`
	MinWorkers           int           `mapstructure:"min_workers"`
	MaxWorkers           int           `mapstructure:"max_workers"`
}

func (c *ResourceOptimizerConfig) applyDefaults() {
	if c.OptimizationInterval == 0 {
		c.OptimizationInterval = 5 * time.Minute
	}
	if c.MaxHistorySize == 0 {
		c.MaxHistorySize = 50
	}
	if c.CPUThreshold == 0 {
		c.CPUThreshold = 80.0
	}
	if c.MemoryThreshold == 0 {
		c.MemoryThreshold = 85.0
	}
	if c.MinWorkers == 0 {
		c.MinWorkers = 2
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 16
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
}

// NewResourceOptimizer creates a new resource optimizer
func NewResourceOptimizer(config ResourceOptimizerConfig, logger *logrus.Logger) *ResourceOptimizer {
	config.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ro := &ResourceOptimizer{
		config:   config,
		cpuCores: runtime.NumCPU(),
		logger:   logger,
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		ro.memoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
	} else {
		ro.logger.WithError(err).Warn("Could not get memory info, using default")
		ro.memoryGB = 8.0
	}

	ro.mu.Lock()
	ro.recalculate()
	ro.mu.Unlock()

	ro.logger.WithFields(logrus.Fields{
		"cpu_cores":   ro.cpuCores,
		"memory_gb":   ro.memoryGB,
		"max_workers": ro.optimal.MaxWorkers,
	}).Info("Resource optimizer initialized")

	return ro
}

// recalculate derives the limits from the current readings. Callers hold mu.
func (ro *ResourceOptimizer) recalculate() {
	cfg := ro.config

	workers := ro.cpuCores * 2
	if workers < cfg.MinWorkers {
		workers = cfg.MinWorkers
	}
	if workers > cfg.MaxWorkers {
		workers = cfg.MaxWorkers
	}

	memoryFactor := 1.0
	if ro.memoryGB < 4.0 {
		memoryFactor = 0.5
	} else if ro.memoryGB < 8.0 {
		memoryFactor = 0.75
	}

	loadFactor := 1.0
	if ro.currentCPUUsage > cfg.CPUThreshold {
		loadFactor = 0.7
	} else if ro.currentMemoryUsage > cfg.MemoryThreshold {
		loadFactor = 0.8
	}

	workers = int(float64(workers) * memoryFactor * loadFactor)
	if workers < cfg.MinWorkers {
		workers = cfg.MinWorkers
	}

	writes := workers / 2
	if writes < 1 {
		writes = 1
	}

	ro.optimal = OptimalConcurrency{
		MaxWorkers:          workers,
		MaxConcurrentWrites: writes,
		MemoryThreshold:     cfg.MemoryThreshold,
		CPUThreshold:        cfg.CPUThreshold,
	}
}

// GetOptimalConcurrency returns the current optimal concurrency settings
func (ro *ResourceOptimizer) GetOptimalConcurrency() OptimalConcurrency {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.optimal
}

// UpdateSystemMetrics samples CPU and memory usage
func (ro *ResourceOptimizer) UpdateSystemMetrics(ctx context.Context) error {
	cpuPercent, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get memory usage: %w", err)
	}

	ro.mu.Lock()
	if len(cpuPercent) > 0 {
		ro.currentCPUUsage = cpuPercent[0]
	}
	ro.currentMemoryUsage = memInfo.UsedPercent
	ro.mu.Unlock()
	return nil
}

// RecordBatch appends the outcome of a batch run to the history
func (ro *ResourceOptimizer) RecordBatch(scopes, failed int, duration time.Duration) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	var failRate float64
	if scopes > 0 {
		failRate = float64(failed) / float64(scopes) * 100
	}
	ro.history = append(ro.history, BatchSnapshot{
		Timestamp:  time.Now(),
		CPUUsage:   ro.currentCPUUsage,
		Memory:     ro.currentMemoryUsage,
		Goroutines: runtime.NumGoroutine(),
		Scopes:     scopes,
		FailRate:   failRate,
		Duration:   duration,
	})
	if len(ro.history) > ro.config.MaxHistorySize {
		ro.history = ro.history[len(ro.history)-ro.config.MaxHistorySize:]
	}
}

// OptimizeIfNeeded recalculates the limits once the interval has passed or the recent
// runs show the host under pressure.
func (ro *ResourceOptimizer) OptimizeIfNeeded() bool {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	if time.Since(ro.lastOptimization) < ro.config.OptimizationInterval && !ro.underPressure() {
		return false
	}

	ro.recalculate()
	ro.lastOptimization = time.Now()
	ro.logger.WithField("max_workers", ro.optimal.MaxWorkers).Info("Recalculated batch concurrency")
	return true
}

// underPressure looks at the last five batch runs. Callers hold mu.
func (ro *ResourceOptimizer) underPressure() bool {
	if len(ro.history) < 5 {
		return false
	}
	recent := ro.history[len(ro.history)-5:]

	var avgCPU, avgMemory, avgFail float64
	for _, s := range recent {
		avgCPU += s.CPUUsage
		avgMemory += s.Memory
		avgFail += s.FailRate
	}
	n := float64(len(recent))
	return avgCPU/n > 85.0 || avgMemory/n > 90.0 || avgFail/n > 5.0
}

// GetHistory returns up to limit of the most recent batch snapshots
func (ro *ResourceOptimizer) GetHistory(limit int) []BatchSnapshot {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	if limit <= 0 || limit > len(ro.history) {
		limit = len(ro.history)
	}
	out := make([]BatchSnapshot, limit)
	copy(out, ro.history[len(ro.history)-limit:])
	return out
}

// GetSystemInfo returns current system information
func (ro *ResourceOptimizer) GetSystemInfo() map[string]interface{} {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	return map[string]interface{}{
		"cpu_cores":         ro.cpuCores,
		"memory_gb":         ro.memoryGB,
		"current_cpu":       ro.currentCPUUsage,
		"current_memory":    ro.currentMemoryUsage,
		"goroutines":        runtime.NumGoroutine(),
		"last_optimization": ro.lastOptimization,
		"optimal_config":    ro.optimal,
	}
}
