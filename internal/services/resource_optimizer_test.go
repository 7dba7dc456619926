package services

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestOptimizer(cfg ResourceOptimizerConfig, cores int, memoryGB float64) *ResourceOptimizer {
	ro := NewResourceOptimizer(cfg, logrus.New())
	ro.mu.Lock()
	ro.cpuCores = cores
	ro.memoryGB = memoryGB
	ro.recalculate()
	ro.mu.Unlock()
	return ro
}

// TestNewResourceOptimizer_WithDefaults tests that zero config values are replaced
func TestNewResourceOptimizer_WithDefaults(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{}, nil)

	assert.Equal(t, 5*time.Minute, ro.config.OptimizationInterval)
	assert.Equal(t, 50, ro.config.MaxHistorySize)
	assert.Equal(t, 2, ro.config.MinWorkers)
	assert.Equal(t, 16, ro.config.MaxWorkers)
	assert.GreaterOrEqual(t, ro.GetOptimalConcurrency().MaxWorkers, 2)
	assert.LessOrEqual(t, ro.GetOptimalConcurrency().MaxWorkers, 16)
}

// TestResourceOptimizer_recalculate tests worker sizing from cores and memory
func TestResourceOptimizer_recalculate(t *testing.T) {
	tests := []struct {
		name     string
		cores    int
		memoryGB float64
		expected int
	}{
		{"plenty of memory", 4, 16, 8},
		{"capped by max workers", 32, 64, 12},
		{"medium memory", 4, 6, 6},
		{"low memory", 4, 2, 4},
		{"floor at min workers", 1, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ro := newTestOptimizer(ResourceOptimizerConfig{MinWorkers: 2, MaxWorkers: 12}, tt.cores, tt.memoryGB)
			opt := ro.GetOptimalConcurrency()
			assert.Equal(t, tt.expected, opt.MaxWorkers)
			assert.Equal(t, max(1, tt.expected/2), opt.MaxConcurrentWrites)
		})
	}
}

// TestResourceOptimizer_HighLoadReducesWorkers tests the CPU load factor
func TestResourceOptimizer_HighLoadReducesWorkers(t *testing.T) {
	ro := newTestOptimizer(ResourceOptimizerConfig{MaxWorkers: 20}, 5, 16)
	assert.Equal(t, 10, ro.GetOptimalConcurrency().MaxWorkers)

	ro.mu.Lock()
	ro.currentCPUUsage = 95
	ro.recalculate()
	ro.mu.Unlock()

	assert.Equal(t, 7, ro.GetOptimalConcurrency().MaxWorkers)
}

// TestResourceOptimizer_RecordBatch tests history bookkeeping and trimming
func TestResourceOptimizer_RecordBatch(t *testing.T) {
	ro := newTestOptimizer(ResourceOptimizerConfig{MaxHistorySize: 3}, 4, 16)

	for i := 1; i <= 5; i++ {
		ro.RecordBatch(10, i, time.Duration(i)*time.Second)
	}

	history := ro.GetHistory(0)
	assert.Len(t, history, 3)
	assert.Equal(t, 30.0, history[0].FailRate)
	assert.Equal(t, 50.0, history[2].FailRate)
	assert.Len(t, ro.GetHistory(1), 1)
}

// TestResourceOptimizer_OptimizeIfNeeded tests interval and pressure triggers
func TestResourceOptimizer_OptimizeIfNeeded(t *testing.T) {
	ro := newTestOptimizer(ResourceOptimizerConfig{OptimizationInterval: time.Hour}, 4, 16)

	assert.True(t, ro.OptimizeIfNeeded(), "first call has never optimized")
	assert.False(t, ro.OptimizeIfNeeded(), "interval has not elapsed")

	for i := 0; i < 5; i++ {
		ro.RecordBatch(10, 5, time.Second)
	}
	assert.True(t, ro.OptimizeIfNeeded(), "high failure rate forces a recalculation")
}

// TestResourceOptimizer_GetSystemInfo tests the reported fields
func TestResourceOptimizer_GetSystemInfo(t *testing.T) {
	ro := newTestOptimizer(ResourceOptimizerConfig{}, 4, 16)
	info := ro.GetSystemInfo()

	for _, key := range []string{"cpu_cores", "memory_gb", "current_cpu", "current_memory", "goroutines", "optimal_config"} {
		assert.Contains(t, info, key)
	}
	assert.Equal(t, 4, info["cpu_cores"])
}
