package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeoutConfig defines timeout settings for different operation types
type TimeoutConfig struct {
	ScopeForecast  time.Duration
	DatabaseQuery  time.Duration
	CacheOperation time.Duration
	AlertDelivery  time.Duration
	HealthCheck    time.Duration
}

// TimeoutManager hands out deadline-bound contexts and tracks which operations are still running,
// so a stuck scope can be reported and cancelled on shutdown.
type TimeoutManager struct {
	config         *TimeoutConfig
	logger         *logrus.Logger
	activeContexts map[string]context.CancelFunc
	mu             sync.RWMutex
	defaultTimeout time.Duration
}

// OperationContext wraps a context with timeout and cancellation
type OperationContext struct {
	Ctx         context.Context
	Cancel      context.CancelFunc
	OperationID string
	StartTime   time.Time
	Timeout     time.Duration
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager(config *TimeoutConfig, logger *logrus.Logger) *TimeoutManager {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &TimeoutManager{
		config:         config,
		logger:         logger,
		activeContexts: make(map[string]context.CancelFunc),
		defaultTimeout: 30 * time.Second,
	}
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ScopeForecast:  2 * time.Minute,
		DatabaseQuery:  10 * time.Second,
		CacheOperation: 2 * time.Second,
		AlertDelivery:  15 * time.Second,
		HealthCheck:    3 * time.Second,
	}
}

// CreateOperationContextWithParent creates a new operation context with a parent context
func (tm *TimeoutManager) CreateOperationContextWithParent(parent context.Context, operationType string, operationID string) *OperationContext {
	timeout := tm.getTimeoutForOperation(operationType)
	ctx, cancel := context.WithTimeout(parent, timeout)

	tm.mu.Lock()
	tm.activeContexts[operationID] = cancel
	tm.mu.Unlock()

	return &OperationContext{
		Ctx:         ctx,
		Cancel:      cancel,
		OperationID: operationID,
		StartTime:   time.Now(),
		Timeout:     timeout,
	}
}

func (tm *TimeoutManager) getTimeoutForOperation(operationType string) time.Duration {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	var timeout time.Duration
	switch operationType {
	case "scope_forecast":
		timeout = tm.config.ScopeForecast
	case "database_query":
		timeout = tm.config.DatabaseQuery
	case "cache_operation":
		timeout = tm.config.CacheOperation
	case "alert_delivery":
		timeout = tm.config.AlertDelivery
	case "health_check":
		timeout = tm.config.HealthCheck
	}
	if timeout <= 0 {
		timeout = tm.defaultTimeout
	}
	return timeout
}

// CompleteOperation releases the context of a finished operation
func (tm *TimeoutManager) CompleteOperation(operationID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if cancel, exists := tm.activeContexts[operationID]; exists {
		cancel()
		delete(tm.activeContexts, operationID)
	}
}

// CancelAllOperations cancels every running operation
func (tm *TimeoutManager) CancelAllOperations() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for id, cancel := range tm.activeContexts {
		cancel()
		delete(tm.activeContexts, id)
	}
}

// GetActiveOperationCount returns the number of active operations
func (tm *TimeoutManager) GetActiveOperationCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.activeContexts)
}

// ExecuteWithTimeout runs operation under the budget of operationType. The operation must honor
// ctx; the call returns as soon as either the operation finishes or the budget runs out.
func (tm *TimeoutManager) ExecuteWithTimeout(
	parent context.Context,
	operationType string,
	operationID string,
	operation func(ctx context.Context) error,
) error {
	opCtx := tm.CreateOperationContextWithParent(parent, operationType, operationID)
	defer tm.CompleteOperation(operationID)

	done := make(chan error, 1)
	go func() {
		done <- operation(opCtx.Ctx)
	}()

	select {
	case err := <-done:
		tm.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"operation_id":   operationID,
			"duration":       time.Since(opCtx.StartTime),
			"success":        err == nil,
		}).Debug("Operation completed")
		return err

	case <-opCtx.Ctx.Done():
		tm.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"operation_id":   operationID,
			"duration":       time.Since(opCtx.StartTime),
			"timeout":        opCtx.Timeout,
		}).Warn("Operation timed out")
		return opCtx.Ctx.Err()
	}
}

// Shutdown gracefully shuts down the timeout manager
func (tm *TimeoutManager) Shutdown() {
	tm.CancelAllOperations()
	tm.logger.Info("Timeout manager shutdown complete")
}
