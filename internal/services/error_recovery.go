package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorRecoveryManager retries operations that fail with transient errors.
// Each operation name can carry its own RetryPolicy.
type ErrorRecoveryManager struct {
	logger        *logrus.Logger
	retryPolicies map[string]*RetryPolicy
	breakers      map[string]*CircuitBreaker
	mu            sync.RWMutex
	sleep         func(ctx context.Context, d time.Duration) error
}

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// NewErrorRecoveryManager creates a new error recovery manager with the default policies registered.
func NewErrorRecoveryManager(logger *logrus.Logger) *ErrorRecoveryManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	erm := &ErrorRecoveryManager{
		logger:        logger,
		retryPolicies: DefaultRetryPolicies(),
		breakers:      make(map[string]*CircuitBreaker),
		sleep:         sleepContext,
	}
	return erm
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RegisterRetryPolicy registers a retry policy for a specific operation
func (erm *ErrorRecoveryManager) RegisterRetryPolicy(name string, policy *RetryPolicy) {
	erm.mu.Lock()
	defer erm.mu.Unlock()
	erm.retryPolicies[name] = policy
}

// RegisterCircuitBreaker registers a circuit breaker for a specific operation
func (erm *ErrorRecoveryManager) RegisterCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	erm.mu.Lock()
	defer erm.mu.Unlock()
	cb := NewCircuitBreaker(name, config, erm.logger)
	erm.breakers[name] = cb
	return cb
}

// GetCircuitBreakerStatus returns the state and counters of every registered breaker
func (erm *ErrorRecoveryManager) GetCircuitBreakerStatus() map[string]interface{} {
	erm.mu.RLock()
	defer erm.mu.RUnlock()

	status := make(map[string]interface{}, len(erm.breakers))
	for name, cb := range erm.breakers {
		stats := cb.GetStats()
		status[name] = map[string]interface{}{
			"state":         cb.GetState().String(),
			"failed":        stats.FailedRequests,
			"rejected":      stats.RejectedRequests,
			"last_failure":  stats.LastFailureTime,
			"state_changes": stats.StateChanges,
		}
	}
	return status
}

// ExecuteWithRetry runs operation until it succeeds, returns an error retryable rejects,
// or the policy registered under operationName is exhausted. A nil retryable retries every error.
func (erm *ErrorRecoveryManager) ExecuteWithRetry(
	ctx context.Context,
	operationName string,
	retryable func(error) bool,
	operation func(ctx context.Context) error,
) error {
	start := time.Now()

	erm.mu.RLock()
	retryPolicy := erm.retryPolicies[operationName]
	cb := erm.breakers[operationName]
	erm.mu.RUnlock()

	if retryPolicy == nil {
		retryPolicy = DefaultRetryPolicies()["default"]
	}

	run := operation
	if cb != nil {
		run = func(ctx context.Context) error { return cb.Execute(ctx, operation) }
	}

	delay := retryPolicy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= retryPolicy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := run(ctx)
		if err == nil {
			if attempt > 0 {
				erm.logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  attempt + 1,
					"duration":  time.Since(start),
				}).Info("Operation recovered after retry")
			}
			return nil
		}

		lastErr = err
		if err == ErrCircuitOpen || (retryable != nil && !retryable(err)) {
			return err
		}
		if attempt == retryPolicy.MaxRetries {
			break
		}

		erm.logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).WithError(err).Warn("Operation failed, retrying")

		if err := erm.sleep(ctx, erm.calculateDelay(delay, retryPolicy)); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * retryPolicy.BackoffFactor)
		if delay > retryPolicy.MaxDelay {
			delay = retryPolicy.MaxDelay
		}
	}

	erm.logger.WithFields(logrus.Fields{
		"operation": operationName,
		"attempts":  retryPolicy.MaxRetries + 1,
		"duration":  time.Since(start),
	}).WithError(lastErr).Error("Operation failed after all retries")

	return lastErr
}

// calculateDelay applies up to ±12.5% jitter when the policy asks for it
func (erm *ErrorRecoveryManager) calculateDelay(baseDelay time.Duration, policy *RetryPolicy) time.Duration {
	if !policy.JitterEnabled || baseDelay <= 0 {
		return baseDelay
	}
	jitter := time.Duration(float64(baseDelay) * 0.25 * (rand.Float64() - 0.5))
	return baseDelay + jitter
}

// DefaultRetryPolicies returns default retry policies for common operations
func DefaultRetryPolicies() map[string]*RetryPolicy {
	return map[string]*RetryPolicy{
		"default": {
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"model_config_upsert": {
			MaxRetries:    5,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 1.5,
			JitterEnabled: true,
		},
		"forecast_write": {
			MaxRetries:    3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"alert_delivery": {
			MaxRetries:    2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      3 * time.Second,
			BackoffFactor: 2.5,
			JitterEnabled: true,
		},
	}
}
