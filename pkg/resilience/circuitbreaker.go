package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"companion-chat/backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the protected function while the breaker is open
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	// StateClosed means the circuit is closed and requests are allowed to pass through
	StateClosed CircuitBreakerState = "closed"
	// StateOpen means the circuit is open and requests are being short-circuited
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen means the circuit is allowing a limited number of test requests
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreaker implements the Circuit Breaker pattern
type CircuitBreaker struct {
	name             string
	state            CircuitBreakerState
	failureThreshold uint
	successThreshold uint
	retryTimeout     time.Duration
	isFailure        func(error) bool
	onStateChange    func(name string, from, to CircuitBreakerState)
	now              func() time.Time
	mutex            sync.Mutex
	failureCount     uint
	successCount     uint
	halfOpenInFlight uint
	lastFailureTime  time.Time
	nextAttemptTime  time.Time
	log              *logger.Logger
	// Metrics
	totalFailures    uint64
	totalSuccesses   uint64
	totalRejected    uint64
	totalRequests    uint64
	openCircuitCount uint64
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	RetryTimeout     time.Duration
	// IsFailure decides which errors count against the breaker.
	// nil counts every error except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called with the lock held; keep it cheap.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     30 * time.Second,
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	if log == nil {
		log = logger.GetGlobal()
	}
	isFailure := config.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:             config.Name,
		state:            StateClosed,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		retryTimeout:     config.RetryTimeout,
		isFailure:        isFailure,
		onStateChange:    config.OnStateChange,
		now:              time.Now,
		log:              log,
	}
}

// Execute runs a function through the circuit breaker
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error { return fn() })
}

// ExecuteContext runs fn through the breaker, passing ctx along.
// ErrCircuitOpen is returned when the call was short-circuited.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allowRequest() {
		cb.log.Warn("Circuit breaker preventing request",
			"name", cb.name,
			"state", string(cb.GetState()),
		)
		return ErrCircuitOpen
	}

	// Start timer for the operation
	startTime := cb.now()

	finished := false
	defer func() {
		if !finished {
			cb.release()
		}
	}()

	err := fn(ctx)
	finished = true

	switch {
	case err == nil:
		cb.recordSuccess()
	case cb.isFailure(err):
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.name,
			"error", err.Error(),
			"duration", cb.now().Sub(startTime).String(),
		)
	default:
		// Cancellations and rejected requests say nothing about upstream health
		cb.release()
	}
	return err
}

// allowRequest checks if a request should be allowed to proceed
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		cb.totalRequests++
		return true

	case StateOpen:
		// Check if retry timeout has expired
		if cb.now().After(cb.nextAttemptTime) {
			cb.transition(StateHalfOpen)
			cb.halfOpenInFlight++
			cb.totalRequests++
			return true
		}

	case StateHalfOpen:
		// Only as many trial calls as needed to close again
		if cb.successCount+cb.halfOpenInFlight < cb.successThreshold {
			cb.halfOpenInFlight++
			cb.totalRequests++
			return true
		}
	}

	cb.totalRejected++
	return false
}

// recordSuccess records a successful request
func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.releaseSlot()
		cb.successCount++
		// If we've reached the success threshold, transition to closed
		if cb.successCount >= cb.successThreshold {
			cb.transition(StateClosed)
		}
	}
}

// recordFailure records a failed request
func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		// If we've reached the failure threshold, transition to open
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(StateOpen)
		}

	case StateHalfOpen:
		cb.releaseSlot()
		// Any failure in half-open state should transition back to open
		cb.transition(StateOpen)
	}
}

// release frees a half-open slot without recording an outcome. It runs when
// fn panicked or returned an error that does not count as a failure.
func (cb *CircuitBreaker) release() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen {
		cb.releaseSlot()
	}
}

// releaseSlot decrements the in-flight trial call count. Caller holds the lock.
func (cb *CircuitBreaker) releaseSlot() {
	if cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}
}

// transition moves to the given state. Caller holds the lock.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	from := cb.state
	cb.state = to

	switch to {
	case StateOpen:
		cb.openCircuitCount++
		cb.successCount = 0
		cb.nextAttemptTime = cb.now().Add(cb.retryTimeout)
		cb.log.Info("Circuit breaker opened",
			"name", cb.name,
			"failures", cb.failureCount,
			"nextAttempt", cb.nextAttemptTime.Format(time.RFC3339),
		)
	case StateHalfOpen:
		cb.successCount = 0
		cb.halfOpenInFlight = 0
		cb.log.Info("Circuit breaker half-open", "name", cb.name)
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.halfOpenInFlight = 0
		cb.log.Info("Circuit breaker closed", "name", cb.name)
	}

	if cb.onStateChange != nil && from != to {
		cb.onStateChange(cb.name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state
}

// Name returns the breaker's name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// GetMetrics returns the current metrics of the circuit breaker
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return map[string]interface{}{
		"name":               cb.name,
		"state":              string(cb.state),
		"total_requests":     cb.totalRequests,
		"total_failures":     cb.totalFailures,
		"total_successes":    cb.totalSuccesses,
		"total_rejected":     cb.totalRejected,
		"open_circuit_count": cb.openCircuitCount,
		"last_failure_time":  cb.lastFailureTime,
	}
}
