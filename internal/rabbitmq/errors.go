package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Lifecycle errors
	ErrNotRunning     = errors.New("rabbitmq: broker interface is not running")
	ErrAlreadyStarted = errors.New("rabbitmq: broker interface already started")
	ErrStopTimeout    = errors.New("rabbitmq: timed out waiting for graceful stop")

	// Configuration errors, raised before any broker interaction
	ErrSubscriptionExists     = errors.New("rabbitmq: queue subscription already exists")
	ErrExchangeNotDeclared    = errors.New("rabbitmq: exchange not declared")
	ErrBindingWithoutExchange = errors.New("rabbitmq: routing key binding requires an exchange name")
	ErrNilCallback            = errors.New("rabbitmq: subscription callback must not be nil")
	ErrInvalidQueueType       = errors.New("rabbitmq: unknown queue type")
	ErrInvalidTTL             = errors.New("rabbitmq: invalid TTL configuration")
)

// TransportError represents a failure of an operation against the broker.
type TransportError struct {
	Op        string    // Operation that failed
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rabbitmq transport error: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConsumerError represents a failure inside a queue subscription.
type ConsumerError struct {
	Queue     string    // Queue name
	Op        string    // Operation that failed
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("rabbitmq consumer error: %s failed on queue %s: %v", e.Op, e.Queue, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}

// transportErr wraps err with the operation that triggered it.
func transportErr(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, Timestamp: time.Now()}
}
