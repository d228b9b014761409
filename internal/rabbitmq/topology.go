package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueType selects exactly one queue flavour per declaration.
type QueueType int

const (
	// QueueTypeExclusive queues are private to this connection and removed
	// when it closes.
	QueueTypeExclusive QueueType = iota
	// QueueTypeAutoDelete queues are removed once the last consumer
	// disconnects.
	QueueTypeAutoDelete
	// QueueTypeDurable queues survive a broker restart.
	QueueTypeDurable
)

func (t QueueType) String() string {
	switch t {
	case QueueTypeExclusive:
		return "exclusive"
	case QueueTypeAutoDelete:
		return "auto_delete"
	case QueueTypeDurable:
		return "durable"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// flags maps the queue type to the AMQP queue declaration flags.
func (t QueueType) flags() (durable, autoDelete, exclusive bool, err error) {
	switch t {
	case QueueTypeExclusive:
		return false, false, true, nil
	case QueueTypeAutoDelete:
		return false, true, false, nil
	case QueueTypeDurable:
		return true, false, false, nil
	default:
		return false, false, false, fmt.Errorf("%w: %d", ErrInvalidQueueType, int(t))
	}
}

// QueueTTLArguments carries the optional expiry and dead-letter settings
// of a queue declaration. Construct it with NewQueueTTLArguments, which
// validates the combination eagerly; a nil *QueueTTLArguments means no
// extra arguments.
type QueueTTLArguments struct {
	queueTTL             *time.Duration
	messageTTL           *time.Duration
	deadLetterRoutingKey string
	deadLetterExchange   string
}

// TTLOption configures QueueTTLArguments.
type TTLOption func(*QueueTTLArguments)

// WithQueueTTL removes the queue itself after it has been unused for d.
func WithQueueTTL(d time.Duration) TTLOption {
	return func(a *QueueTTLArguments) {
		a.queueTTL = &d
	}
}

// WithMessageTTL expires individual messages after d.
func WithMessageTTL(d time.Duration) TTLOption {
	return func(a *QueueTTLArguments) {
		a.messageTTL = &d
	}
}

// WithDeadLetterRoutingKey routes expired or rejected messages to key.
func WithDeadLetterRoutingKey(key string) TTLOption {
	return func(a *QueueTTLArguments) {
		a.deadLetterRoutingKey = key
	}
}

// WithDeadLetterExchange publishes expired or rejected messages to the
// named exchange.
func WithDeadLetterExchange(name string) TTLOption {
	return func(a *QueueTTLArguments) {
		a.deadLetterExchange = name
	}
}

// NewQueueTTLArguments builds the argument set and validates it. A queue
// TTL must be strictly positive, a message TTL must be strictly positive
// and must not exceed the queue TTL when both are set.
func NewQueueTTLArguments(opts ...TTLOption) (*QueueTTLArguments, error) {
	a := &QueueTTLArguments{}
	for _, opt := range opts {
		opt(a)
	}

	if a.queueTTL != nil && *a.queueTTL <= 0 {
		return nil, fmt.Errorf("%w: queue TTL %v must be greater than 0", ErrInvalidTTL, *a.queueTTL)
	}
	if a.messageTTL != nil && *a.messageTTL <= 0 {
		return nil, fmt.Errorf("%w: message TTL %v must be greater than 0", ErrInvalidTTL, *a.messageTTL)
	}
	if a.queueTTL != nil && a.messageTTL != nil && *a.messageTTL > *a.queueTTL {
		return nil, fmt.Errorf("%w: message TTL %v exceeds queue TTL %v",
			ErrInvalidTTL, *a.messageTTL, *a.queueTTL)
	}
	return a, nil
}

// Table renders the arguments in their wire form. Durations map to whole
// milliseconds.
func (a *QueueTTLArguments) Table() amqp.Table {
	if a == nil {
		return nil
	}
	table := amqp.Table{}
	if a.queueTTL != nil {
		table["x-expires"] = a.queueTTL.Milliseconds()
	}
	if a.messageTTL != nil {
		table["x-message-ttl"] = a.messageTTL.Milliseconds()
	}
	if a.deadLetterRoutingKey != "" {
		table["x-dead-letter-routing-key"] = a.deadLetterRoutingKey
	}
	if a.deadLetterExchange != "" {
		table["x-dead-letter-exchange"] = a.deadLetterExchange
	}
	if len(table) == 0 {
		return nil
	}
	return table
}
