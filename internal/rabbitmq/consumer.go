package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageCallback processes one message body. It runs on the
// subscription's own goroutine, never on the connection loop, so a slow
// callback only delays its own queue. Returning an error requeues the
// message and terminates the subscription.
type MessageCallback func(body []byte) error

// QueueSubscription describes one queue to declare and consume.
type QueueSubscription struct {
	// QueueName is the queue to declare and subscribe to.
	QueueName string
	// Callback is invoked once per received message.
	Callback MessageCallback
	// QueueType selects the declaration flavour of the queue.
	QueueType QueueType
	// BindToRoutingKey additionally binds the queue to this routing key.
	// Requires ExchangeName.
	BindToRoutingKey string
	// ExchangeName binds the queue to a previously declared exchange. When
	// BindToRoutingKey is empty the queue is bound under its own name.
	ExchangeName string
	// DisconnectAfterMessages ends the subscription after this many
	// successfully processed messages. Zero means unlimited.
	DisconnectAfterMessages int
	// TTL holds optional expiry and dead-letter arguments for the queue
	// declaration.
	TTL *QueueTTLArguments
}

// subscription is the registry entry for a running queue consumer.
type subscription struct {
	queue       string
	consumerTag string
	cancel      context.CancelFunc
	done        chan struct{}
}

// queueConsumer drains one queue until cancelled, its message limit is
// reached, or the callback fails.
type queueConsumer struct {
	queue      string
	deliveries <-chan amqp.Delivery
	limit      int
	callback   MessageCallback
	logger     *slog.Logger
}

// run processes deliveries strictly in order. With prefetch 1 the broker
// holds back message N+1 until message N is acknowledged.
func (c *queueConsumer) run(ctx context.Context) error {
	processed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-c.deliveries:
			if !ok {
				// Consumer cancelled on the broker side or channel closed.
				return nil
			}
			if err := c.handle(delivery); err != nil {
				return err
			}
			processed++
			if c.limit > 0 && processed >= c.limit {
				c.logger.Debug("queue subscription reached its message limit",
					"queue", c.queue,
					"messages", processed)
				return nil
			}
		}
	}
}

// handle runs the callback for a single delivery and settles it:
// acknowledge on success, requeue on failure. A failed callback is never
// silently dropped; the error terminates the subscription.
func (c *queueConsumer) handle(delivery amqp.Delivery) error {
	c.logger.Debug("received message on queue subscription",
		"queue", c.queue,
		"bytes", len(delivery.Body))

	if err := c.invoke(delivery.Body); err != nil {
		callbackFailures.WithLabelValues(c.queue).Inc()
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to requeue message after callback failure",
				"queue", c.queue,
				"error", nackErr)
		}
		return &ConsumerError{Queue: c.queue, Op: "callback", Err: err, Timestamp: time.Now()}
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		return &ConsumerError{Queue: c.queue, Op: "ack", Err: ackErr, Timestamp: time.Now()}
	}
	messagesConsumed.WithLabelValues(c.queue).Inc()
	return nil
}

// invoke calls the user callback, converting a panic into an error so a
// misbehaving handler cannot take down the process.
func (c *queueConsumer) invoke(body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return c.callback(body)
}
