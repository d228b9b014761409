package rabbitmq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Fake broker plumbing shared by the tests in this package. The fakes
// implement just enough routing to exercise the connection loop and its
// registries without a live broker.

type fakeNack struct {
	tag     uint64
	requeue bool
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  []uint64
	nacks []fakeNack
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, fakeNack{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) ackCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks)
}

func (a *fakeAcknowledger) nackList() []fakeNack {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]fakeNack(nil), a.nacks...)
}

type fakePublished struct {
	exchange   string
	routingKey string
	body       []byte
	mode       uint8
}

type fakeBinding struct {
	queue      string
	routingKey string
	exchange   string
}

type fakeQueueDecl struct {
	durable    bool
	autoDelete bool
	exclusive  bool
	args       amqp.Table
}

type fakeChannel struct {
	mu          sync.Mutex
	ack         *fakeAcknowledger
	qosCount    int
	exchanges   []string
	queues      map[string]fakeQueueDecl
	bindings    []fakeBinding
	consumers   map[string]string // consumer tag -> queue
	deliveries  map[string]chan amqp.Delivery
	published   []fakePublished
	deleted     []string
	cancelled   []string
	closed      bool
	deliveryTag uint64

	consumeErr error
	publishErr error
	closeDelay time.Duration
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		ack:        &fakeAcknowledger{},
		queues:     make(map[string]fakeQueueDecl),
		consumers:  make(map[string]string),
		deliveries: make(map[string]chan amqp.Delivery),
	}
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qosCount = prefetchCount
	return nil
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, name)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[name] = fakeQueueDecl{durable: durable, autoDelete: autoDelete, exclusive: exclusive, args: args}
	if _, ok := c.deliveries[name]; !ok {
		c.deliveries[name] = make(chan amqp.Delivery, 16)
	}
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, fakeBinding{queue: name, routingKey: key, exchange: exchange})
	return nil
}

func (c *fakeChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queues, name)
	c.deleted = append(c.deleted, name)
	if ch, ok := c.deliveries[name]; ok {
		close(ch)
		delete(c.deliveries, name)
	}
	return 0, nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	ch, ok := c.deliveries[queue]
	if !ok {
		return nil, fmt.Errorf("no such queue: %s", queue)
	}
	c.consumers[consumer] = queue
	return ch, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, consumer)
	queue, ok := c.consumers[consumer]
	if !ok {
		return nil
	}
	delete(c.consumers, consumer)
	if ch, ok := c.deliveries[queue]; ok {
		close(ch)
		delete(c.deliveries, queue)
	}
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, fakePublished{
		exchange:   exchange,
		routingKey: key,
		body:       append([]byte(nil), msg.Body...),
		mode:       msg.DeliveryMode,
	})

	var targets []string
	if exchange == "" {
		if _, ok := c.queues[key]; ok {
			targets = append(targets, key)
		}
	} else {
		for _, b := range c.bindings {
			if b.exchange == exchange && b.routingKey == key {
				targets = append(targets, b.queue)
			}
		}
	}

	for _, queue := range targets {
		ch, ok := c.deliveries[queue]
		if !ok {
			continue
		}
		c.deliveryTag++
		delivery := amqp.Delivery{
			Acknowledger: c.ack,
			DeliveryTag:  c.deliveryTag,
			Exchange:     exchange,
			RoutingKey:   key,
			Body:         append([]byte(nil), msg.Body...),
		}
		select {
		case ch <- delivery:
		default:
		}
	}
	return nil
}

func (c *fakeChannel) Close() error {
	if c.closeDelay > 0 {
		time.Sleep(c.closeDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for name, ch := range c.deliveries {
		close(ch)
		delete(c.deliveries, name)
	}
	return nil
}

func (c *fakeChannel) publishedMessages() []fakePublished {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakePublished(nil), c.published...)
}

func (c *fakeChannel) declaredQueue(name string) (fakeQueueDecl, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	decl, ok := c.queues[name]
	return decl, ok
}

func (c *fakeChannel) deletedQueues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

func (c *fakeChannel) cancelledConsumers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

type fakeConn struct {
	channel    *fakeChannel
	channelErr error

	mu         sync.Mutex
	closeCount int
}

func (c *fakeConn) Channel() (amqpChannel, error) {
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	return c.channel, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return nil
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBroker wires a broker interface to the fakes and starts nothing.
func newTestBroker(t *testing.T, options ...Option) (*BrokerInterface, *fakeConn, *fakeChannel) {
	t.Helper()
	channel := newFakeChannel()
	conn := &fakeConn{channel: channel}
	options = append([]Option{
		WithLogger(discardLogger()),
		WithStopTimeout(500 * time.Millisecond),
	}, options...)
	broker := NewBrokerInterface(Config{}, options...)
	broker.dial = func(string) (amqpConnection, error) {
		return conn, nil
	}
	return broker, conn, channel
}
