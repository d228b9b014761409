package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// defaultStopTimeout bounds how long Stop waits for a graceful shutdown
// before terminating the connection loop regardless.
const defaultStopTimeout = 5 * time.Second

// BrokerInterface owns a single AMQP connection and channel. All broker
// I/O runs on one dedicated goroutine, the connection loop, which also
// exclusively owns the exchange and subscription registries. Exported
// methods are safe to call from any goroutine: they schedule work onto
// the loop and block until it completed, propagating its error.
type BrokerInterface struct {
	config      Config
	logger      *slog.Logger
	dial        dialFunc
	stopTimeout time.Duration

	ops   chan brokerOp
	ready chan struct{} // closed once setup succeeded or failed
	quit  chan struct{} // closed to force the loop to exit
	done  chan struct{} // closed when the loop has exited

	startErr error

	// Loop-owned state. Only the connection loop goroutine touches these
	// after Start, so they need no locking.
	conn      amqpConnection
	channel   amqpChannel
	exchanges map[string]struct{}
	subs      map[string]*subscription

	started  atomic.Bool
	stopMu   sync.Mutex
	stopping bool
}

// brokerOp is one unit of work for the connection loop.
type brokerOp struct {
	fn     func() error
	result chan error
}

// Option configures the BrokerInterface.
type Option func(*BrokerInterface)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *BrokerInterface) {
		b.logger = logger
	}
}

// WithStopTimeout overrides how long Stop waits for graceful shutdown.
func WithStopTimeout(d time.Duration) Option {
	return func(b *BrokerInterface) {
		b.stopTimeout = d
	}
}

// NewBrokerInterface creates a broker interface. It does not connect;
// call Start.
func NewBrokerInterface(config Config, options ...Option) *BrokerInterface {
	b := &BrokerInterface{
		config:      config.withDefaults(),
		logger:      slog.Default(),
		dial:        defaultDial,
		stopTimeout: defaultStopTimeout,
		ops:         make(chan brokerOp),
		ready:       make(chan struct{}),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		exchanges:   make(map[string]struct{}),
		subs:        make(map[string]*subscription),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// Start spawns the connection loop, connects to the broker, and blocks
// until the connection is ready or setup failed. On failure the loop is
// gone and every later call returns ErrNotRunning.
func (b *BrokerInterface) Start() error {
	if b.started.Swap(true) {
		return ErrAlreadyStarted
	}

	go b.run()
	<-b.ready
	return b.startErr
}

// run is the connection loop. It performs setup as its first act and then
// serves scheduled operations until forced to quit.
func (b *BrokerInterface) run() {
	defer close(b.done)

	if err := b.setup(); err != nil {
		b.startErr = err
		close(b.ready)
		return
	}
	close(b.ready)

	for {
		select {
		case op := <-b.ops:
			op.result <- op.fn()
		case <-b.quit:
			return
		}
	}
}

// setup dials the broker and opens the channel with prefetch 1: the next
// message is not fetched until the current one is acknowledged.
func (b *BrokerInterface) setup() error {
	b.logger.Info("broker interface connecting",
		"host", b.config.Host,
		"port", b.config.Port,
		"user", b.config.Username,
		"vhost", b.config.VirtualHost)

	conn, err := b.dial(b.config.URL())
	if err != nil {
		return transportErr("connect", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return transportErr("open channel", err)
	}

	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return transportErr("set qos", err)
	}

	b.conn = conn
	b.channel = channel
	return nil
}

// submit schedules fn on the connection loop and blocks until it ran.
func (b *BrokerInterface) submit(fn func() error) error {
	if !b.started.Load() {
		return ErrNotRunning
	}

	op := brokerOp{fn: fn, result: make(chan error, 1)}

	select {
	case b.ops <- op:
	case <-b.done:
		return ErrNotRunning
	}

	select {
	case err := <-op.result:
		return err
	case <-b.done:
		return ErrNotRunning
	}
}

// submitWait is submit with an overall deadline, used by Stop.
func (b *BrokerInterface) submitWait(fn func() error, timeout time.Duration) error {
	op := brokerOp{fn: fn, result: make(chan error, 1)}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b.ops <- op:
	case <-b.done:
		return ErrNotRunning
	case <-timer.C:
		return ErrStopTimeout
	}

	select {
	case err := <-op.result:
		return err
	case <-b.done:
		return ErrNotRunning
	case <-timer.C:
		return ErrStopTimeout
	}
}

// submitAsync schedules fn without waiting for its result. Used by
// consumer goroutines for their own cleanup; dropped once the loop is
// gone.
func (b *BrokerInterface) submitAsync(fn func() error) {
	op := brokerOp{fn: fn, result: make(chan error, 1)}
	select {
	case b.ops <- op:
	case <-b.done:
	}
}

// DeclareExchange declares a direct, durable exchange and records it so
// it may be used as a publish target and binding source. Declaring the
// same exchange twice is a no-op.
func (b *BrokerInterface) DeclareExchange(name string) error {
	return b.submit(func() error {
		return b.declareExchange(name)
	})
}

func (b *BrokerInterface) declareExchange(name string) error {
	if _, ok := b.exchanges[name]; ok {
		return nil
	}
	if err := b.channel.ExchangeDeclare(name, "direct", true, false, false, false, nil); err != nil {
		return transportErr("declare exchange "+name, err)
	}
	b.exchanges[name] = struct{}{}
	b.logger.Info("declared exchange", "exchange", name)
	return nil
}

// AddQueueSubscription declares the queue described by sub and starts
// consuming it. Configuration problems fail before any broker call.
func (b *BrokerInterface) AddQueueSubscription(sub QueueSubscription) error {
	if sub.Callback == nil {
		return fmt.Errorf("%w: queue %s", ErrNilCallback, sub.QueueName)
	}
	if sub.BindToRoutingKey != "" && sub.ExchangeName == "" {
		return fmt.Errorf("%w: routing key %s on queue %s",
			ErrBindingWithoutExchange, sub.BindToRoutingKey, sub.QueueName)
	}
	if _, _, _, err := sub.QueueType.flags(); err != nil {
		return err
	}

	return b.submit(func() error {
		return b.addQueueSubscription(sub)
	})
}

func (b *BrokerInterface) addQueueSubscription(sub QueueSubscription) error {
	if _, ok := b.subs[sub.QueueName]; ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionExists, sub.QueueName)
	}
	if sub.ExchangeName != "" {
		if _, ok := b.exchanges[sub.ExchangeName]; !ok {
			return fmt.Errorf("%w: %s", ErrExchangeNotDeclared, sub.ExchangeName)
		}
	}

	durable, autoDelete, exclusive, err := sub.QueueType.flags()
	if err != nil {
		return err
	}

	b.logger.Info("declaring queue and adding subscription",
		"queue", sub.QueueName,
		"type", sub.QueueType.String())
	if _, err := b.channel.QueueDeclare(
		sub.QueueName, durable, autoDelete, exclusive, false, sub.TTL.Table(),
	); err != nil {
		return transportErr("declare queue "+sub.QueueName, err)
	}

	if sub.ExchangeName != "" {
		routingKey := sub.BindToRoutingKey
		if routingKey == "" {
			routingKey = sub.QueueName
		}
		b.logger.Info("binding queue",
			"queue", sub.QueueName,
			"exchange", sub.ExchangeName,
			"routingKey", routingKey)
		if err := b.channel.QueueBind(sub.QueueName, routingKey, sub.ExchangeName, false, nil); err != nil {
			return transportErr("bind queue "+sub.QueueName, err)
		}
	}

	consumerTag := sub.QueueName + "-" + uuid.NewString()
	deliveries, err := b.channel.Consume(sub.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return transportErr("consume queue "+sub.QueueName, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &subscription{
		queue:       sub.QueueName,
		consumerTag: consumerTag,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	consumer := &queueConsumer{
		queue:      sub.QueueName,
		deliveries: deliveries,
		limit:      sub.DisconnectAfterMessages,
		callback:   sub.Callback,
		logger:     b.logger,
	}
	b.subs[sub.QueueName] = entry

	go func() {
		defer close(entry.done)
		if err := consumer.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("queue subscription terminated",
				"queue", entry.queue,
				"error", err)
		}
		b.submitAsync(func() error {
			return b.finishSubscription(entry)
		})
	}()

	return nil
}

// finishSubscription cleans up after a consumer that terminated on its
// own: message limit reached, callback failure, or delivery channel
// closed. The queue itself stays on the broker.
func (b *BrokerInterface) finishSubscription(entry *subscription) error {
	current, ok := b.subs[entry.queue]
	if !ok || current != entry {
		// Already removed explicitly.
		return nil
	}
	delete(b.subs, entry.queue)
	if err := b.channel.Cancel(entry.consumerTag, false); err != nil {
		b.logger.Warn("failed to cancel finished consumer",
			"queue", entry.queue,
			"error", err)
	}
	b.logger.Debug("queue subscription finished", "queue", entry.queue)
	return nil
}

// RemoveQueueSubscription stops consuming the named queue and deletes the
// queue from the broker. Removing an unknown queue is a no-op.
func (b *BrokerInterface) RemoveQueueSubscription(queueName string) error {
	return b.submit(func() error {
		return b.removeQueueSubscription(queueName)
	})
}

func (b *BrokerInterface) removeQueueSubscription(queueName string) error {
	entry, ok := b.subs[queueName]
	if !ok {
		return nil
	}

	b.logger.Info("stopping subscription and removing queue", "queue", queueName)
	entry.cancel()
	delete(b.subs, queueName)

	if err := b.channel.Cancel(entry.consumerTag, false); err != nil {
		b.logger.Warn("failed to cancel consumer",
			"queue", queueName,
			"error", err)
	}
	if _, err := b.channel.QueueDelete(queueName, false, false, false); err != nil {
		return transportErr("delete queue "+queueName, err)
	}
	return nil
}

// Publish sends body to the given routing key with persistent delivery.
// An empty exchange name publishes through the broker's default exchange,
// which routes by queue name and is always available. A non-empty
// exchange must have been declared through this interface first.
func (b *BrokerInterface) Publish(exchangeName, routingKey string, body []byte) error {
	return b.submit(func() error {
		return b.publish(exchangeName, routingKey, body)
	})
}

func (b *BrokerInterface) publish(exchangeName, routingKey string, body []byte) error {
	if exchangeName != "" {
		if _, ok := b.exchanges[exchangeName]; !ok {
			return fmt.Errorf("%w: cannot publish to %s with routing key %s",
				ErrExchangeNotDeclared, exchangeName, routingKey)
		}
	}

	b.logger.Debug("publishing message",
		"exchange", exchangeName,
		"routingKey", routingKey,
		"bytes", len(body))
	err := b.channel.PublishWithContext(context.Background(), exchangeName, routingKey, false, false, amqp.Publishing{
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return transportErr("publish to "+exchangeLabel(exchangeName), err)
	}
	messagesPublished.WithLabelValues(exchangeLabel(exchangeName)).Inc()
	return nil
}

// Stop shuts the broker interface down: cancel all subscriptions, close
// the channel and the connection, then terminate the connection loop.
// Only the first caller runs the shutdown sequence; concurrent and
// repeated callers return once the loop has terminated. A shutdown that
// exceeds the stop timeout is logged and the loop is terminated anyway,
// so Stop never hangs.
func (b *BrokerInterface) Stop() {
	if !b.started.Load() {
		return
	}

	b.stopMu.Lock()
	alreadyStopping := b.stopping
	b.stopping = true
	b.stopMu.Unlock()

	if !alreadyStopping {
		if err := b.submitWait(b.teardown, b.stopTimeout); err != nil && !errors.Is(err, ErrNotRunning) {
			b.logger.Error("could not stop the broker interface gracefully", "error", err)
		}
		close(b.quit)
	}

	// The loop exits promptly after quit unless teardown wedged on broker
	// I/O; bound the wait so Stop never hangs the process.
	select {
	case <-b.done:
	case <-time.After(b.stopTimeout):
		b.logger.Error("connection loop did not terminate in time, abandoning it")
	}
	if !alreadyStopping {
		b.logger.Info("stopped broker interface")
	}
}

// teardown runs on the connection loop as its final operation.
func (b *BrokerInterface) teardown() error {
	b.logger.Info("stopping broker interface")

	for _, entry := range b.subs {
		entry.cancel()
	}

	var firstErr error
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
