package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the subset of *amqp.Channel the connection loop uses.
// Narrowing the surface keeps the loop testable without a live broker.
type amqpChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpConnection is the subset of *amqp.Connection the loop uses.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

// dialFunc opens a connection to the broker. Replaced in tests.
type dialFunc func(url string) (amqpConnection, error)

func defaultDial(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return connAdapter{conn}, nil
}

// connAdapter narrows *amqp.Connection to amqpConnection.
type connAdapter struct {
	*amqp.Connection
}

func (a connAdapter) Channel() (amqpChannel, error) {
	return a.Connection.Channel()
}
