// Package rabbitmq implements the broker interface of the calcflow SDK.
//
// A BrokerInterface owns exactly one AMQP connection and one channel.
// Every broker operation runs on a single dedicated goroutine, the
// connection loop; callers interact through synchronous methods that
// schedule work onto the loop and block until it completes. Message
// callbacks execute on per-subscription goroutines so slow handlers only
// delay their own queue.
//
// The package includes:
//   - BrokerInterface: connection lifecycle, exchange registry, and
//     subscription registry with at-most-one subscription per queue
//   - queueConsumer: per-queue consumption with in-order acknowledgement
//     and requeue-on-failure
//   - QueueType and QueueTTLArguments: queue declaration flags and
//     TTL/dead-letter wire arguments, validated at construction
package rabbitmq
