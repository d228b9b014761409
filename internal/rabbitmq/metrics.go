package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calcflow_broker_messages_published_total",
		Help: "Messages published to the broker, by exchange. The default exchange is labelled \"default\".",
	}, []string{"exchange"})

	messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calcflow_broker_messages_consumed_total",
		Help: "Messages successfully processed and acknowledged, by queue.",
	}, []string{"queue"})

	callbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calcflow_broker_callback_failures_total",
		Help: "Message callbacks that failed and caused a requeue, by queue.",
	}, []string{"queue"})
)

// exchangeLabel avoids an empty label value for the default exchange.
func exchangeLabel(exchange string) string {
	if exchange == "" {
		return "default"
	}
	return exchange
}
