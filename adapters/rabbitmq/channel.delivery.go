package rabbitmq

import (
	"net/url"

	"github.com/case-management-suite/consumer/api"
	amqp "github.com/rabbitmq/amqp091-go"
)

func (c *Channel) deliver(consumerTag string, consumer api.Consumer, msgs <-chan amqp.Delivery) {
	for msg := range msgs {
		consumer.HandleDelivery(newDelivery(msg))
	}

	if _, registered := c.consumers.Load(consumerTag); !registered {
		return
	}
	if c.ch.IsClosed() {
		c.consumers.Delete(consumerTag)
		c.logger.Debug().Str("consumer_tag", consumerTag).Msg("Delivery stream ended with the channel")
		consumer.HandleChannelClose(c, amqp.ErrClosed)
	}
	// Otherwise the broker cancelled the consumer and watchCancels reports it.
}

func (c *Channel) watchCancels(cancels <-chan string) {
	for tag := range cancels {
		consumer, ok := c.consumers.LoadAndDelete(tag)
		if !ok {
			continue
		}
		c.logger.Debug().Str("consumer_tag", tag).Msg("Consumer cancelled by broker")
		go consumer.HandleCancel(tag)
	}
}

func newDelivery(d amqp.Delivery) api.Delivery {
	return api.Delivery{
		ConsumerTag: d.ConsumerTag,
		DeliveryTag: d.DeliveryTag,
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
		Body:        d.Body,
	}
}

func redact(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return "invalid-address"
	}
	return u.Redacted()
}
