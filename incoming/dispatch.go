package incoming

import "github.com/case-management-suite/consumer/api"

// OnReceived registers the handler invoked for each delivery. Only one
// handler is registered at a time; nil removes it and deliveries are dropped.
func (c *Channel) OnReceived(handler api.MessageHandler) {
	if handler == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&handler)
}

// onReceived runs on the transport goroutine. Without a handler the delivery
// is discarded: it is neither buffered nor rejected.
func (c *Channel) onReceived(d api.Delivery) {
	h := c.handler.Load()
	if h == nil {
		c.logger.Debug().
			Str("consumer_tag", d.ConsumerTag).
			Uint64("delivery_tag", d.DeliveryTag).
			Str("exchange", d.Exchange).
			Str("routing_key", d.RoutingKey).
			Int("body_length", len(d.Body)).
			Msg("Message discarded, no handler registered")
		c.metrics.RecordDropped(c.address.QueueName)
		return
	}

	c.metrics.RecordDelivery(c.address.QueueName)
	(*h)(api.ReceivedMessage{
		Source:       c,
		ConsumerTag:  d.ConsumerTag,
		DeliveryTag:  d.DeliveryTag,
		ExchangeName: d.Exchange,
		RoutingKey:   d.RoutingKey,
		Redelivered:  d.Redelivered,
		Body:         d.Body,
	})
}
