package api

import "context"

// Delivery is a raw message handed over by a broker channel.
type Delivery struct {
	ConsumerTag string
	DeliveryTag uint64
	Exchange    string
	RoutingKey  string
	Redelivered bool
	Body        []byte
}

// Consumer receives the callbacks of a single subscription. The callbacks run
// on the transport's goroutine.
type Consumer interface {
	HandleDelivery(d Delivery)
	// HandleCancel is called when the broker cancels the subscription, e.g.
	// because the queue was deleted.
	HandleCancel(consumerTag string)
	// HandleChannelClose is called when ch, the channel carrying the
	// subscription, is closed. The subscription is gone with it.
	HandleChannelClose(ch Channel, reason error)
}

// Channel is a broker channel handle. Delivery tags are only meaningful on the
// channel that produced them.
type Channel interface {
	// Consume subscribes c to queue. An empty consumerTag lets the channel
	// assign one; a non-empty one is a hint the broker should echo back. The
	// tag in effect is returned.
	Consume(queue string, noAck bool, consumerTag string, c Consumer) (string, error)
	Cancel(consumerTag string) error
	Ack(deliveryTag uint64, multiple bool) error
}

// Connection keeps a channel to the broker alive across failures.
type Connection interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	// Channel returns the current channel, or nil when disconnected.
	Channel() Channel
	// OnConnected registers a handler fired each time a fresh channel is
	// usable, including the first connection.
	OnConnected(handler func())
	Close() error
}
