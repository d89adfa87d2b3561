package api

import (
	"fmt"
	"time"
)

// ChannelAddress identifies the queue an incoming channel consumes from. The
// exchange and routing key travel with it for logging and for the publishing
// side of the system.
type ChannelAddress struct {
	Exchange   string
	RoutingKey string
	QueueName  string
}

func (a ChannelAddress) String() string {
	return fmt.Sprintf("exchange=%s routing_key=%s queue=%s", a.Exchange, a.RoutingKey, a.QueueName)
}

// ChannelSetting controls how the queue is consumed.
type ChannelSetting struct {
	// QueueNoAck subscribes in no-ack mode: the broker treats every message
	// as acknowledged once it is sent.
	QueueNoAck    bool
	PrefetchCount int
	// ConsumerTagPrefix is prepended to client generated consumer tags.
	ConsumerTagPrefix string
}

func (s ChannelSetting) String() string {
	return fmt.Sprintf("no_ack=%t prefetch=%d", s.QueueNoAck, s.PrefetchCount)
}

// HostSetting locates the broker and tunes reconnection.
type HostSetting struct {
	Address   string
	Heartbeat time.Duration
	// DialRetries bounds the attempts of the first Connect. Reconnects after a
	// failure retry until the connection is closed.
	DialRetries       int
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// ReceivedMessage is the normalized form of one delivery handed to the
// registered MessageHandler. It is only valid for the duration of the call.
type ReceivedMessage struct {
	Source       IncomingChannel
	ConsumerTag  string
	DeliveryTag  uint64
	ExchangeName string
	RoutingKey   string
	Redelivered  bool
	Body         []byte
}

type MessageHandler = func(ReceivedMessage)

// IncomingChannel is a consumer subscription that survives reconnects of the
// underlying connection.
type IncomingChannel interface {
	Address() ChannelAddress
	Setting() ChannelSetting

	// StartConsume subscribes to the queue. It fails with ErrNotConnected when
	// the connection is down and is a no-op when already consuming.
	StartConsume() error
	// StopConsume cancels the subscription. It is idempotent and never fails.
	StopConsume()
	IsConsuming() bool

	// OnReceived registers the handler for incoming messages; nil removes it.
	OnReceived(handler MessageHandler)
	// Ack acknowledges deliveryTag and every earlier delivery on the channel.
	Ack(deliveryTag uint64) error

	Close() error
}
