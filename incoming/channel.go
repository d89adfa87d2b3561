// Package incoming implements a consumer subscription that survives
// reconnects of the underlying broker connection.
//
// Start, stop and recovery after reconnect are serialized by a single lock per
// Channel. Delivery dispatch and acknowledgment never take that lock.
package incoming

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/case-management-suite/consumer/api"
	"github.com/rs/zerolog"
)

// identity is an active subscription. A nil *identity means no subscription.
type identity struct {
	tag      string
	consumer *eventingConsumer
}

// Channel consumes a single queue and resubscribes whenever the connection
// comes back.
type Channel struct {
	conn    api.Connection
	address api.ChannelAddress
	setting api.ChannelSetting
	logger  zerolog.Logger
	metrics api.MetricsCollector

	controlMu sync.Mutex
	// identity is written under controlMu only.
	identity atomic.Pointer[identity]
	// recoverConsume is armed while consuming and run on every reconnect.
	recoverConsume func()

	handler    atomic.Pointer[api.MessageHandler]
	pipelining sync.Mutex
}

var _ api.IncomingChannel = (*Channel)(nil)

// New creates a channel consuming address over conn. The channel takes
// ownership of conn and registers for its connected notifications.
func New(conn api.Connection, address api.ChannelAddress, setting api.ChannelSetting, opts ...Option) *Channel {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	c := &Channel{
		conn:    conn,
		address: address,
		setting: setting,
		logger:  o.logger.With().Str("queue", address.QueueName).Logger(),
		metrics: o.metrics,
	}
	conn.OnConnected(c.onConnected)
	return c
}

func (c *Channel) Address() api.ChannelAddress {
	return c.address
}

func (c *Channel) Setting() api.ChannelSetting {
	return c.setting
}

// IsConsuming reports whether a subscription exists and is running on a live
// channel. It is a snapshot and does not take the lifecycle lock.
func (c *Channel) IsConsuming() bool {
	id := c.identity.Load()
	return id != nil && id.consumer.IsRunning()
}

func (c *Channel) StartConsume() error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("start consume on %s: %w", c.address.QueueName, api.ErrNotConnected)
	}

	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if c.identity.Load() != nil {
		return nil
	}

	ch := c.conn.Channel()
	if ch == nil {
		return fmt.Errorf("start consume on %s: %w", c.address.QueueName, api.ErrNotConnected)
	}

	consumer := &eventingConsumer{}
	consumer.attach(c.onReceived, func(tag string) { c.onShutdown(consumer, tag) })
	consumer.bind(ch)

	tag, err := ch.Consume(c.address.QueueName, c.setting.QueueNoAck, "", consumer)
	if err != nil {
		consumer.detach()
		c.metrics.RecordSubscribe(c.address.QueueName, false)
		return fmt.Errorf("start consume on %s: %w", c.address.QueueName, err)
	}

	c.identity.Store(&identity{tag: tag, consumer: consumer})
	c.recoverConsume = c.resubscribe
	c.metrics.RecordSubscribe(c.address.QueueName, true)
	c.metrics.SetConsuming(c.address.QueueName, true)

	c.logger.Debug().
		Str("address", c.address.String()).
		Str("consumer_tag", tag).
		Str("setting", c.setting.String()).
		Msg("Started consuming")
	return nil
}

func (c *Channel) StopConsume() {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	c.stopConsume()
}

// stopConsume tears the subscription down. Callbacks are detached before the
// broker side cancel so our own cancel cannot fire the shutdown hook. Cancel
// failures are logged and swallowed; teardown never fails.
func (c *Channel) stopConsume() {
	id := c.identity.Load()
	if id == nil {
		c.logger.Debug().Msg("Stop consume requested without an active subscription")
		c.recoverConsume = nil
		return
	}

	c.logger.Debug().
		Str("address", c.address.String()).
		Str("consumer_tag", id.tag).
		Str("setting", c.setting.String()).
		Msg("Stopping consume")

	defer func() {
		c.identity.Store(nil)
		c.recoverConsume = nil
		c.metrics.RecordCancel(c.address.QueueName)
		c.metrics.SetConsuming(c.address.QueueName, false)
	}()

	id.consumer.detach()

	ch := id.consumer.channel()
	if ch == nil || id.tag == "" || !id.consumer.IsRunning() {
		return
	}
	if err := cancelQuietly(ch, id.tag); err != nil {
		c.logger.Debug().Err(err).Str("consumer_tag", id.tag).Msg("Cancel failed during teardown")
		c.metrics.RecordTeardownFailure(c.address.QueueName)
	}
}

func cancelQuietly(ch api.Channel, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return ch.Cancel(tag)
}

func (c *Channel) onConnected() {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	if c.recoverConsume != nil {
		c.recoverConsume()
	}
}

// resubscribe consumes again with the existing consumer on the fresh channel,
// asking for the same consumer tag. Whatever tag the broker answers with is
// kept. On failure the subscription stays armed and the next reconnect tries
// again. A subscription the broker cancelled is never revived.
func (c *Channel) resubscribe() {
	id := c.identity.Load()
	if id == nil || id.consumer.cancelled.Load() {
		return
	}
	ch := c.conn.Channel()
	if ch == nil {
		return
	}
	// A late notification for a channel we already consume on.
	if id.consumer.IsRunning() && id.consumer.channel() == ch {
		return
	}

	c.logger.Debug().
		Str("address", c.address.String()).
		Str("consumer_tag", id.tag).
		Msg("Recovering consumer")

	id.consumer.bind(ch)
	tag, err := ch.Consume(c.address.QueueName, c.setting.QueueNoAck, id.tag, id.consumer)
	if err != nil {
		id.consumer.running.Store(false)
		c.logger.Error().Err(err).Str("consumer_tag", id.tag).Msg("Could not recover consumer")
		c.metrics.RecordRecovery(c.address.QueueName, false)
		return
	}
	if tag != id.tag {
		c.logger.Info().
			Str("previous_tag", id.tag).
			Str("consumer_tag", tag).
			Msg("Broker assigned a new consumer tag on recovery")
	}

	c.identity.Store(&identity{tag: tag, consumer: id.consumer})
	c.metrics.RecordRecovery(c.address.QueueName, true)
	c.metrics.SetConsuming(c.address.QueueName, true)
}

// onShutdown handles a broker initiated cancel of consumer's subscription the
// same way as StopConsume. A cancel for a subscription that was already
// replaced is ignored.
func (c *Channel) onShutdown(consumer *eventingConsumer, tag string) {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	id := c.identity.Load()
	if id == nil || id.consumer != consumer {
		return
	}

	c.logger.Debug().
		Str("address", c.address.String()).
		Str("consumer_tag", tag).
		Msg("Consumer shut down by broker")
	c.stopConsume()
}

// Close stops consuming and closes the connection.
func (c *Channel) Close() error {
	c.StopConsume()
	return c.conn.Close()
}

func (c *Channel) consumerTag() string {
	if id := c.identity.Load(); id != nil {
		return id.tag
	}
	return ""
}
