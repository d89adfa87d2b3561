package rabbitmq

import (
	"context"
	"time"

	"github.com/case-management-suite/consumer/api"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// changeConnection takes a new connection to the broker and makes its channel
// the current one.
func (c *Connection) changeConnection(connection *amqp.Connection, channel *amqp.Channel) {
	c.mu.Lock()
	old := c.connection
	c.connection = connection
	c.notifyClose = channel.NotifyClose(make(chan *amqp.Error, 1))
	c.mu.Unlock()

	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}

	c.channel.Store(newChannel(channel, c.setting.ConsumerTagPrefix, c.logger))
	c.isConnected.Store(true)
}

func (c *Connection) fireConnected() {
	c.mu.Lock()
	handlers := append([]func(){}, c.handlers...)
	c.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

func (c *Connection) closeNotifications() chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifyClose
}

// handleReconnect waits for the channel to close, then keeps trying to
// connect again until it succeeds or the connection is closed.
func (c *Connection) handleReconnect() {
	for c.alive.Load() {
		select {
		case <-c.done:
			return
		case err := <-c.closeNotifications():
			if !c.alive.Load() {
				return
			}
			c.isConnected.Store(false)
			c.channel.Store(nil)
			c.logger.Error().Err(err).Msg("Channel closed, reconnecting")
		}

		t := time.Now()
		var retryCount int
		for !c.isConnected.Load() {
			connection, channel, err := connect(c.host, c.setting)
			if !c.alive.Load() {
				if err == nil {
					_ = connection.Close()
				}
				return
			}
			if err == nil {
				c.changeConnection(connection, channel)
				break
			}

			select {
			case <-c.done:
				return
			case <-time.After(c.reconnectDelay(retryCount)):
				c.logger.Error().Err(err).Int("retry", retryCount).Msg("disconnected from rabbitMQ and failed to connect")
				retryCount++
			}
		}
		c.logger.Info().Int64("elapsed_ms", time.Since(t).Milliseconds()).Msg("Connected to rabbitMQ")
		c.fireConnected()
	}
}

func (c *Connection) reconnectDelay(retryCount int) time.Duration {
	delay := c.host.ReconnectDelay
	if delay <= 0 {
		delay = RETRY_TIME
	}
	limit := c.host.MaxReconnectDelay
	if limit <= 0 {
		limit = maxReconnectDelay
	}
	delay += time.Duration(retryCount) * time.Second
	if delay > limit {
		return limit
	}
	return delay
}

func connectWithRetry(ctx context.Context, host api.HostSetting, setting api.ChannelSetting, retries int, logger zerolog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var connection *amqp.Connection
	var channel *amqp.Channel
	var err error
loop:
	for retries > 0 {
		connection, channel, err = connect(host, setting)
		if err == nil {
			break
		}
		retries -= 1
		if retries == 0 {
			break
		}
		select {
		case <-time.After(RETRY_TIME):
			logger.Debug().Err(err).Msg("Could not connect. Retrying...")
		case <-ctx.Done():
			logger.Debug().Msg("Could not connect. Context timed out")
			err = ctx.Err()
			break loop
		}
	}
	return connection, channel, err
}

func connect(host api.HostSetting, setting api.ChannelSetting) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(host.Address, amqp.Config{
		Heartbeat: host.Heartbeat,
		Locale:    defaultLocale,
	})
	if err != nil {
		return nil, nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if setting.PrefetchCount > 0 {
		if err := channel.Qos(setting.PrefetchCount, 0, false); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}
	return conn, channel, nil
}
