package rabbitmq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/case-management-suite/consumer/api"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	RETRY_TIME        = 2 * time.Second
	defaultLocale     = "en_US"
	defaultRetries    = 3
	maxReconnectDelay = 30 * time.Second
)

// Connection is an api.Connection to RabbitMQ. Once connected it watches the
// channel and reconnects with a growing delay until Close is called.
type Connection struct {
	host    api.HostSetting
	setting api.ChannelSetting
	logger  zerolog.Logger

	mu          sync.Mutex
	connection  *amqp.Connection
	notifyClose chan *amqp.Error
	handlers    []func()

	channel     atomic.Pointer[Channel]
	isConnected atomic.Bool
	alive       atomic.Bool
	done        chan struct{}
	closeOnce   sync.Once
}

var _ api.Connection = (*Connection)(nil)

func NewConnection(host api.HostSetting, setting api.ChannelSetting, logger zerolog.Logger) *Connection {
	c := &Connection{
		host:    host,
		setting: setting,
		logger:  logger.With().Str("address", redact(host.Address)).Logger(),
		done:    make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// Connect dials the broker, retrying up to DialRetries times, fires the
// connected handlers and starts the reconnect loop.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.alive.Load() {
		return api.ErrClosed
	}
	if c.isConnected.Load() {
		return nil
	}

	retries := c.host.DialRetries
	if retries <= 0 {
		retries = defaultRetries
	}
	connection, channel, err := connectWithRetry(ctx, c.host, c.setting, retries, c.logger)
	if err != nil {
		return err
	}
	c.changeConnection(connection, channel)
	c.fireConnected()

	go c.handleReconnect()
	return nil
}

func (c *Connection) IsConnected() bool {
	return c.isConnected.Load()
}

func (c *Connection) Channel() api.Channel {
	ch := c.channel.Load()
	if ch == nil {
		return nil
	}
	return ch
}

func (c *Connection) OnConnected(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Close stops the reconnect loop and closes the channel and connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
		c.isConnected.Store(false)

		if ch := c.channel.Swap(nil); ch != nil {
			if cerr := ch.ch.Close(); cerr != nil && cerr != amqp.ErrClosed {
				err = cerr
			}
		}

		c.mu.Lock()
		connection := c.connection
		c.connection = nil
		c.mu.Unlock()
		if connection != nil && !connection.IsClosed() {
			if cerr := connection.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		c.logger.Info().Msg("gracefully stopped rabbitMQ connection")
	})
	return err
}
