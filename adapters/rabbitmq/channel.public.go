package rabbitmq

import (
	"fmt"

	"github.com/case-management-suite/consumer/api"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const defaultTagPrefix = "ctag"

// Channel wraps an amqp channel. Each consumer gets its own goroutine that
// hands deliveries over in order and reports how the subscription ended.
type Channel struct {
	ch        *amqp.Channel
	tagPrefix string
	consumers *xsync.Map[string, api.Consumer]
	logger    zerolog.Logger
}

var _ api.Channel = (*Channel)(nil)

func newChannel(ch *amqp.Channel, tagPrefix string, logger zerolog.Logger) *Channel {
	if tagPrefix == "" {
		tagPrefix = defaultTagPrefix
	}
	c := &Channel{
		ch:        ch,
		tagPrefix: tagPrefix,
		consumers: xsync.NewMap[string, api.Consumer](),
		logger:    logger,
	}
	go c.watchCancels(ch.NotifyCancel(make(chan string, 8)))
	return c
}

func (c *Channel) Consume(queue string, noAck bool, consumerTag string, consumer api.Consumer) (string, error) {
	if consumerTag == "" {
		consumerTag = fmt.Sprintf("%s-%s", c.tagPrefix, uuid.NewString())
	}

	c.consumers.Store(consumerTag, consumer)
	msgs, err := c.ch.Consume(
		queue,
		consumerTag, // Consumer
		noAck,       // Auto-Ack
		false,       // Exclusive
		false,       // No-local
		false,       // No-Wait
		nil,         // Args
	)
	if err != nil {
		c.consumers.Delete(consumerTag)
		return "", err
	}

	go c.deliver(consumerTag, consumer, msgs)
	return consumerTag, nil
}

// Cancel forgets the consumer before telling the broker, so the end of its
// delivery stream is not reported back as a shutdown.
func (c *Channel) Cancel(consumerTag string) error {
	c.consumers.Delete(consumerTag)
	return c.ch.Cancel(consumerTag, false)
}

func (c *Channel) Ack(deliveryTag uint64, multiple bool) error {
	return c.ch.Ack(deliveryTag, multiple)
}
