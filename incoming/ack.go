package incoming

import (
	"fmt"

	"github.com/case-management-suite/consumer/api"
)

// Ack acknowledges deliveryTag and every unacknowledged delivery before it on
// the current channel. It does nothing in no-ack mode. Tags from a channel
// that has since been replaced are not detected.
func (c *Channel) Ack(deliveryTag uint64) error {
	if c.setting.QueueNoAck {
		return nil
	}

	c.pipelining.Lock()
	defer c.pipelining.Unlock()

	ch := c.conn.Channel()
	if ch == nil {
		c.metrics.RecordAck(c.address.QueueName, false)
		return fmt.Errorf("ack %d: %w", deliveryTag, api.ErrNotConnected)
	}

	if err := ch.Ack(deliveryTag, true); err != nil {
		c.metrics.RecordAck(c.address.QueueName, false)
		return fmt.Errorf("ack %d: %w", deliveryTag, err)
	}
	c.metrics.RecordAck(c.address.QueueName, true)

	c.logger.Trace().
		Uint64("delivery_tag", deliveryTag).
		Str("consumer_tag", c.consumerTag()).
		Msg("Acked")
	return nil
}
