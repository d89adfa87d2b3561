package gochan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/case-management-suite/consumer/api"
	"github.com/google/uuid"
)

var (
	ErrUnknownDeliveryTag = errors.New("unknown delivery tag")
	ErrUnknownConsumerTag = errors.New("unknown consumer tag")
	ErrConsumerTagInUse   = errors.New("consumer tag already in use")
)

// Channel is a broker channel of the in-memory server. Delivery tags are
// numbered from 1 per channel.
type Channel struct {
	server *ChanServer

	mu      sync.Mutex
	closed  bool
	nextTag uint64
	subs    map[string]*subscription
	unacked []unacked
}

var _ api.Channel = (*Channel)(nil)

func (s *ChanServer) openChannel() *Channel {
	return &Channel{server: s, subs: map[string]*subscription{}}
}

func (c *Channel) Consume(queueName string, noAck bool, consumerTag string, consumer api.Consumer) (string, error) {
	q, ok := c.server.queues.Load(queueName)
	if !ok {
		return "", fmt.Errorf("consume %s: %w", queueName, api.ErrUnknownQueue)
	}
	if consumerTag == "" || c.server.ReassignTags {
		consumerTag = "amq.ctag-" + uuid.NewString()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", api.ErrClosed
	}
	if _, inUse := c.subs[consumerTag]; inUse {
		c.mu.Unlock()
		return "", fmt.Errorf("consume %s: %w: %s", queueName, ErrConsumerTagInUse, consumerTag)
	}
	sub := newSubscription(consumerTag, noAck, consumer, c, q)
	c.subs[consumerTag] = sub
	c.mu.Unlock()

	c.server.consumes.Add(1)
	go sub.run()
	q.addConsumer(sub)

	c.server.Log.Debug().Str("queue", queueName).Str("consumer_tag", consumerTag).Msg("Consumer registered")
	return consumerTag, nil
}

func (c *Channel) Cancel(consumerTag string) error {
	c.server.cancels.Add(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return api.ErrClosed
	}
	sub, ok := c.subs[consumerTag]
	delete(c.subs, consumerTag)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("cancel: %w: %s", ErrUnknownConsumerTag, consumerTag)
	}
	sub.queue.removeConsumer(sub)
	sub.stop(cancelledByClient)
	return nil
}

// Ack acknowledges deliveryTag, and with multiple every earlier outstanding
// delivery on this channel as well.
func (c *Channel) Ack(deliveryTag uint64, multiple bool) error {
	c.server.acks.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.ErrClosed
	}

	kept := make([]unacked, 0, len(c.unacked))
	found := false
	for _, u := range c.unacked {
		switch {
		case u.tag == deliveryTag:
			found = true
		case multiple && u.tag < deliveryTag:
		default:
			kept = append(kept, u)
		}
	}
	if !found {
		return fmt.Errorf("ack: %w: %d", ErrUnknownDeliveryTag, deliveryTag)
	}
	c.unacked = kept
	return nil
}

// Unacked returns the number of deliveries waiting for an acknowledgment.
func (c *Channel) Unacked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unacked)
}
