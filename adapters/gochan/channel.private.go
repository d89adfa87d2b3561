package gochan

import (
	"sync"

	"github.com/case-management-suite/consumer/api"
)

type stopReason byte

const (
	cancelledByClient stopReason = iota
	cancelledByBroker
	channelClosed
)

type unacked struct {
	tag   uint64
	queue string
	msg   Message
}

func (c *Channel) deliver(sub *subscription, msg Message) {
	c.mu.Lock()
	if c.closed || c.subs[sub.tag] != sub {
		c.mu.Unlock()
		sub.queue.removeConsumer(sub)
		c.server.requeue(sub.queue.name, []Message{msg})
		return
	}
	c.nextTag++
	tag := c.nextTag
	if !sub.noAck {
		c.unacked = append(c.unacked, unacked{tag: tag, queue: sub.queue.name, msg: msg})
	}
	c.mu.Unlock()

	sub.send(api.Delivery{
		ConsumerTag: sub.tag,
		DeliveryTag: tag,
		Exchange:    msg.Exchange,
		RoutingKey:  msg.RoutingKey,
		Redelivered: msg.Redelivered,
		Body:        msg.Body,
	})
}

// forget drops the subscription from the channel and reports whether it was
// still registered.
func (c *Channel) forget(consumerTag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[consumerTag]
	delete(c.subs, consumerTag)
	return ok
}

// close shuts the channel down the way a lost connection does: consumers are
// told, and unacknowledged messages go back to their queues as redelivered.
func (c *Channel) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = map[string]*subscription{}
	pending := c.unacked
	c.unacked = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.queue.removeConsumer(sub)
		sub.stop(channelClosed)
	}

	byQueue := map[string][]Message{}
	var order []string
	for _, u := range pending {
		if _, seen := byQueue[u.queue]; !seen {
			order = append(order, u.queue)
		}
		u.msg.Redelivered = true
		byQueue[u.queue] = append(byQueue[u.queue], u.msg)
	}
	for _, name := range order {
		c.server.requeue(name, byQueue[name])
	}
}

// subscription buffers deliveries without bound so the broker never waits on
// a slow consumer. A single goroutine hands them over in order.
type subscription struct {
	tag      string
	noAck    bool
	consumer api.Consumer
	channel  *Channel
	queue    *queue

	mu       sync.Mutex
	pending  []api.Delivery
	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	reason   stopReason
}

func newSubscription(tag string, noAck bool, consumer api.Consumer, ch *Channel, q *queue) *subscription {
	return &subscription{
		tag:      tag,
		noAck:    noAck,
		consumer: consumer,
		channel:  ch,
		queue:    q,
		pending:  make([]api.Delivery, 0, CHANNEL_SIZE),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// send queues d for the consumer. It never blocks.
func (s *subscription) send(d api.Delivery) {
	s.mu.Lock()
	s.pending = append(s.pending, d)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (api.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return api.Delivery{}, false
	}
	d := s.pending[0]
	s.pending[0] = api.Delivery{}
	s.pending = s.pending[1:]
	return d, true
}

func (s *subscription) stop(reason stopReason) {
	s.stopOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

func (s *subscription) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// run delivers to the consumer one message at a time, then reports why the
// subscription ended. Deliveries still queued at that point are dropped;
// unacknowledged ones are requeued by the channel.
func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			s.finish()
			return
		case <-s.ready:
		}

		for !s.stopped() {
			d, ok := s.next()
			if !ok {
				break
			}
			s.consumer.HandleDelivery(d)
		}
	}
}

func (s *subscription) finish() {
	switch s.reason {
	case cancelledByBroker:
		s.consumer.HandleCancel(s.tag)
	case channelClosed:
		s.consumer.HandleChannelClose(s.channel, api.ErrClosed)
	}
}
