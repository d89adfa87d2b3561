package gochan

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/case-management-suite/consumer/api"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
)

// CHANNEL_SIZE is the initial capacity of a subscription buffer.
const CHANNEL_SIZE = 100

type Message struct {
	Exchange    string
	RoutingKey  string
	Body        []byte
	Redelivered bool
}

type Stats struct {
	Consumes int64
	Cancels  int64
	Acks     int64
}

type queue struct {
	name      string
	mu        sync.Mutex
	ready     []Message
	consumers []*subscription
	next      int
}

// ChanServer is an in-memory broker. Messages published with the default
// exchange are routed to the queue named by the routing key.
type ChanServer struct {
	queues *xsync.Map[string, *queue]
	Log    zerolog.Logger
	// ReassignTags makes the broker ignore consumer tag hints and hand out a
	// fresh tag on every consume.
	ReassignTags bool

	consumes atomic.Int64
	cancels  atomic.Int64
	acks     atomic.Int64
}

func NewChanServer(log zerolog.Logger, queues ...string) *ChanServer {
	s := &ChanServer{queues: xsync.NewMap[string, *queue](), Log: log}
	for _, q := range queues {
		s.DeclareQueue(q)
	}
	return s
}

func (s *ChanServer) DeclareQueue(name string) {
	s.queues.LoadOrStore(name, &queue{name: name})
}

// DeleteQueue removes the queue. Its consumers are cancelled by the broker
// and pending messages are lost.
func (s *ChanServer) DeleteQueue(name string) error {
	q, ok := s.queues.Load(name)
	if !ok {
		return fmt.Errorf("delete %s: %w", name, api.ErrUnknownQueue)
	}
	s.queues.Delete(name)

	q.mu.Lock()
	consumers := q.consumers
	q.consumers = nil
	q.ready = nil
	q.mu.Unlock()

	for _, sub := range consumers {
		if sub.channel.forget(sub.tag) {
			sub.stop(cancelledByBroker)
		}
	}
	s.Log.Debug().Str("queue", name).Int("consumers", len(consumers)).Msg("Queue deleted")
	return nil
}

func (s *ChanServer) Publish(exchange string, routingKey string, body []byte) error {
	q, ok := s.queues.Load(routingKey)
	if !ok {
		return fmt.Errorf("publish to %s: %w", routingKey, api.ErrUnknownQueue)
	}
	q.mu.Lock()
	q.ready = append(q.ready, Message{Exchange: exchange, RoutingKey: routingKey, Body: body})
	q.mu.Unlock()
	q.dispatch()
	return nil
}

// Pending returns the number of messages waiting for a consumer.
func (s *ChanServer) Pending(name string) int {
	q, ok := s.queues.Load(name)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (s *ChanServer) Consumers(name string) int {
	q, ok := s.queues.Load(name)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.consumers)
}

func (s *ChanServer) Stats() Stats {
	return Stats{
		Consumes: s.consumes.Load(),
		Cancels:  s.cancels.Load(),
		Acks:     s.acks.Load(),
	}
}

func (s *ChanServer) requeue(name string, msgs []Message) {
	q, ok := s.queues.Load(name)
	if !ok {
		return
	}
	q.mu.Lock()
	q.ready = append(msgs, q.ready...)
	q.mu.Unlock()
	q.dispatch()
}

func (q *queue) addConsumer(sub *subscription) {
	q.mu.Lock()
	q.consumers = append(q.consumers, sub)
	q.mu.Unlock()
	q.dispatch()
}

func (q *queue) removeConsumer(sub *subscription) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.consumers {
		if c == sub {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			return
		}
	}
}

type assignment struct {
	sub *subscription
	msg Message
}

// dispatch hands ready messages to consumers round robin. Sending happens
// outside the queue lock so consumer callbacks may call back into the broker.
func (q *queue) dispatch() {
	q.mu.Lock()
	var out []assignment
	for len(q.ready) > 0 && len(q.consumers) > 0 {
		q.next = q.next % len(q.consumers)
		out = append(out, assignment{sub: q.consumers[q.next], msg: q.ready[0]})
		q.ready = q.ready[1:]
		q.next++
	}
	q.mu.Unlock()

	for _, a := range out {
		a.sub.channel.deliver(a.sub, a.msg)
	}
}
