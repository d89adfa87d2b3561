package incoming

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/case-management-suite/consumer/api"
)

var errConnectionReset = errors.New("connection reset")

type consumeCall struct {
	channel int
	queue   string
	noAck   bool
	hint    string
	tag     string
}

type ackCall struct {
	channel     int
	deliveryTag uint64
	multiple    bool
}

type cancelCall struct {
	channel int
	tag     string
}

// fakeConnection records every broker call made through its channels.
// Callbacks run synchronously on the calling goroutine.
type fakeConnection struct {
	mu       sync.Mutex
	channel  *fakeChannel
	channels int
	handlers []func()
	closed   bool
	nextTag  int

	// reassignTags ignores consumer tag hints.
	reassignTags bool
	consumeErr   error
	cancelErr    error
	cancelPanic  bool

	consumes []consumeCall
	cancels  []cancelCall
	acks     []ackCall
}

var _ api.Connection = (*fakeConnection)(nil)

func newFakeConnection() *fakeConnection {
	return &fakeConnection{}
}

func (f *fakeConnection) Connect(_ context.Context) error {
	f.mu.Lock()
	if f.channel != nil {
		f.mu.Unlock()
		return nil
	}
	f.channels++
	f.channel = &fakeChannel{conn: f, id: f.channels, consumers: map[string]api.Consumer{}}
	handlers := append([]func(){}, f.handlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		h()
	}
	return nil
}

// disconnect closes the current channel and reports it to its consumers.
func (f *fakeConnection) disconnect() {
	f.mu.Lock()
	ch := f.channel
	f.channel = nil
	f.mu.Unlock()
	if ch == nil {
		return
	}

	for _, c := range ch.drain() {
		c.HandleChannelClose(ch, errConnectionReset)
	}
}

func (f *fakeConnection) reconnect() {
	f.disconnect()
	if err := f.Connect(context.Background()); err != nil {
		panic(err)
	}
}

func (f *fakeConnection) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel != nil
}

func (f *fakeConnection) Channel() api.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channel == nil {
		return nil
	}
	return f.channel
}

func (f *fakeConnection) current() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

func (f *fakeConnection) OnConnected(handler func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.disconnect()
	return nil
}

func (f *fakeConnection) consumeCalls() []consumeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]consumeCall(nil), f.consumes...)
}

func (f *fakeConnection) cancelCalls() []cancelCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cancelCall(nil), f.cancels...)
}

func (f *fakeConnection) ackCalls() []ackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackCall(nil), f.acks...)
}

func (f *fakeConnection) set(apply func(f *fakeConnection)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f)
}

type fakeChannel struct {
	conn      *fakeConnection
	id        int
	closed    bool
	consumers map[string]api.Consumer
}

var _ api.Channel = (*fakeChannel)(nil)

func (c *fakeChannel) Consume(queue string, noAck bool, consumerTag string, consumer api.Consumer) (string, error) {
	f := c.conn
	f.mu.Lock()
	defer f.mu.Unlock()

	if c.closed {
		return "", api.ErrClosed
	}
	if f.consumeErr != nil {
		return "", f.consumeErr
	}
	tag := consumerTag
	if tag == "" || f.reassignTags {
		f.nextTag++
		tag = fmt.Sprintf("ctag-%d", f.nextTag)
	}
	c.consumers[tag] = consumer
	f.consumes = append(f.consumes, consumeCall{channel: c.id, queue: queue, noAck: noAck, hint: consumerTag, tag: tag})
	return tag, nil
}

func (c *fakeChannel) Cancel(consumerTag string) error {
	f := c.conn
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancels = append(f.cancels, cancelCall{channel: c.id, tag: consumerTag})
	if f.cancelPanic {
		panic("cancel on a broken channel")
	}
	if f.cancelErr != nil {
		return f.cancelErr
	}
	delete(c.consumers, consumerTag)
	return nil
}

func (c *fakeChannel) Ack(deliveryTag uint64, multiple bool) error {
	f := c.conn
	f.mu.Lock()
	defer f.mu.Unlock()

	f.acks = append(f.acks, ackCall{channel: c.id, deliveryTag: deliveryTag, multiple: multiple})
	return nil
}

// deliver hands a delivery to the consumer registered under consumerTag.
func (c *fakeChannel) deliver(consumerTag string, deliveryTag uint64, body string) bool {
	c.conn.mu.Lock()
	consumer, ok := c.consumers[consumerTag]
	c.conn.mu.Unlock()
	if !ok {
		return false
	}
	consumer.HandleDelivery(api.Delivery{
		ConsumerTag: consumerTag,
		DeliveryTag: deliveryTag,
		RoutingKey:  "orders",
		Body:        []byte(body),
	})
	return true
}

// brokerCancel removes the consumer as a deleted queue would.
func (c *fakeChannel) brokerCancel(consumerTag string) {
	c.conn.mu.Lock()
	consumer, ok := c.consumers[consumerTag]
	delete(c.consumers, consumerTag)
	c.conn.mu.Unlock()
	if ok {
		consumer.HandleCancel(consumerTag)
	}
}

func (c *fakeChannel) drain() []api.Consumer {
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	c.closed = true
	consumers := make([]api.Consumer, 0, len(c.consumers))
	for _, consumer := range c.consumers {
		consumers = append(consumers, consumer)
	}
	c.consumers = map[string]api.Consumer{}
	return consumers
}

// spyMetrics counts the calls made to it.
type spyMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ api.MetricsCollector = (*spyMetrics)(nil)

func newSpyMetrics() *spyMetrics {
	return &spyMetrics{counts: map[string]int{}}
}

func (s *spyMetrics) inc(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
}

func (s *spyMetrics) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func outcome(name string, success bool) string {
	if success {
		return name + ".success"
	}
	return name + ".failure"
}

func (s *spyMetrics) RecordSubscribe(_ string, success bool) { s.inc(outcome("subscribe", success)) }
func (s *spyMetrics) RecordRecovery(_ string, success bool) { s.inc(outcome("recovery", success)) }
func (s *spyMetrics) RecordCancel(string) { s.inc("cancel") }
func (s *spyMetrics) RecordTeardownFailure(string) { s.inc("teardown_failure") }
func (s *spyMetrics) RecordDelivery(string) { s.inc("delivery") }
func (s *spyMetrics) RecordDropped(string) { s.inc("dropped") }
func (s *spyMetrics) RecordAck(_ string, success bool) { s.inc(outcome("ack", success)) }
func (s *spyMetrics) SetConsuming(string, bool)              {}
