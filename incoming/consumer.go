package incoming

import (
	"sync/atomic"

	"github.com/case-management-suite/consumer/api"
)

type boundChannel struct {
	ch api.Channel
}

// eventingConsumer forwards the callbacks of one subscription to hooks that
// can be attached and detached while the transport keeps calling it.
type eventingConsumer struct {
	bound    atomic.Pointer[boundChannel]
	running  atomic.Bool
	received atomic.Pointer[func(api.Delivery)]
	shutdown atomic.Pointer[func(string)]

	// cancelled is set once the broker cancelled the subscription.
	cancelled atomic.Bool
}

var _ api.Consumer = (*eventingConsumer)(nil)

func (e *eventingConsumer) attach(onReceived func(api.Delivery), onShutdown func(string)) {
	e.received.Store(&onReceived)
	e.shutdown.Store(&onShutdown)
}

func (e *eventingConsumer) detach() {
	e.received.Store(nil)
	e.shutdown.Store(nil)
}

// bind marks ch as the channel carrying the subscription. Close notifications
// from any other channel are ignored from then on.
func (e *eventingConsumer) bind(ch api.Channel) {
	e.bound.Store(&boundChannel{ch: ch})
	e.running.Store(true)
}

func (e *eventingConsumer) channel() api.Channel {
	if b := e.bound.Load(); b != nil {
		return b.ch
	}
	return nil
}

func (e *eventingConsumer) IsRunning() bool {
	return e.running.Load()
}

func (e *eventingConsumer) HandleDelivery(d api.Delivery) {
	if f := e.received.Load(); f != nil {
		(*f)(d)
	}
}

func (e *eventingConsumer) HandleCancel(consumerTag string) {
	e.cancelled.Store(true)
	e.running.Store(false)
	if f := e.shutdown.Load(); f != nil {
		(*f)(consumerTag)
	}
}

func (e *eventingConsumer) HandleChannelClose(ch api.Channel, _ /* reason */ error) {
	b := e.bound.Load()
	if b == nil || b.ch != ch {
		return
	}
	e.running.Store(false)
}
