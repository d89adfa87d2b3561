package gochan

import (
	"context"
	"errors"
	"sync"

	"github.com/case-management-suite/consumer/api"
	"github.com/rs/zerolog"
)

// StubConnection is an api.Connection over a ChanServer. Disconnect and
// Connect stand in for a lost and re-established broker connection.
type StubConnection struct {
	SimulateConnectionError bool
	Server                  *ChanServer

	mu       sync.Mutex
	channel  *Channel
	closed   bool
	handlers []func()
	log      zerolog.Logger
}

var _ api.Connection = (*StubConnection)(nil)

func NewStubConnection(server *ChanServer, log zerolog.Logger) *StubConnection {
	return &StubConnection{Server: server, log: log}
}

// Connect opens a fresh channel and fires the connected handlers. It is a
// no-op while a channel is open.
func (s *StubConnection) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.SimulateConnectionError {
		return errors.New("connection error")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return api.ErrClosed
	}
	if s.channel != nil {
		s.mu.Unlock()
		return nil
	}
	s.channel = s.Server.openChannel()
	handlers := append([]func(){}, s.handlers...)
	s.mu.Unlock()

	s.log.Debug().Msg("Connected")
	for _, h := range handlers {
		h()
	}
	return nil
}

// Disconnect drops the current channel as a network failure would.
func (s *StubConnection) Disconnect() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.close()
		s.log.Debug().Msg("Disconnected")
	}
}

func (s *StubConnection) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel != nil
}

func (s *StubConnection) Channel() api.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return nil
	}
	return s.channel
}

// CurrentChannel returns the open in-memory channel, or nil.
func (s *StubConnection) CurrentChannel() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *StubConnection) OnConnected(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *StubConnection) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Disconnect()
	return nil
}
