package consumer

import (
	"fmt"

	"github.com/case-management-suite/consumer/adapters/gochan"
	"github.com/case-management-suite/consumer/adapters/rabbitmq"
	"github.com/case-management-suite/consumer/api"
	"github.com/case-management-suite/consumer/config"
	"github.com/case-management-suite/consumer/incoming"
	"github.com/rs/zerolog"
)

type ConnectionConstructor = func(*config.Config, zerolog.Logger) api.Connection

func ConnectionFactory(t config.BrokerType) (ConnectionConstructor, error) {
	switch t {
	case config.RabbitMQ:
		return func(cfg *config.Config, log zerolog.Logger) api.Connection {
			return rabbitmq.NewConnection(cfg.HostSetting(), cfg.ChannelSetting(), log)
		}, nil
	case config.GoChannels:
		return func(cfg *config.Config, log zerolog.Logger) api.Connection {
			server := gochan.NewChanServer(log, cfg.Channel.Queue)
			return gochan.NewStubConnection(server, log)
		}, nil
	default:
		return nil, fmt.Errorf("unimplemented broker type: %q", t)
	}
}

// New builds an unconnected incoming channel for cfg. Connect the returned
// connection before calling StartConsume.
func New(cfg *config.Config, log zerolog.Logger, opts ...incoming.Option) (*incoming.Channel, api.Connection, error) {
	newConnection, err := ConnectionFactory(cfg.Broker.Type)
	if err != nil {
		return nil, nil, err
	}
	conn := newConnection(cfg, log)
	opts = append([]incoming.Option{incoming.WithLogger(log)}, opts...)
	return incoming.New(conn, cfg.ChannelAddress(), cfg.ChannelSetting(), opts...), conn, nil
}
