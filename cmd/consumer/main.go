package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/case-management-suite/consumer"
	"github.com/case-management-suite/consumer/api"
	"github.com/case-management-suite/consumer/config"
	"github.com/case-management-suite/consumer/incoming"
	"github.com/case-management-suite/consumer/internal/logger"
	"github.com/case-management-suite/consumer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const connectTimeout = 30 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "consumer",
		Short: "Consume a queue and acknowledge every message",
		Long: `consumer subscribes to a single queue, logs every delivery and acknowledges it.
The subscription is recovered automatically whenever the broker connection comes back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.LoggerConfig(), "consumer")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	var opts []incoming.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, incoming.WithMetrics(metrics.NewPrometheus(nil, cfg.Metrics.Namespace)))
		srv := serveMetrics(cfg.Metrics.ListenAddress, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	channel, conn, err := consumer.New(cfg, log, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := channel.Close(); err != nil {
			log.Error().Err(err).Msg("Error while closing")
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := conn.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	channel.OnReceived(func(msg api.ReceivedMessage) {
		log.Info().
			Str("consumer_tag", msg.ConsumerTag).
			Uint64("delivery_tag", msg.DeliveryTag).
			Str("routing_key", msg.RoutingKey).
			Bool("redelivered", msg.Redelivered).
			Int("body_length", len(msg.Body)).
			Msg("Received")
		if err := msg.Source.Ack(msg.DeliveryTag); err != nil {
			log.Error().Err(err).Uint64("delivery_tag", msg.DeliveryTag).Msg("Could not ACK")
		}
	})

	if err := channel.StartConsume(); err != nil {
		return err
	}
	log.Info().Str("address", channel.Address().String()).Msg("Consuming")

	term := make(chan os.Signal, 1)
	signal.Notify(term, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(term)
	select {
	case <-term:
		log.Info().Msg("Received SIGTERM, exiting gracefully...")
	case <-ctx.Done():
	}

	channel.StopConsume()
	return nil
}

func serveMetrics(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("listen_address", addr).Msg("Metrics server error")
		}
	}()
	return srv
}
