package main

import (
	"context"
	"errors"
	"os"

	"subtrack/internal/amqp"
	"subtrack/internal/cli"
	"subtrack/internal/log"
	"subtrack/internal/notify"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.SetupLogger(nil, log.ComponentAMQP).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentAMQP)
	logger.Info("Starting notifier")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notifier")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	presenter := notify.LogPublisher{Logger: logger.Slog()}
	handle := func(ctx context.Context, msg *amqp.ReminderMessage) error {
		return presenter.Publish(ctx, msg.Notification())
	}

	logger.Info("Consuming reminder messages", "queue", cfg.AMQPQueue)
	if err := client.ConsumeReminders(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Notifier shutdown complete")
}
