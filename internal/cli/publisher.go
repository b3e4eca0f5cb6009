package cli

import (
	"fmt"

	"subtrack/internal/amqp"
	"subtrack/internal/log"
	"subtrack/internal/notify"
)

// NewPublisher returns the AMQP publisher when AMQP_URL is set, otherwise a
// publisher that writes reminders to the log. The returned close func is never nil.
func (a *App) NewPublisher() (notify.Publisher, func() error, error) {
	if a.Config.AMQPURL == "" {
		a.Logger.Info("AMQP disabled, reminders will be logged")
		return notify.LogPublisher{Logger: a.Logger.WithComponent(log.ComponentDispatcher).Slog()}, func() error { return nil }, nil
	}
	client, err := amqp.NewClient(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPQueue)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize AMQP client: %w", err)
	}
	a.Logger.Info("AMQP publisher initialized", "exchange", a.Config.AMQPExchange, "queue", a.Config.AMQPQueue)
	return client, client.Close, nil
}

// NewDispatcher builds a dispatcher over the pending notification table.
func (a *App) NewDispatcher(p notify.Publisher) *notify.Dispatcher {
	return notify.NewDispatcher(a.Repo, p, a.Config.DispatchBatchSize,
		a.Logger.WithComponent(log.ComponentDispatcher).Slog(), a.Metrics)
}
