package acceptance

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/vendorflow/taskintake/config"
	"github.com/vendorflow/taskintake/internal/mailbox"
)

// Module wires the acceptance boundary: the in-process hand-off pubsub, the
// Acceptor the mailbox fleet publishes offers through, the AMQP publisher
// reaching the browser-automation worker, and the Decider that applies the
// admission decision once an offer reaches the other side of the hand-off.
var Module = fx.Module("acceptance",
	fx.Provide(
		fx.Annotate(NewPubSub, fx.As(new(message.Publisher), new(message.Subscriber))),
		fx.Annotate(NewAcceptor, fx.As(new(mailbox.Acceptor))),
		provideRouter,
		provideAMQPPublisher,
		fx.Annotate(provideDispatcher, fx.As(new(AutomationDispatcher))),
		NewDecider,
	),
	fx.Invoke(wireDecider),
)

// provideAMQPPublisher returns the concrete *amqp.Publisher rather than the
// message.Publisher interface: NewPubSub already provides message.Publisher
// for the in-process hand-off topic, and fx rejects two providers of the
// same unnamed type.
func provideAMQPPublisher(cfg *config.Config, logger *slog.Logger) (*amqp.Publisher, error) {
	amqpConfig := amqp.NewDurableQueueConfig(cfg.AMQPURL)
	return amqp.NewPublisher(amqpConfig, watermill.NewSlogLogger(logger))
}

func provideDispatcher(cfg *config.Config, publisher *amqp.Publisher) *AMQPDispatcher {
	return NewAMQPDispatcher(publisher, cfg.AMQPQueue)
}

func provideRouter(lc fx.Lifecycle, logger *slog.Logger) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("acceptance: router exited", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return router.Close()
		},
	})
	return router, nil
}

// wireDecider subscribes the Decider to the in-process hand-off topic.
func wireDecider(router *message.Router, ps message.Subscriber, decider *Decider) error {
	return RegisterHandler(router, ps, decider)
}
