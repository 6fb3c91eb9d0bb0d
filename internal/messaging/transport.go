package messaging

import (
	"context"
	"fmt"

	"cart-order-system/internal/config"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/models"
)

// EventPublisher is the publishing side of a transport
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	Close() error
}

// EventConsumer is the consuming side of a transport
type EventConsumer interface {
	StartConsuming(ctx context.Context, handler func(ctx context.Context, body []byte) error) error
	Close() error
}

// NewEventPublisher builds the publisher for the configured events driver
func NewEventPublisher(ctx context.Context, cfg *config.Config, log *logger.Logger) (EventPublisher, error) {
	switch cfg.Events.Driver {
	case config.EventsRabbitMQ:
		conn, err := New(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return NewPublisher(conn, log), nil
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers(), cfg.Kafka.Topic, log), nil
	case config.EventsNone:
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver: %s", cfg.Events.Driver)
	}
}

// NewEventConsumer builds the reconcile consumer for the configured events
// driver. It returns nil for the "none" driver.
func NewEventConsumer(ctx context.Context, cfg *config.Config, log *logger.Logger, consumerTag string) (EventConsumer, error) {
	switch cfg.Events.Driver {
	case config.EventsRabbitMQ:
		conn, err := New(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return NewConsumer(conn, log, ReconcileQueue, consumerTag, cfg.Reconciler.Prefetch), nil
	case config.EventsKafka:
		return NewKafkaConsumer(cfg.KafkaBrokers(), cfg.Kafka.Topic, cfg.Kafka.GroupID, log), nil
	case config.EventsNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown events driver: %s", cfg.Events.Driver)
	}
}
