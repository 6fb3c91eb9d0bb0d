package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-order-system/internal/config"
	"cart-order-system/internal/logger"
	"cart-order-system/internal/models"
)

func TestNewEventPublisher_None(t *testing.T) {
	cfg := &config.Config{Events: config.EventsConfig{Driver: config.EventsNone}}

	pub, err := NewEventPublisher(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, pub.PublishOrderEvent(context.Background(), models.NewOrderEvent(models.EventOrderPlaced, 1)))
	assert.NoError(t, pub.Close())
}

func TestNewEventConsumer_NoneHasNoSource(t *testing.T) {
	cfg := &config.Config{Events: config.EventsConfig{Driver: config.EventsNone}}

	consumer, err := NewEventConsumer(context.Background(), cfg, logger.Discard(), "test")
	require.NoError(t, err)
	assert.Nil(t, consumer)
}

func TestNewEventPublisher_Kafka(t *testing.T) {
	cfg := &config.Config{
		Events: config.EventsConfig{Driver: config.EventsKafka},
		Kafka:  config.KafkaConfig{Brokers: "localhost:9092", Topic: "cart-order-events"},
	}

	pub, err := NewEventPublisher(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	kp, ok := pub.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "cart-order-events", kp.writer.Topic)
	assert.NoError(t, pub.Close())
}

func TestNewEventPublisher_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Events: config.EventsConfig{Driver: "carrier-pigeon"}}

	_, err := NewEventPublisher(context.Background(), cfg, logger.Discard())
	assert.ErrorContains(t, err, "unknown events driver")

	_, err = NewEventConsumer(context.Background(), cfg, logger.Discard(), "test")
	assert.ErrorContains(t, err, "unknown events driver")
}
