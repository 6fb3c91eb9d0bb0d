package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"cart-order-system/internal/logger"
	"cart-order-system/internal/models"
)

// KafkaPublisher writes order events keyed by order id, so events of one
// order land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		logger: log,
	}
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(event.OrderID)),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to topic %s", p.writer.Topic),
			logger.RequestID(ctx), err, map[string]interface{}{
				"topic":    p.writer.Topic,
				"order_id": event.OrderID,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to topic %s", p.writer.Topic),
		logger.RequestID(ctx), map[string]interface{}{
			"topic":        p.writer.Topic,
			"event_type":   event.Type,
			"message_size": len(data),
		})
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads order events as part of a consumer group. The offset of
// every message is committed once the handler returns, failed or not; the
// reconciler's periodic tick repairs whatever a failed event left behind.
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, log *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger: log,
	}
}

func (c *KafkaConsumer) StartConsuming(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
	cfg := c.reader.Config()
	c.logger.Info("consumer_started",
		fmt.Sprintf("Started consuming from topic %s", cfg.Topic),
		"", map[string]interface{}{
			"topic":    cfg.Topic,
			"group_id": cfg.GroupID,
		})

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		fields := map[string]interface{}{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}

		handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
		err = handler(handleCtx, msg.Value)
		cancel()
		if err != nil {
			// the periodic reconcile tick covers a skipped event
			c.logger.Error("message_processing_failed", "Failed to process message", "", err, fields)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("message_commit_failed", "Failed to commit offset", "", err, fields)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
