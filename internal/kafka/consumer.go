package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-admission/internal/logger"
	"ms-admission/internal/models"
)

// RefundHandler reacts to one completed refund.
type RefundHandler func(ctx context.Context, refund models.RefundCompleted) error

type Consumer struct {
	reader     *kafka.Reader
	logger     *logger.Logger
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log, retryDelay: time.Second}
}

// Start consumes refund events until ctx is cancelled. Undecodable messages
// and handler failures are logged and skipped.
func (c *Consumer) Start(ctx context.Context, handler RefundHandler) error {
	c.logger.LogKafka("CONSUMER_START", c.reader.Config().Topic, "refund consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		refund, err := DecodeRefund(msg.Value)
		if err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Skipping message at offset %d: %v", msg.Offset, err))
			continue
		}

		c.logger.LogKafka("RECEIVED", msg.Topic, fmt.Sprintf("refund %s for ticket %d", refund.RefundID, refund.TicketID))
		if err := handler(ctx, refund); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Refund %s not applied: %v", refund.RefundID, err))
		}
	}
}

func DecodeRefund(value []byte) (models.RefundCompleted, error) {
	var refund models.RefundCompleted
	if err := json.Unmarshal(value, &refund); err != nil {
		return refund, fmt.Errorf("failed to unmarshal refund: %w", err)
	}
	if refund.TicketID == 0 {
		return refund, errors.New("refund without ticket id")
	}
	return refund, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
