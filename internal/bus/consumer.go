package bus

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"opsflow/internal/automation"
	"opsflow/internal/config"
	"opsflow/internal/models"
)

// EventBridge is the slice of the automation service the consumer needs.
type EventBridge interface {
	HandleEvent(ctx context.Context, evt models.DomainEvent) (automation.BridgeResult, error)
}

// Consumer subscribes to the platform's domain-event queue and feeds every
// decoded event into the automation bridge. The bus delivers at least once;
// the engine's idempotency keys make redeliveries harmless, so messages are
// acked after the bridge returns regardless of run outcome.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	bridge  EventBridge
	logger  *logrus.Logger
}

func NewConsumer(cfg config.BusConfig, bridge EventBridge, logger *logrus.Logger) (*Consumer, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}
	if err := channel.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		queue:   cfg.Queue,
		bridge:  bridge,
		logger:  logger,
	}, nil
}

// Start consumes until the context is canceled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logger.WithField("queue", c.queue).Info("automation: bus consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("bus channel closed")
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// handleDelivery decodes one message and dispatches it. Malformed envelopes
// are rejected without requeue (they will never parse better on retry);
// everything else is acked, including events the engine declined or failed —
// failures surface through run status and audit, not bus redelivery.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var evt models.DomainEvent
	if err := json.Unmarshal(delivery.Body, &evt); err != nil {
		c.logger.Warnf("automation: dropping malformed event envelope: %v", err)
		if err := delivery.Nack(false, false); err != nil {
			c.logger.Warnf("automation: nack failed: %v", err)
		}
		return
	}

	result, err := c.bridge.HandleEvent(ctx, evt)
	if err != nil {
		c.logger.WithField("event_type", evt.Type).Errorf("automation: event rejected: %v", err)
	} else if !result.Handled {
		c.logger.WithField("event_type", evt.Type).Debug("automation: no trigger registered for event")
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Warnf("automation: ack failed: %v", err)
	}
}
