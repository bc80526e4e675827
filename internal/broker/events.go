package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"chat-order-service/internal/models"
	"chat-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders  *Producer
	replies *Producer
}

// NewEventPublisher creates a new event publisher. Either producer may be nil,
// in which case its events are dropped.
func NewEventPublisher(orders, replies *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, replies: replies}
}

// PublishOrderCommitted publishes an OrderCommitted event keyed by order
func (ep *EventPublisher) PublishOrderCommitted(ctx context.Context, event *models.OrderCommittedEvent) error {
	if ep.orders == nil {
		return nil
	}
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishReply publishes a ReplySent event keyed by conversation
func (ep *EventPublisher) PublishReply(ctx context.Context, event *models.ReplySentEvent) error {
	if ep.replies == nil {
		return nil
	}
	return ep.replies.PublishEvent(ctx, event.ConversationID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onMessageReceived func(context.Context, *models.MessageReceivedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnMessageReceived registers a handler for MessageReceived events
func (eh *EventHandler) OnMessageReceived(handler func(context.Context, *models.MessageReceivedEvent) error) {
	eh.onMessageReceived = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeMessageReceived:
		if eh.onMessageReceived != nil {
			var event models.MessageReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal MessageReceived event: %w", err)
			}
			if event.ConversationID == "" {
				event.ConversationID = string(msg.Key)
			}
			return eh.onMessageReceived(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
