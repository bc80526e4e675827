package worker

import (
	"context"
	"errors"
	"time"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/broker"
	"chat-order-service/internal/dialogue"
	"chat-order-service/internal/dispatch"
	"chat-order-service/internal/models"
	"chat-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBusyRetries = 5
	defaultBusyBackoff = 200 * time.Millisecond
)

// TurnDispatcher runs a turn for an inbound message.
type TurnDispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Inbound) (dialogue.Reply, error)
}

// ReplyPublisher sends replies back to the channel gateways.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, event *models.ReplySentEvent) error
}

// MessageWorker turns inbound chat messages from Kafka into replies
type MessageWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	dispatcher   TurnDispatcher
	publisher    ReplyPublisher
	busyRetries  int
	busyBackoff  time.Duration
	logger       *zap.Logger
}

// NewMessageWorker creates a new message worker
func NewMessageWorker(
	consumer *broker.Consumer,
	dispatcher TurnDispatcher,
	publisher ReplyPublisher,
) *MessageWorker {
	w := &MessageWorker{
		consumer:    consumer,
		dispatcher:  dispatcher,
		publisher:   publisher,
		busyRetries: defaultBusyRetries,
		busyBackoff: defaultBusyBackoff,
		logger:      util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnMessageReceived(w.HandleMessageReceived)
	return w
}

// Start starts the worker
func (w *MessageWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting message worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *MessageWorker) Stop() error {
	w.logger.Info("Stopping message worker")
	return w.consumer.Close()
}

// HandleMessageReceived runs the turn for event and publishes its reply. A
// turn that finds its conversation busy is retried with linear backoff.
func (w *MessageWorker) HandleMessageReceived(ctx context.Context, event *models.MessageReceivedEvent) error {
	in := dispatch.Inbound{
		ConversationID: event.ConversationID,
		MessageID:      event.MessageID,
		Channel:        event.Channel,
		Text:           event.Text,
	}

	var (
		reply dialogue.Reply
		err   error
	)
	for attempt := 0; attempt <= w.busyRetries; attempt++ {
		reply, err = w.dispatcher.Dispatch(ctx, in)
		if !errors.Is(err, apperr.ErrTurnInProgress) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * w.busyBackoff):
		}
	}

	switch {
	case errors.Is(err, apperr.ErrDuplicateMessage):
		return nil
	case err != nil:
		w.logger.Error("Failed to handle inbound message",
			zap.String("conversation_id", event.ConversationID),
			zap.String("message_id", event.MessageID),
			zap.String("kind", apperr.Kind(err)),
			zap.Error(err))
		return err
	}

	return w.publisher.PublishReply(ctx, &models.ReplySentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReplySent,
			Timestamp: time.Now(),
		},
		ConversationID: event.ConversationID,
		InReplyTo:      event.MessageID,
		Channel:        event.Channel,
		Text:           reply.Text,
		OrderID:        reply.OrderID,
	})
}
