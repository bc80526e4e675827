package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chat-order-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleMessageRoutesMessageReceived(t *testing.T) {
	var got *models.MessageReceivedEvent
	eh := NewEventHandler()
	eh.OnMessageReceived(func(_ context.Context, e *models.MessageReceivedEvent) error {
		got = e
		return nil
	})

	event := models.MessageReceivedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeMessageReceived, Timestamp: time.Now()},
		MessageID: "m1",
		Channel:   "instagram",
		Text:      "A0001",
	}
	err := eh.HandleMessage(context.Background(), kafka.Message{Key: []byte("ig-42"), Value: encode(t, event)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ig-42", got.ConversationID)
	assert.Equal(t, "A0001", got.Text)
	assert.Equal(t, "instagram", got.Channel)
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	called := false
	eh := NewEventHandler()
	eh.OnMessageReceived(func(context.Context, *models.MessageReceivedEvent) error {
		called = true
		return nil
	})

	event := models.OrderCommittedEvent{
		BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypeOrderCommitted},
		OrderID:   5,
	}
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: encode(t, event)})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	eh := NewEventHandler()
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestPublisherWithoutProducers(t *testing.T) {
	ep := NewEventPublisher(nil, nil)
	assert.NoError(t, ep.PublishOrderCommitted(context.Background(), &models.OrderCommittedEvent{OrderID: 1}))
	assert.NoError(t, ep.PublishReply(context.Background(), &models.ReplySentEvent{ConversationID: "c1"}))
}

func TestProducerPublish(t *testing.T) {
	t.Skip("Integration test - requires Kafka")

	p := NewProducer([]string{"localhost:9092"}, "chat.replies")
	defer p.Close()
	err := p.PublishEvent(context.Background(), "c1", &models.ReplySentEvent{ConversationID: "c1", Text: "سلام"})
	assert.NoError(t, err)
}
