package models

import "time"

// Event types
const (
	EventTypeMessageReceived = "MESSAGE_RECEIVED"
	EventTypeReplySent       = "REPLY_SENT"
	EventTypeOrderCommitted  = "ORDER_COMMITTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageReceivedEvent carries an inbound chat message from a channel gateway
type MessageReceivedEvent struct {
	BaseEvent
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Channel        string `json:"channel"`
	Text           string `json:"text"`
}

// ReplySentEvent carries the reply for a gateway to deliver
type ReplySentEvent struct {
	BaseEvent
	ConversationID string `json:"conversation_id"`
	InReplyTo      string `json:"in_reply_to,omitempty"`
	Channel        string `json:"channel"`
	Text           string `json:"text"`
	OrderID        *int64 `json:"order_id,omitempty"`
}

// OrderCommittedEvent published when a chat order is created and stock taken
type OrderCommittedEvent struct {
	BaseEvent
	OrderID        int64         `json:"order_id"`
	CustomerID     int64         `json:"customer_id"`
	ConversationID string        `json:"conversation_id"`
	TotalAmount    int64         `json:"total_amount"`
	Item           OrderItemData `json:"item"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}
