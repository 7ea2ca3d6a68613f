package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Intent события
	EventTypeIntentCreated EventType = "intent.created"
	EventTypeIntentPaid    EventType = "intent.paid"
	EventTypeIntentFailed  EventType = "intent.failed"
	EventTypeIntentExpired EventType = "intent.expired"
	EventTypeIntentFlagged EventType = "intent.reconciliation_flagged"

	// Order события
	EventTypeOrderCreated EventType = "order.created"
	EventTypeOrderShipped EventType = "order.shipped"
)

// Типы агрегатов outbox-сообщений; по ним EventPublisher выбирает topic.
const (
	AggregateTypeIntent = "intent"
	AggregateTypeOrder  = "order"
)

// Topics для Kafka
const (
	TopicIntentEvents    = "checkout.intent.events"
	TopicOrderEvents     = "checkout.order.events"
	TopicDeadLetterQueue = "checkout.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// IntentEvent представляет событие жизненного цикла payment intent
type IntentEvent struct {
	EventType EventType              `json:"event_type"`
	IntentID  string                 `json:"intent_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	IntentID  string                 `json:"intent_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewIntentEvent создает новое событие payment intent
func NewIntentEvent(eventType EventType, intentID, status string, metadata map[string]interface{}) *IntentEvent {
	return &IntentEvent{
		EventType: eventType,
		IntentID:  intentID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, intentID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		IntentID:  intentID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
