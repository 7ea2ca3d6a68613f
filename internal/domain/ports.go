package domain

import (
	"context"
	"time"
)

// ProviderState — общий словарь состояний провайдера. Каждый adapter обязан
// отобразить словарь своего провайдера в этот набор; router провайдерской
// терминологии не знает.
type ProviderState string

const (
	ProviderStateInitiated ProviderState = "INITIATED"
	ProviderStateCompleted ProviderState = "COMPLETED"
	ProviderStateFailed    ProviderState = "FAILED"
	ProviderStateExpired   ProviderState = "EXPIRED"
	ProviderStatePending   ProviderState = "PENDING"
)

// GatewayOrder — результат создания транзакции у провайдера.
type GatewayOrder struct {
	State          ProviderState
	GatewayOrderID string
	// RedirectURL — адрес, на который нужно отправить покупателя; может быть
	// пустым (например, для COD).
	RedirectURL string
	Raw         []byte
}

// GatewayStatus — результат запроса статуса транзакции у провайдера.
type GatewayStatus struct {
	State         ProviderState
	TransactionID string
	Raw           []byte
}

// GatewayAdapter — контракт одного платёжного провайдера. Все вызовы обязаны
// быть ограничены таймаутом; сетевая ошибка или таймаут возвращаются как
// ErrGatewayUnavailable и не интерпретируются как отказ в оплате.
type GatewayAdapter interface {
	// Provider возвращает код провайдера (cardpay, upi, cod).
	Provider() string
	// CreateTransaction открывает транзакцию у провайдера.
	CreateTransaction(ctx context.Context, merchantOrderID string, amountMinor int64, redirectURL, callbackURL string) (GatewayOrder, error)
	// QueryStatus запрашивает текущее состояние транзакции.
	QueryStatus(ctx context.Context, merchantOrderID string) (GatewayStatus, error)
}

// WebhookSource — провайдер, присылающий подписанные push-уведомления.
// Схема подписи и формат payload провайдер-специфичны, поэтому живут
// в adapter-е, а не в router-е.
type WebhookSource interface {
	// VerifySignature проверяет подпись тела webhook. Сравнение обязано быть
	// constant-time.
	VerifySignature(body []byte, signature string) bool
	// ParseWebhook извлекает корреляционный идентификатор и состояние из
	// тела webhook.
	ParseWebhook(body []byte) (merchantOrderID string, status GatewayStatus, err error)
}

// ShippingPusher передаёт заказ в сервис доставки. Ошибки push фиксируются
// на заказе и никогда не пробрасываются наружу.
type ShippingPusher interface {
	Push(ctx context.Context, order Order) (ShippingInfo, error)
}

// Notifier отправляет письмо-подтверждение заказа. Fire-and-forget для core:
// ошибка записывается на заказ и синхронно не ретраится.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order Order, recipient string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла интентов и заказов.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(aggregateID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
