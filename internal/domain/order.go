package domain

import "time"

// OrderStatus описывает жизненный цикл заказа. Статус заказа независим от
// статуса payment intent.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает обработки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ собирается.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан перевозчику.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до завершения цикла.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Статусы best-effort push в сервис доставки.
const (
	ShippingPushPending = "pending"
	ShippingPushDone    = "pushed"
	ShippingPushFailed  = "push_failed"
)

// Статусы отправки письма-подтверждения.
const (
	EmailPending = "pending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// OrderItem — денормализованный снимок позиции на момент материализации,
// независимый от последующих изменений каталога.
type OrderItem struct {
	ID              string
	ProductID       string
	DisplayName     string
	VariantSelector string
	Qty             int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	CreatedAt      time.Time
}

// ShippingInfo — изменяемая часть заказа, заполняемая push-интеграцией
// с сервисом доставки.
type ShippingInfo struct {
	CarrierName    string
	CarrierOrderID string
	TrackingNumber string
	PushStatus     string
	// PushError хранит усечённый текст последней ошибки push.
	PushError string
}

// Order представляет коммерческое обязательство, создаваемое не более одного
// раза на payment intent. Уникальность по IntentID обязана обеспечиваться
// constraint-ом на уровне хранилища, а не проверкой перед вставкой.
type Order struct {
	// ID — публичный, человекочитаемый идентификатор заказа.
	// Не совпадает с MerchantOrderID интента.
	ID string
	// IntentID — обратная ссылка на интент; используется для идемпотентности.
	IntentID        string
	MerchantOrderID string

	Customer CustomerInfo
	Shipping ShippingAddress

	Items    []OrderItem
	Currency string
	Totals   Totals

	Status OrderStatus

	PaymentProvider      string
	GatewayTransactionID string

	Delivery    ShippingInfo
	EmailStatus string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет согласованность заказа перед вставкой.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.IntentID == "" {
		errs = append(errs, ErrIntentNotFound)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}
	if o.Totals.TotalMinor <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}

	return errs
}
