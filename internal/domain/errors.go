package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствия хотя бы одного товара в корзине.
	ErrItemsRequired = errors.New("intent must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка нулевой или отрицательной суммы к оплате.
	ErrInvalidAmount = errors.New("payable amount must be positive")
	// ErrAmountMismatch сигнализирует о дрейфе цен каталога между созданием
	// интента и созданием транзакции у провайдера.
	ErrAmountMismatch = errors.New("recomputed amount does not match intent amount")

	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound возвращается, если вариант товара не найден.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrInsufficientStock — запрошенное количество превышает доступный остаток.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrCouponNotFound возвращается при неизвестном коде купона.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrIntentNotFound возвращается, если payment intent не найден.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrIntentStateConflict — попытка перевести интент назад по state machine
	// или из терминального статуса.
	ErrIntentStateConflict = errors.New("payment intent state transition rejected")
	// ErrIntentVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrIntentVersionConflict = errors.New("payment intent version conflict")
	// ErrMerchantOrderIDAssigned — интенту уже присвоен другой merchant order id.
	ErrMerchantOrderIDAssigned = errors.New("merchant order id already assigned")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists — для данного intent заказ уже материализован
	// (duplicate-key на уникальном индексе по intent_id).
	ErrOrderExists = errors.New("order already exists for intent")

	// ErrUnknownProvider — для интента указан незарегистрированный провайдер.
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrGatewayUnavailable — таймаут или сетевая ошибка при обращении к
	// провайдеру. Означает «неизвестно», а не «платёж отклонён».
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrUnauthorizedSignature — подпись webhook не прошла проверку.
	ErrUnauthorizedSignature = errors.New("webhook signature mismatch")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ShippingAddressError перечисляет незаполненные поля адреса доставки.
type ShippingAddressError struct {
	Missing []string
}

func (e *ShippingAddressError) Error() string {
	return fmt.Sprintf("shipping address incomplete: missing %s", strings.Join(e.Missing, ", "))
}

// StockShortfall описывает одну позицию с нехваткой остатка.
type StockShortfall struct {
	ProductID       string
	VariantSelector string
	Requested       int32
	Available       int32
}

// InsufficientStockError агрегирует позиции, по которым не хватило остатка.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		name := s.ProductID
		if s.VariantSelector != "" {
			name += "/" + s.VariantSelector
		}
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", name, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// Is позволяет сравнивать через errors.Is с сентинелом ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsStateConflict проверяет, является ли ошибка отказом state machine.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrIntentStateConflict)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrIntentVersionConflict)
}
