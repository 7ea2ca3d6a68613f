package domain

import "time"

// IntentStatus описывает жизненный цикл payment intent.
type IntentStatus string

const (
	// IntentStatusPending — интент создан, транзакция у провайдера ещё не открыта.
	IntentStatusPending IntentStatus = "pending"
	// IntentStatusInitiated — транзакция у провайдера создана, ждём подтверждения.
	IntentStatusInitiated IntentStatus = "initiated"
	// IntentStatusPaid — провайдер подтвердил оплату; заказ материализован
	// (или ожидает reconciliation).
	IntentStatusPaid IntentStatus = "paid"
	// IntentStatusFailed — провайдер отклонил оплату либо суммы разошлись.
	IntentStatusFailed IntentStatus = "failed"
	// IntentStatusExpired — транзакция у провайдера истекла.
	IntentStatusExpired IntentStatus = "expired"
)

// Terminal сообщает, запрещены ли дальнейшие переходы статуса.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusPaid, IntentStatusFailed, IntentStatusExpired:
		return true
	default:
		return false
	}
}

// TransitionSources возвращает статусы, из которых разрешён переход в target.
// State machine строго forward-only: pending → initiated → {paid|failed|expired},
// при этом paid/failed/expired достижимы и напрямую из pending (например, COD
// или отказ провайдера до создания транзакции).
func TransitionSources(target IntentStatus) []IntentStatus {
	switch target {
	case IntentStatusInitiated:
		return []IntentStatus{IntentStatusPending}
	case IntentStatusPaid, IntentStatusFailed, IntentStatusExpired:
		return []IntentStatus{IntentStatusPending, IntentStatusInitiated}
	default:
		return nil
	}
}

// OrderLine — одна позиция корзины, зафиксированная при создании интента.
// DisplayName и UnitPriceMinor — снимок разрешённой цены на момент расчёта
// тоталов; downstream каталог для них больше не читается.
type OrderLine struct {
	// ProductID — идентификатор товара в каталоге.
	ProductID string
	// VariantSelector — выбранный вариант товара; пустая строка означает
	// базовый вариант.
	VariantSelector string
	// Qty — запрошенное количество, строго положительное.
	Qty int32

	DisplayName    string
	UnitPriceMinor int64
}

// Totals — неизменяемый денежный снимок интента. Все суммы в минимальных
// денежных единицах; TotalMinor — единственный источник истины о том, какую
// сумму просят списать у провайдера.
type Totals struct {
	SubtotalMinor    int64
	ShippingFeeMinor int64
	TaxMinor         int64
	DiscountMinor    int64
	TotalMinor       int64
}

// CustomerInfo — контактный снимок покупателя.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// ShippingAddress — снимок адреса доставки. Все поля обязаны быть заполнены
// до того, как интент может быть создан.
type ShippingAddress struct {
	Address    string
	City       string
	State      string
	PostalCode string
	Phone      string
}

// MissingFields возвращает имена незаполненных обязательных полей адреса.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	if a.Address == "" {
		missing = append(missing, "address")
	}
	if a.City == "" {
		missing = append(missing, "city")
	}
	if a.State == "" {
		missing = append(missing, "state")
	}
	if a.PostalCode == "" {
		missing = append(missing, "postal_code")
	}
	if a.Phone == "" {
		missing = append(missing, "phone")
	}
	return missing
}

// AttemptStatus — исход одного обращения к провайдеру.
type AttemptStatus string

const (
	AttemptStatusInitiated AttemptStatus = "initiated"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// Attempt — запись об обращении к провайдеру. Список attempts append-only и
// упорядочен по моменту вставки; записи никогда не мутируются.
type Attempt struct {
	ID               string
	Provider         string
	AmountMinor      int64
	Status           AttemptStatus
	ProviderResponse string
	CreatedAt        time.Time
}

// PaymentIntent — durable-запись одной попытки оформления заказа; агрегатный
// корень core-пайплайна. Интенты никогда не удаляются: после терминального
// статуса запись остаётся для аудита и reconciliation.
type PaymentIntent struct {
	// ID — глобально уникальный, видимый клиенту идентификатор.
	ID string
	// MerchantOrderID — корреляционный идентификатор для провайдера.
	// Присваивается лениво, не более одного раза, до первого обращения
	// к провайдеру; после присвоения неизменяем.
	MerchantOrderID string
	// Provider — код платёжного провайдера (cardpay, upi, cod).
	Provider string
	Currency string

	Items      []OrderLine
	CouponCode string
	Customer   CustomerInfo
	Shipping   ShippingAddress
	Totals     Totals

	Status   IntentStatus
	Attempts []Attempt

	// StockAdjusted монотонно переходит false→true и гарантирует ровно одно
	// списание остатков на интент, сколько бы раз ни пришло подтверждение.
	StockAdjusted bool
	// NeedsReconciliation выставляется, когда оплаченный интент не удалось
	// материализовать в заказ; это явный сигнал «нужен человек».
	NeedsReconciliation bool
	ReconciliationNote  string

	// Неавторитативное последнее состояние провайдера; перезаписывается при
	// каждом наблюдении подтверждения, используется только для отладки.
	GatewayOrderID       string
	GatewayTransactionID string
	GatewayPayload       []byte

	PaidAt    *time.Time
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты интента и возвращает список замечаний.
func (i *PaymentIntent) ValidateInvariants() []error {
	var errs []error

	if i.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(i.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, line := range i.Items {
		if line.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}
	if i.Totals.TotalMinor <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if missing := i.Shipping.MissingFields(); len(missing) > 0 {
		errs = append(errs, &ShippingAddressError{Missing: missing})
	}

	return errs
}

// LastAttempt возвращает последнюю запись обращения к провайдеру.
func (i *PaymentIntent) LastAttempt() (Attempt, bool) {
	if len(i.Attempts) == 0 {
		return Attempt{}, false
	}
	return i.Attempts[len(i.Attempts)-1], true
}
