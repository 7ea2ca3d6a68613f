package domain

import "time"

// IntentRepository описывает требования к хранилищу payment intent-ов.
// Все условные обновления (статус, merchant order id, stock_adjusted)
// атомарны на уровне хранилища: никакого read-modify-write.
type IntentRepository interface {
	// Create сохраняет новый интент. Возвращает ErrIntentVersionConflict,
	// если запись с таким ID уже существует.
	Create(intent PaymentIntent) error
	// Get возвращает интент по идентификатору или ErrIntentNotFound.
	Get(id string) (PaymentIntent, error)
	// GetByMerchantOrderID ищет интент по корреляционному идентификатору.
	GetByMerchantOrderID(merchantOrderID string) (PaymentIntent, error)
	// AssignMerchantOrderID присваивает merchant order id, если он ещё не
	// присвоен, и возвращает действующий. Повторный вызов с другим значением
	// возвращает уже присвоенный id без ошибки (присвоение идемпотентно).
	AssignMerchantOrderID(id, merchantOrderID string) (string, error)
	// AppendAttempt добавляет запись обращения к провайдеру. Список attempts
	// append-only, переупорядочивание запрещено.
	AppendAttempt(id string, attempt Attempt) error
	// UpdateStatus выполняет условный переход статуса: запись происходит,
	// только если текущий статус входит в TransitionSources(to). Для to=paid
	// одновременно проставляется paidAt. Отказ перехода — ErrIntentStateConflict.
	UpdateStatus(id string, to IntentStatus, paidAt *time.Time) error
	// SetGatewayState перезаписывает неавторитативные поля последнего
	// наблюдения провайдера. Разрешено и для терминальных интентов.
	SetGatewayState(id, gatewayOrderID, transactionID string, payload []byte) error
	// TryMarkStockAdjusted атомарно переводит stock_adjusted false→true.
	// Возвращает true только победителю гонки; именно это значение решает,
	// выполнять ли списание остатков.
	TryMarkStockAdjusted(id string) (bool, error)
	// MarkReconciliation помечает интент как требующий ручного вмешательства.
	MarkReconciliation(id, note string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Уникальность по intent_id обеспечивается
	// constraint-ом хранилища: гонка даёт одного победителя, остальные
	// получают ErrOrderExists и уходят в update-путь.
	Create(order Order) error
	// Get возвращает заказ по публичному идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByIntentID возвращает заказ по интенту — проверка идемпотентности
	// материализации.
	GetByIntentID(intentID string) (Order, error)
	// UpdatePaymentInfo обновляет платёжные поля заказа при повторном
	// подтверждении.
	UpdatePaymentInfo(orderID, transactionID string) error
	// SetDelivery записывает результат push в сервис доставки.
	SetDelivery(orderID string, info ShippingInfo) error
	// SetEmailStatus фиксирует результат отправки письма-подтверждения.
	SetEmailStatus(orderID, status string) error
}

// CatalogRepository — авторитетный источник цен и остатков.
type CatalogRepository interface {
	// ResolveLine разрешает позицию в цену и остаток.
	// Ошибки: ErrProductNotFound, ErrVariantNotFound.
	ResolveLine(productID, variantSelector string) (ResolvedLine, error)
	// Get возвращает товар целиком.
	Get(productID string) (Product, error)
	// Upsert создаёт или замещает товар (наполнение каталога, тесты).
	Upsert(product Product) error
	// DecrementStock атомарно уменьшает остаток разрешённого варианта на qty
	// с нижней границей ноль и возвращает остаток после списания.
	DecrementStock(productID, variantSelector string, qty int32) (int32, error)
	// Deactivate снимает товар с продажи.
	Deactivate(productID string) error
}

// CouponRepository хранит статическую таблицу правил купонов.
type CouponRepository interface {
	Get(code string) (Coupon, error)
	Upsert(coupon Coupon) error
}
