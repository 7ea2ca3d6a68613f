package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Уникальность по intent_id обеспечивается индексом byIntent под тем же
// мьютексом, что и вставка: гонка материализаций даёт ровно одного победителя.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byIntent map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byIntent: make(map[string]string),
	}
}

// Create сохраняет новый заказ. Для уже материализованного интента
// возвращает ErrOrderExists.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byIntent[order.IntentID]; exists {
		return domain.ErrOrderExists
	}
	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderExists
	}

	r.items[order.ID] = cloneOrder(order)
	r.byIntent[order.IntentID] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByIntentID возвращает заказ по интенту.
func (r *orderRepositoryInMemory) GetByIntentID(intentID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byIntent[intentID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// UpdatePaymentInfo обновляет платёжные поля при повторном подтверждении.
func (r *orderRepositoryInMemory) UpdatePaymentInfo(orderID, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if transactionID != "" {
		order.GatewayTransactionID = transactionID
	}
	order.UpdatedAt = time.Now().UTC()
	order.Version++
	r.items[orderID] = order
	return nil
}

// SetDelivery записывает результат push в сервис доставки.
func (r *orderRepositoryInMemory) SetDelivery(orderID string, info domain.ShippingInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Delivery = info
	order.UpdatedAt = time.Now().UTC()
	order.Version++
	r.items[orderID] = order
	return nil
}

// SetEmailStatus фиксирует результат отправки письма-подтверждения.
func (r *orderRepositoryInMemory) SetEmailStatus(orderID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.EmailStatus = status
	order.UpdatedAt = time.Now().UTC()
	order.Version++
	r.items[orderID] = order
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
