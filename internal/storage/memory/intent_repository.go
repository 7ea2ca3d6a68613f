package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// intentRepositoryInMemory — in-memory реализация IntentRepository.
// Условные переходы выполняются под общим мьютексом, что даёт ту же семантику,
// что атомарные conditional update-ы в PostgreSQL.
type intentRepositoryInMemory struct {
	mu         sync.RWMutex
	items      map[string]domain.PaymentIntent
	byMerchant map[string]string
}

// NewIntentRepository возвращает in-memory репозиторий интентов.
func NewIntentRepository() domain.IntentRepository {
	return &intentRepositoryInMemory{
		items:      make(map[string]domain.PaymentIntent),
		byMerchant: make(map[string]string),
	}
}

// Create сохраняет новый интент, если ID ещё не занят.
func (r *intentRepositoryInMemory) Create(intent domain.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[intent.ID]; exists {
		return domain.ErrIntentVersionConflict
	}
	if intent.MerchantOrderID != "" {
		r.byMerchant[intent.MerchantOrderID] = intent.ID
	}
	r.items[intent.ID] = cloneIntent(intent)
	return nil
}

// Get возвращает интент или ErrIntentNotFound.
func (r *intentRepositoryInMemory) Get(id string) (domain.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intent, ok := r.items[id]
	if !ok {
		return domain.PaymentIntent{}, domain.ErrIntentNotFound
	}
	return cloneIntent(intent), nil
}

// GetByMerchantOrderID ищет интент по корреляционному идентификатору.
func (r *intentRepositoryInMemory) GetByMerchantOrderID(merchantOrderID string) (domain.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byMerchant[merchantOrderID]
	if !ok {
		return domain.PaymentIntent{}, domain.ErrIntentNotFound
	}
	intent, ok := r.items[id]
	if !ok {
		return domain.PaymentIntent{}, domain.ErrIntentNotFound
	}
	return cloneIntent(intent), nil
}

// AssignMerchantOrderID присваивает merchant order id не более одного раза.
// Повторный вызов возвращает действующий идентификатор.
func (r *intentRepositoryInMemory) AssignMerchantOrderID(id, merchantOrderID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.items[id]
	if !ok {
		return "", domain.ErrIntentNotFound
	}
	if intent.MerchantOrderID != "" {
		return intent.MerchantOrderID, nil
	}

	intent.MerchantOrderID = merchantOrderID
	intent.UpdatedAt = time.Now().UTC()
	intent.Version++
	r.items[id] = intent
	r.byMerchant[merchantOrderID] = id
	return merchantOrderID, nil
}

// AppendAttempt дописывает запись обращения к провайдеру.
func (r *intentRepositoryInMemory) AppendAttempt(id string, attempt domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.items[id]
	if !ok {
		return domain.ErrIntentNotFound
	}

	intent.Attempts = append(append([]domain.Attempt(nil), intent.Attempts...), attempt)
	intent.UpdatedAt = time.Now().UTC()
	intent.Version++
	r.items[id] = intent
	return nil
}

// UpdateStatus выполняет условный переход статуса. Переход принимается только
// из статусов TransitionSources(to); всё остальное — ErrIntentStateConflict.
func (r *intentRepositoryInMemory) UpdateStatus(id string, to domain.IntentStatus, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.items[id]
	if !ok {
		return domain.ErrIntentNotFound
	}

	allowed := false
	for _, from := range domain.TransitionSources(to) {
		if intent.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.ErrIntentStateConflict
	}

	intent.Status = to
	if to == domain.IntentStatusPaid && paidAt != nil {
		ts := *paidAt
		intent.PaidAt = &ts
	}
	intent.UpdatedAt = time.Now().UTC()
	intent.Version++
	r.items[id] = intent
	return nil
}

// SetGatewayState перезаписывает неавторитативные поля наблюдения провайдера.
func (r *intentRepositoryInMemory) SetGatewayState(id, gatewayOrderID, transactionID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.items[id]
	if !ok {
		return domain.ErrIntentNotFound
	}

	if gatewayOrderID != "" {
		intent.GatewayOrderID = gatewayOrderID
	}
	if transactionID != "" {
		intent.GatewayTransactionID = transactionID
	}
	if payload != nil {
		intent.GatewayPayload = append([]byte(nil), payload...)
	}
	intent.UpdatedAt = time.Now().UTC()
	intent.Version++
	r.items[id] = intent
	return nil
}

// TryMarkStockAdjusted атомарно переводит флаг false→true. Возвращает true
// только первому вызвавшему.
func (r *intentRepositoryInMemory) TryMarkStockAdjusted(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.items[id]
	if !ok {
		return false, domain.ErrIntentNotFound
	}
	if intent.StockAdjusted {
		return false, nil
	}

	intent.StockAdjusted = true
	intent.UpdatedAt = time.Now().UTC()
	intent.Version++
	r.items[id] = intent
	return true, nil
}

// MarkReconciliation помечает интент как требующий ручного вмешательства.
func (r *intentRepositoryInMemory) MarkReconciliation(id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.items[id]
	if !ok {
		return domain.ErrIntentNotFound
	}

	intent.NeedsReconciliation = true
	intent.ReconciliationNote = note
	intent.UpdatedAt = time.Now().UTC()
	intent.Version++
	r.items[id] = intent
	return nil
}

func cloneIntent(src domain.PaymentIntent) domain.PaymentIntent {
	dst := src
	dst.Items = append([]domain.OrderLine(nil), src.Items...)
	dst.Attempts = append([]domain.Attempt(nil), src.Attempts...)
	dst.GatewayPayload = append([]byte(nil), src.GatewayPayload...)
	if src.PaidAt != nil {
		ts := *src.PaidAt
		dst.PaidAt = &ts
	}
	return dst
}

var _ domain.IntentRepository = (*intentRepositoryInMemory)(nil)
