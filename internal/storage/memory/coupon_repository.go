package memory

import (
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// couponRepositoryInMemory — in-memory таблица правил купонов.
type couponRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Coupon
}

// NewCouponRepository создаёт in-memory реализацию CouponRepository.
func NewCouponRepository() domain.CouponRepository {
	return &couponRepositoryInMemory{
		items: make(map[string]domain.Coupon),
	}
}

// Get возвращает правило купона или ErrCouponNotFound. Код нечувствителен
// к регистру.
func (r *couponRepositoryInMemory) Get(code string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupon, ok := r.items[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// Upsert создаёт или замещает правило купона.
func (r *couponRepositoryInMemory) Upsert(coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	r.items[coupon.Code] = coupon
	return nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
