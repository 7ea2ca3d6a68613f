package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// catalogRepositoryInMemory — in-memory каталог для локальной разработки и тестов.
type catalogRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewCatalogRepository возвращает in-memory реализацию CatalogRepository.
func NewCatalogRepository() domain.CatalogRepository {
	return &catalogRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Upsert создаёт или замещает товар.
func (r *catalogRepositoryInMemory) Upsert(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = time.Now().UTC()
	r.items[product.ID] = cloneProduct(product)
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *catalogRepositoryInMemory) Get(productID string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

// ResolveLine разрешает позицию в авторитетную цену и остаток.
func (r *catalogRepositoryInMemory) ResolveLine(productID, variantSelector string) (domain.ResolvedLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[productID]
	if !ok || !product.Active {
		return domain.ResolvedLine{}, domain.ErrProductNotFound
	}

	priceMinor, stock, selector, err := resolvePriceStock(product, variantSelector)
	if err != nil {
		return domain.ResolvedLine{}, err
	}

	return domain.ResolvedLine{
		ProductID:       product.ID,
		VariantSelector: selector,
		DisplayName:     product.Name,
		UnitPriceMinor:  priceMinor,
		AvailableStock:  stock,
	}, nil
}

// DecrementStock атомарно списывает qty с нижней границей ноль и возвращает
// остаток после списания.
func (r *catalogRepositoryInMemory) DecrementStock(productID, variantSelector string, qty int32) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}

	_, _, selector, err := resolvePriceStock(product, variantSelector)
	if err != nil {
		return 0, err
	}

	var remaining int32
	if selector == "" {
		remaining = product.BaseStock - qty
		if remaining < 0 {
			remaining = 0
		}
		product.BaseStock = remaining
	} else {
		found := false
		for idx := range product.Variants {
			if product.Variants[idx].Selector != selector {
				continue
			}
			remaining = product.Variants[idx].Stock - qty
			if remaining < 0 {
				remaining = 0
			}
			product.Variants[idx].Stock = remaining
			found = true
			break
		}
		if !found {
			return 0, domain.ErrVariantNotFound
		}
	}

	product.UpdatedAt = time.Now().UTC()
	r.items[productID] = product
	return remaining, nil
}

// Deactivate снимает товар с продажи.
func (r *catalogRepositoryInMemory) Deactivate(productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Active = false
	product.UpdatedAt = time.Now().UTC()
	r.items[productID] = product
	return nil
}

// resolvePriceStock применяет правило разрешения цены/остатка: явный selector →
// вариант; иначе базовая цена товара, если задана; иначе первый вариант.
func resolvePriceStock(product domain.Product, variantSelector string) (int64, int32, string, error) {
	if variantSelector != "" {
		for _, v := range product.Variants {
			if v.Selector == variantSelector {
				return v.PriceMinor, v.Stock, v.Selector, nil
			}
		}
		return 0, 0, "", domain.ErrVariantNotFound
	}

	if product.BasePriceMinor > 0 {
		return product.BasePriceMinor, product.BaseStock, "", nil
	}
	if len(product.Variants) > 0 {
		v := product.Variants[0]
		return v.PriceMinor, v.Stock, v.Selector, nil
	}
	return 0, 0, "", domain.ErrVariantNotFound
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Variants = append([]domain.Variant(nil), src.Variants...)
	return dst
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)
