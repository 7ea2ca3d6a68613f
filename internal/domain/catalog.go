package domain

import "time"

// Variant — вариант товара со своей ценой и остатком.
type Variant struct {
	Selector   string
	PriceMinor int64
	Stock      int32
}

// Product — запись каталога. Цена и остаток разрешаются по правилу:
// явный selector → вариант; без selector-а — базовая цена/остаток товара,
// если базовая цена задана, иначе первый объявленный вариант.
type Product struct {
	ID             string
	Name           string
	BasePriceMinor int64
	BaseStock      int32
	Active         bool
	Variants       []Variant
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalStock возвращает суммарный остаток товара по всем вариантам.
func (p *Product) TotalStock() int32 {
	total := p.BaseStock
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// ResolvedLine — результат разрешения позиции корзины в авторитетную цену
// и доступный остаток.
type ResolvedLine struct {
	ProductID       string
	VariantSelector string
	DisplayName     string
	UnitPriceMinor  int64
	AvailableStock  int32
}
