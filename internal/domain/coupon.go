package domain

import "time"

// CouponKind — тип скидки купона.
type CouponKind string

const (
	// CouponKindFlat — фиксированная сумма в минимальных единицах.
	CouponKindFlat CouponKind = "flat"
	// CouponKindPercent — процент от subtotal.
	CouponKindPercent CouponKind = "percent"
)

// Coupon — правило скидки из статической таблицы.
type Coupon struct {
	Code string
	Kind CouponKind
	// Value — сумма в минимальных единицах для flat либо процент (0–100)
	// для percent.
	Value int64
	// MinSubtotalMinor — минимальный subtotal, при котором купон применим.
	MinSubtotalMinor int64
	ExpiresAt        time.Time
	Active           bool
}

// Discount вычисляет скидку для данного subtotal на момент now.
// Неактивный, просроченный или не добравший минимума купон даёт ноль.
// Скидка никогда не превышает subtotal.
func (c Coupon) Discount(subtotalMinor int64, now time.Time) int64 {
	if !c.Active {
		return 0
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return 0
	}
	if subtotalMinor < c.MinSubtotalMinor {
		return 0
	}

	var discount int64
	switch c.Kind {
	case CouponKindFlat:
		discount = c.Value
	case CouponKindPercent:
		discount = subtotalMinor * c.Value / 100
	default:
		return 0
	}

	if discount < 0 {
		return 0
	}
	if discount > subtotalMinor {
		discount = subtotalMinor
	}
	return discount
}
