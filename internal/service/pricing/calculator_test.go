package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func newTestCalculator(t *testing.T) (*Calculator, domain.CatalogRepository, domain.CouponRepository) {
	t.Helper()

	catalog := memory.NewCatalogRepository()
	coupons := memory.NewCouponRepository()

	products := []domain.Product{
		{ID: "p1", Name: "Ceramic Mug", BasePriceMinor: 24900, BaseStock: 10, Active: true},
		{ID: "p2", Name: "T-Shirt", Active: true, Variants: []domain.Variant{
			{Selector: "S", PriceMinor: 49900, Stock: 3},
			{Selector: "M", PriceMinor: 52900, Stock: 0},
		}},
	}
	for _, p := range products {
		if err := catalog.Upsert(p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}

	if err := coupons.Upsert(domain.Coupon{
		Code:             "FLAT100",
		Kind:             domain.CouponKindFlat,
		Value:            10000,
		MinSubtotalMinor: 49900,
		ExpiresAt:        time.Now().Add(24 * time.Hour),
		Active:           true,
	}); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}

	return NewCalculator(catalog, coupons, DefaultConfig(), nil), catalog, coupons
}

func TestQuoteBasePrice(t *testing.T) {
	calc, _, _ := newTestCalculator(t)

	quote, err := calc.Quote([]domain.OrderLine{{ProductID: "p1", Qty: 2}}, "", time.Now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Totals.SubtotalMinor != 49800 {
		t.Errorf("expected subtotal 49800, got %d", quote.Totals.SubtotalMinor)
	}
	if quote.Totals.ShippingFeeMinor != 5000 {
		t.Errorf("expected shipping fee below threshold, got %d", quote.Totals.ShippingFeeMinor)
	}
	if quote.Totals.TotalMinor != 54800 {
		t.Errorf("expected total 54800, got %d", quote.Totals.TotalMinor)
	}
	if len(quote.Lines) != 1 || quote.Lines[0].DisplayName != "Ceramic Mug" {
		t.Errorf("resolved lines not populated: %+v", quote.Lines)
	}
}

func TestQuoteVariantSelector(t *testing.T) {
	calc, _, _ := newTestCalculator(t)

	quote, err := calc.Quote([]domain.OrderLine{{ProductID: "p2", VariantSelector: "S", Qty: 1}}, "", time.Now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Totals.SubtotalMinor != 49900 {
		t.Errorf("expected variant price 49900, got %d", quote.Totals.SubtotalMinor)
	}
}

func TestQuoteFirstVariantFallback(t *testing.T) {
	calc, _, _ := newTestCalculator(t)

	// Без селектора и без базовой цены берётся первый объявленный вариант.
	quote, err := calc.Quote([]domain.OrderLine{{ProductID: "p2", Qty: 1}}, "", time.Now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Totals.SubtotalMinor != 49900 {
		t.Errorf("expected first variant price 49900, got %d", quote.Totals.SubtotalMinor)
	}
}

func TestQuoteFreeShippingAtThreshold(t *testing.T) {
	calc, _, _ := newTestCalculator(t)

	quote, err := calc.Quote([]domain.OrderLine{{ProductID: "p2", VariantSelector: "S", Qty: 2}}, "", time.Now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Totals.ShippingFeeMinor != 0 {
		t.Errorf("expected free shipping at threshold, got %d", quote.Totals.ShippingFeeMinor)
	}
}

func TestQuoteResolutionErrors(t *testing.T) {
	calc, _, _ := newTestCalculator(t)
	now := time.Now()

	if _, err := calc.Quote([]domain.OrderLine{{ProductID: "ghost", Qty: 1}}, "", now); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := calc.Quote([]domain.OrderLine{{ProductID: "p2", VariantSelector: "XXL", Qty: 1}}, "", now); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Errorf("expected ErrVariantNotFound, got %v", err)
	}
	if _, err := calc.Quote(nil, "", now); !errors.Is(err, domain.ErrItemsRequired) {
		t.Errorf("expected ErrItemsRequired, got %v", err)
	}
	if _, err := calc.Quote([]domain.OrderLine{{ProductID: "p1", Qty: 0}}, "", now); !errors.Is(err, domain.ErrItemQtyInvalid) {
		t.Errorf("expected ErrItemQtyInvalid, got %v", err)
	}
	if _, err := calc.Quote([]domain.OrderLine{{Qty: 1}}, "", now); !errors.Is(err, domain.ErrItemProductRequired) {
		t.Errorf("expected ErrItemProductRequired, got %v", err)
	}
}

func TestQuoteInsufficientStockListsShortfalls(t *testing.T) {
	calc, _, _ := newTestCalculator(t)

	_, err := calc.Quote([]domain.OrderLine{
		{ProductID: "p1", Qty: 11},
		{ProductID: "p2", VariantSelector: "M", Qty: 1},
	}, "", time.Now())
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %T", err)
	}
	if len(stockErr.Shortfalls) != 2 {
		t.Fatalf("expected both shortfall items reported, got %d", len(stockErr.Shortfalls))
	}
	if stockErr.Shortfalls[0].Requested != 11 || stockErr.Shortfalls[0].Available != 10 {
		t.Errorf("shortfall amounts wrong: %+v", stockErr.Shortfalls[0])
	}
}

func TestCouponFlatMinimum(t *testing.T) {
	calc, _, _ := newTestCalculator(t)
	now := time.Now()

	// FLAT100 требует минимум 499.00: ниже минимума скидка ноль.
	if got := calc.EvaluateCoupon("FLAT100", 40000, now); got != 0 {
		t.Errorf("below-minimum coupon must yield 0, got %d", got)
	}
	if got := calc.EvaluateCoupon("FLAT100", 60000, now); got != 10000 {
		t.Errorf("expected flat discount 10000, got %d", got)
	}
}

func TestCouponExpiredAndInactive(t *testing.T) {
	calc, _, coupons := newTestCalculator(t)
	now := time.Now()

	if err := coupons.Upsert(domain.Coupon{
		Code: "OLD", Kind: domain.CouponKindFlat, Value: 5000,
		ExpiresAt: now.Add(-time.Hour), Active: true,
	}); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	if err := coupons.Upsert(domain.Coupon{
		Code: "OFF", Kind: domain.CouponKindFlat, Value: 5000,
		ExpiresAt: now.Add(time.Hour), Active: false,
	}); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}

	if got := calc.EvaluateCoupon("OLD", 100000, now); got != 0 {
		t.Errorf("expired coupon must yield 0, got %d", got)
	}
	if got := calc.EvaluateCoupon("OFF", 100000, now); got != 0 {
		t.Errorf("inactive coupon must yield 0, got %d", got)
	}
	if got := calc.EvaluateCoupon("NOPE", 100000, now); got != 0 {
		t.Errorf("unknown coupon must yield 0, got %d", got)
	}
}

func TestCouponPercentClamped(t *testing.T) {
	calc, _, coupons := newTestCalculator(t)
	now := time.Now()

	if err := coupons.Upsert(domain.Coupon{
		Code: "HALF", Kind: domain.CouponKindPercent, Value: 50,
		ExpiresAt: now.Add(time.Hour), Active: true,
	}); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	if err := coupons.Upsert(domain.Coupon{
		Code: "ALL", Kind: domain.CouponKindPercent, Value: 150,
		ExpiresAt: now.Add(time.Hour), Active: true,
	}); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}

	if got := calc.EvaluateCoupon("HALF", 100000, now); got != 50000 {
		t.Errorf("expected 50%% of subtotal, got %d", got)
	}
	// Скидка никогда не превышает subtotal.
	if got := calc.EvaluateCoupon("ALL", 100000, now); got != 100000 {
		t.Errorf("discount must be clamped to subtotal, got %d", got)
	}
}

func TestQuoteRejectsNonPositiveTotal(t *testing.T) {
	catalog := memory.NewCatalogRepository()
	coupons := memory.NewCouponRepository()
	if err := catalog.Upsert(domain.Product{ID: "p1", Name: "Sticker", BasePriceMinor: 1000, BaseStock: 5, Active: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := coupons.Upsert(domain.Coupon{
		Code: "FULL", Kind: domain.CouponKindPercent, Value: 100,
		ExpiresAt: time.Now().Add(time.Hour), Active: true,
	}); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}

	// Доставка бесплатна, скидка 100%: к оплате ноль.
	calc := NewCalculator(catalog, coupons, Config{FreeShippingThresholdMinor: 0}, nil)
	_, err := calc.Quote([]domain.OrderLine{{ProductID: "p1", Qty: 1}}, "FULL", time.Now())
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero payable, got %v", err)
	}
}

func TestQuoteAppliesTaxRate(t *testing.T) {
	catalog := memory.NewCatalogRepository()
	if err := catalog.Upsert(domain.Product{ID: "p1", Name: "Mug", BasePriceMinor: 10000, BaseStock: 5, Active: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	// 18% = 1800 базисных пунктов.
	calc := NewCalculator(catalog, memory.NewCouponRepository(), Config{TaxRateBP: 1800, FreeShippingThresholdMinor: 0}, nil)
	quote, err := calc.Quote([]domain.OrderLine{{ProductID: "p1", Qty: 1}}, "", time.Now())
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Totals.TaxMinor != 1800 {
		t.Errorf("expected tax 1800, got %d", quote.Totals.TaxMinor)
	}
	if quote.Totals.TotalMinor != 11800 {
		t.Errorf("expected total 11800, got %d", quote.Totals.TotalMinor)
	}
}
