package pricing

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Config задаёт политику расчёта тоталов.
type Config struct {
	// ShippingFeeMinor — фиксированная стоимость доставки ниже порога.
	ShippingFeeMinor int64
	// FreeShippingThresholdMinor — subtotal, начиная с которого доставка бесплатна.
	FreeShippingThresholdMinor int64
	// TaxRateBP — налоговая ставка в базисных пунктах (1% = 100). По умолчанию ноль.
	TaxRateBP int64
}

// DefaultConfig возвращает политику по умолчанию: доставка 50.00, бесплатно
// от 500.00, налог ноль.
func DefaultConfig() Config {
	return Config{
		ShippingFeeMinor:           5000,
		FreeShippingThresholdMinor: 50000,
		TaxRateBP:                  0,
	}
}

// QuoteLine — разрешённая позиция с итогом строки.
type QuoteLine struct {
	domain.ResolvedLine
	Qty            int32
	LineTotalMinor int64
}

// Quote — неизменяемый результат расчёта: разрешённые позиции и денежный снимок.
type Quote struct {
	Lines  []QuoteLine
	Totals domain.Totals
}

// Calculator считает авторитетные тоталы по текущему состоянию каталога.
// Проверка остатков здесь point-in-time, не резервирование: списание происходит
// только при материализации заказа.
type Calculator struct {
	catalog domain.CatalogRepository
	coupons domain.CouponRepository
	cfg     Config
	logger  *log.Entry
}

// NewCalculator конструирует калькулятор с политикой cfg.
func NewCalculator(catalog domain.CatalogRepository, coupons domain.CouponRepository, cfg Config, logger *log.Entry) *Calculator {
	if logger == nil {
		logger = log.New().WithField("component", "pricing")
	}
	return &Calculator{
		catalog: catalog,
		coupons: coupons,
		cfg:     cfg,
		logger:  logger,
	}
}

// Quote разрешает позиции корзины, проверяет остатки и собирает тоталы.
// Клиентские суммы сюда не попадают: единственный вход — позиции и код купона.
func (c *Calculator) Quote(items []domain.OrderLine, couponCode string, now time.Time) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, domain.ErrItemsRequired
	}

	lines := make([]QuoteLine, 0, len(items))
	var shortfalls []domain.StockShortfall
	var subtotal int64

	for _, item := range items {
		if item.ProductID == "" {
			return Quote{}, domain.ErrItemProductRequired
		}
		if item.Qty <= 0 {
			return Quote{}, domain.ErrItemQtyInvalid
		}

		resolved, err := c.catalog.ResolveLine(item.ProductID, item.VariantSelector)
		if err != nil {
			return Quote{}, err
		}

		if resolved.AvailableStock < item.Qty {
			shortfalls = append(shortfalls, domain.StockShortfall{
				ProductID:       item.ProductID,
				VariantSelector: item.VariantSelector,
				Requested:       item.Qty,
				Available:       resolved.AvailableStock,
			})
			continue
		}

		lineTotal := int64(item.Qty) * resolved.UnitPriceMinor
		subtotal += lineTotal
		lines = append(lines, QuoteLine{
			ResolvedLine:   resolved,
			Qty:            item.Qty,
			LineTotalMinor: lineTotal,
		})
	}

	if len(shortfalls) > 0 {
		return Quote{}, &domain.InsufficientStockError{Shortfalls: shortfalls}
	}

	shippingFee := c.cfg.ShippingFeeMinor
	if subtotal >= c.cfg.FreeShippingThresholdMinor {
		shippingFee = 0
	}

	tax := subtotal * c.cfg.TaxRateBP / 10000
	discount := c.EvaluateCoupon(couponCode, subtotal, now)

	total := subtotal + shippingFee + tax - discount
	if total <= 0 {
		return Quote{}, domain.ErrInvalidAmount
	}

	return Quote{
		Lines: lines,
		Totals: domain.Totals{
			SubtotalMinor:    subtotal,
			ShippingFeeMinor: shippingFee,
			TaxMinor:         tax,
			DiscountMinor:    discount,
			TotalMinor:       total,
		},
	}, nil
}

// EvaluateCoupon возвращает размер скидки для кода купона; неизвестный,
// неактивный, просроченный или не добравший минимума купон даёт ноль.
func (c *Calculator) EvaluateCoupon(code string, subtotalMinor int64, now time.Time) int64 {
	if code == "" {
		return 0
	}

	coupon, err := c.coupons.Get(code)
	if err != nil {
		if !errors.Is(err, domain.ErrCouponNotFound) {
			c.logger.WithError(err).WithField("coupon", code).Warn("coupon lookup failed")
		}
		return 0
	}

	return coupon.Discount(subtotalMinor, now)
}
