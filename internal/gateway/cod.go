package gateway

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// COD — adapter оплаты при получении. Удалённого провайдера нет:
// транзакция завершается сразу при создании.
type COD struct {
	logger *log.Entry
}

var _ domain.GatewayAdapter = (*COD)(nil)

// NewCOD создает adapter cash-on-delivery.
func NewCOD() *COD {
	return &COD{logger: log.WithField("component", "gateway-cod")}
}

// Provider возвращает код провайдера.
func (c *COD) Provider() string { return ProviderCOD }

// CreateTransaction сразу возвращает COMPLETED: внешнего подтверждения
// у cash-on-delivery нет.
func (c *COD) CreateTransaction(ctx context.Context, merchantOrderID string, amountMinor int64, redirectURL, callbackURL string) (domain.GatewayOrder, error) {
	c.logger.WithFields(log.Fields{
		"merchant_order_id": merchantOrderID,
		"amount_minor":      amountMinor,
	}).Info("cod transaction completed inline")
	return domain.GatewayOrder{
		State:          domain.ProviderStateCompleted,
		GatewayOrderID: merchantOrderID,
	}, nil
}

// QueryStatus для COD всегда отвечает COMPLETED с тем же корреляционным id.
func (c *COD) QueryStatus(ctx context.Context, merchantOrderID string) (domain.GatewayStatus, error) {
	return domain.GatewayStatus{
		State:         domain.ProviderStateCompleted,
		TransactionID: merchantOrderID,
	}, nil
}
