package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultTimeout = 8 * time.Second

// Config содержит параметры подключения к API службы доставки.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Pusher передает заказ во внешнюю службу доставки. Ошибки push
// фиксируются на заказе вызывающей стороной и не фатальны для оплаты.
type Pusher struct {
	cfg    Config
	client *http.Client
	logger *log.Entry
}

var _ domain.ShippingPusher = (*Pusher)(nil)

// NewPusher создает HTTP-клиент службы доставки.
func NewPusher(cfg Config) *Pusher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Pusher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.WithField("component", "shipping-pusher"),
	}
}

type pushRequest struct {
	OrderID    string     `json:"order_id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Address    string     `json:"address"`
	City       string     `json:"city"`
	State      string     `json:"state"`
	PostalCode string     `json:"postal_code"`
	AmountDue  int64      `json:"amount_due"`
	Items      []pushItem `json:"items"`
}

type pushItem struct {
	Name string `json:"name"`
	Qty  int32  `json:"qty"`
}

type pushResponse struct {
	CarrierName    string `json:"carrier_name"`
	CarrierOrderID string `json:"carrier_order_id"`
	TrackingNumber string `json:"tracking_number"`
}

// Push регистрирует отправление и возвращает корреляционные идентификаторы
// перевозчика.
func (p *Pusher) Push(ctx context.Context, order domain.Order) (domain.ShippingInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	items := make([]pushItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, pushItem{Name: item.DisplayName, Qty: item.Qty})
	}
	amountDue := int64(0)
	if order.PaymentProvider == "cod" {
		amountDue = order.Totals.TotalMinor
	}
	payload, err := json.Marshal(pushRequest{
		OrderID:    order.ID,
		Name:       order.Customer.Name,
		Phone:      order.Shipping.Phone,
		Address:    order.Shipping.Address,
		City:       order.Shipping.City,
		State:      order.Shipping.State,
		PostalCode: order.Shipping.PostalCode,
		AmountDue:  amountDue,
		Items:      items,
	})
	if err != nil {
		return domain.ShippingInfo{}, fmt.Errorf("shipping push: marshal request: %w", err)
	}

	endpoint, err := url.JoinPath(p.cfg.BaseURL, "v1", "shipments")
	if err != nil {
		return domain.ShippingInfo{}, fmt.Errorf("shipping push: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.ShippingInfo{}, fmt.Errorf("shipping push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ShippingInfo{}, fmt.Errorf("shipping push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ShippingInfo{}, fmt.Errorf("shipping push: unexpected http status %d", resp.StatusCode)
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.ShippingInfo{}, fmt.Errorf("shipping push: decode response: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"order_id":         order.ID,
		"carrier_order_id": parsed.CarrierOrderID,
	}).Info("order pushed to shipping partner")

	return domain.ShippingInfo{
		CarrierName:    parsed.CarrierName,
		CarrierOrderID: parsed.CarrierOrderID,
		TrackingNumber: parsed.TrackingNumber,
		PushStatus:     domain.ShippingPushDone,
	}, nil
}
