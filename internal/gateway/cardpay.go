package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CardpayConfig содержит параметры подключения к карточному шлюзу.
type CardpayConfig struct {
	BaseURL string
	// APIKey и APISecret передаются в basic auth каждого REST-вызова.
	APIKey    string
	APISecret string
	// WebhookSecret — общий секрет для HMAC-подписи push-уведомлений.
	WebhookSecret string
	Timeout       time.Duration
}

// Cardpay — adapter карточного шлюза: basic-auth REST API для создания
// и опроса заказов плюс подписанные webhook-и.
type Cardpay struct {
	cfg    CardpayConfig
	client *http.Client
	logger *log.Entry
}

var (
	_ domain.GatewayAdapter = (*Cardpay)(nil)
	_ domain.WebhookSource  = (*Cardpay)(nil)
)

// NewCardpay создает adapter карточного шлюза.
func NewCardpay(cfg CardpayConfig) *Cardpay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Cardpay{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		logger: log.WithField("component", "gateway-cardpay"),
	}
}

// Provider возвращает код провайдера.
func (c *Cardpay) Provider() string { return ProviderCardpay }

type cardpayCreateRequest struct {
	MerchantOrderID string `json:"merchant_order_id"`
	AmountMinor     int64  `json:"amount"`
	Currency        string `json:"currency"`
	RedirectURL     string `json:"redirect_url"`
	CallbackURL     string `json:"callback_url"`
}

type cardpayOrderResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

// CreateTransaction открывает заказ у шлюза и возвращает redirect-адрес
// для покупателя.
func (c *Cardpay) CreateTransaction(ctx context.Context, merchantOrderID string, amountMinor int64, redirectURL, callbackURL string) (domain.GatewayOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(cardpayCreateRequest{
		MerchantOrderID: merchantOrderID,
		AmountMinor:     amountMinor,
		Currency:        "INR",
		RedirectURL:     redirectURL,
		CallbackURL:     callbackURL,
	})
	if err != nil {
		return domain.GatewayOrder{}, fmt.Errorf("cardpay create: marshal request: %w", err)
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1", "orders")
	if err != nil {
		return domain.GatewayOrder{}, fmt.Errorf("cardpay create: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.GatewayOrder{}, fmt.Errorf("cardpay create: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.GatewayOrder{}, unavailable(ProviderCardpay, "create", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return domain.GatewayOrder{}, unavailable(ProviderCardpay, "create", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(log.Fields{
			"merchant_order_id": merchantOrderID,
			"http_status":       resp.StatusCode,
		}).Error("cardpay create order rejected")
		return domain.GatewayOrder{}, unavailable(ProviderCardpay, "create",
			fmt.Errorf("unexpected http status %d", resp.StatusCode))
	}

	var parsed cardpayOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GatewayOrder{}, unavailable(ProviderCardpay, "create",
			fmt.Errorf("decode response: %w", err))
	}

	return domain.GatewayOrder{
		State:          mapCardpayState(parsed.Status),
		GatewayOrderID: parsed.OrderID,
		RedirectURL:    parsed.PaymentURL,
		Raw:            body,
	}, nil
}

// QueryStatus запрашивает состояние заказа по merchantOrderID.
func (c *Cardpay) QueryStatus(ctx context.Context, merchantOrderID string) (domain.GatewayStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v1", "orders", merchantOrderID)
	if err != nil {
		return domain.GatewayStatus{}, fmt.Errorf("cardpay status: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GatewayStatus{}, fmt.Errorf("cardpay status: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.GatewayStatus{}, unavailable(ProviderCardpay, "status", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return domain.GatewayStatus{}, unavailable(ProviderCardpay, "status", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.GatewayStatus{}, unavailable(ProviderCardpay, "status",
			fmt.Errorf("unexpected http status %d", resp.StatusCode))
	}

	var parsed cardpayOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GatewayStatus{}, unavailable(ProviderCardpay, "status",
			fmt.Errorf("decode response: %w", err))
	}

	return domain.GatewayStatus{
		State:         mapCardpayState(parsed.Status),
		TransactionID: parsed.TransactionID,
		Raw:           body,
	}, nil
}

// VerifySignature проверяет HMAC-SHA256 подпись тела webhook.
func (c *Cardpay) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type cardpayWebhookPayload struct {
	MerchantOrderID string `json:"merchant_order_id"`
	Status          string `json:"status"`
	TransactionID   string `json:"transaction_id"`
}

// ParseWebhook извлекает корреляционный id и состояние из тела webhook.
func (c *Cardpay) ParseWebhook(body []byte) (string, domain.GatewayStatus, error) {
	var payload cardpayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", domain.GatewayStatus{}, fmt.Errorf("cardpay webhook: decode payload: %w", err)
	}
	if payload.MerchantOrderID == "" {
		return "", domain.GatewayStatus{}, fmt.Errorf("cardpay webhook: missing merchant_order_id")
	}
	return payload.MerchantOrderID, domain.GatewayStatus{
		State:         mapCardpayState(payload.Status),
		TransactionID: payload.TransactionID,
		Raw:           body,
	}, nil
}

// mapCardpayState переводит словарь шлюза в общий словарь состояний.
// Неизвестные значения считаются PENDING.
func mapCardpayState(s string) domain.ProviderState {
	switch s {
	case "CREATED", "ACTIVE":
		return domain.ProviderStateInitiated
	case "PAID", "CAPTURED":
		return domain.ProviderStateCompleted
	case "DECLINED", "CANCELLED":
		return domain.ProviderStateFailed
	case "EXPIRED":
		return domain.ProviderStateExpired
	default:
		return domain.ProviderStatePending
	}
}
