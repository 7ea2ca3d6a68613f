package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// UPIConfig содержит параметры подключения к региональному UPI-шлюзу.
type UPIConfig struct {
	BaseURL string
	// ClientID и ClientSecret обмениваются на OAuth-токен (client_credentials).
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// UPI — adapter UPI-шлюза. Авторизация через OAuth-токен с процессным кэшем;
// истёкший или отклонённый токен запрашивается заново.
type UPI struct {
	cfg    UPIConfig
	client *http.Client
	tokens tokenCache
	logger *log.Entry
	now    func() time.Time
}

var _ domain.GatewayAdapter = (*UPI)(nil)

// NewUPI создает adapter UPI-шлюза.
func NewUPI(cfg UPIConfig) *UPI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &UPI{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		logger: log.WithField("component", "gateway-upi"),
		now:    time.Now,
	}
}

// Provider возвращает код провайдера.
func (u *UPI) Provider() string { return ProviderUPI }

type upiTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken возвращает действующий OAuth-токен, при промахе кэша
// запрашивает новый.
func (u *UPI) accessToken(ctx context.Context) (string, error) {
	if token, ok := u.tokens.Get(u.now()); ok {
		return token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", u.cfg.ClientID)
	form.Set("client_secret", u.cfg.ClientSecret)

	endpoint, err := url.JoinPath(u.cfg.BaseURL, "oauth", "token")
	if err != nil {
		return "", fmt.Errorf("upi token: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("upi token: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", unavailable(ProviderUPI, "token", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", unavailable(ProviderUPI, "token", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", unavailable(ProviderUPI, "token",
			fmt.Errorf("unexpected http status %d", resp.StatusCode))
	}

	var parsed upiTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", unavailable(ProviderUPI, "token", fmt.Errorf("decode response: %w", err))
	}
	if parsed.AccessToken == "" {
		return "", unavailable(ProviderUPI, "token", fmt.Errorf("empty access_token"))
	}

	u.tokens.Put(parsed.AccessToken, u.now().Add(time.Duration(parsed.ExpiresIn)*time.Second))
	u.logger.Debug("upi access token refreshed")
	return parsed.AccessToken, nil
}

type upiCreateRequest struct {
	MerchantTxnID string `json:"merchant_txn_id"`
	AmountMinor   int64  `json:"amount"`
	Currency      string `json:"currency"`
	ReturnURL     string `json:"return_url"`
	CallbackURL   string `json:"callback_url"`
}

type upiPaymentResponse struct {
	UPITxnID    string `json:"upi_txn_id"`
	Status      string `json:"status"`
	PaymentLink string `json:"payment_link"`
}

// CreateTransaction открывает платеж у шлюза.
func (u *UPI) CreateTransaction(ctx context.Context, merchantOrderID string, amountMinor int64, redirectURL, callbackURL string) (domain.GatewayOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(upiCreateRequest{
		MerchantTxnID: merchantOrderID,
		AmountMinor:   amountMinor,
		Currency:      "INR",
		ReturnURL:     redirectURL,
		CallbackURL:   callbackURL,
	})
	if err != nil {
		return domain.GatewayOrder{}, fmt.Errorf("upi create: marshal request: %w", err)
	}

	body, err := u.callAPI(ctx, http.MethodPost, payload, "v2", "payments")
	if err != nil {
		return domain.GatewayOrder{}, err
	}

	var parsed upiPaymentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GatewayOrder{}, unavailable(ProviderUPI, "create",
			fmt.Errorf("decode response: %w", err))
	}

	return domain.GatewayOrder{
		State:          mapUPIState(parsed.Status),
		GatewayOrderID: parsed.UPITxnID,
		RedirectURL:    parsed.PaymentLink,
		Raw:            body,
	}, nil
}

// QueryStatus запрашивает состояние платежа по merchantOrderID.
func (u *UPI) QueryStatus(ctx context.Context, merchantOrderID string) (domain.GatewayStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	body, err := u.callAPI(ctx, http.MethodGet, nil, "v2", "payments", merchantOrderID, "status")
	if err != nil {
		return domain.GatewayStatus{}, err
	}

	var parsed upiPaymentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GatewayStatus{}, unavailable(ProviderUPI, "status",
			fmt.Errorf("decode response: %w", err))
	}

	return domain.GatewayStatus{
		State:         mapUPIState(parsed.Status),
		TransactionID: parsed.UPITxnID,
		Raw:           body,
	}, nil
}

// callAPI выполняет авторизованный вызов API. На 401 кэш токена сбрасывается
// и вызов повторяется один раз с новым токеном.
func (u *UPI) callAPI(ctx context.Context, method string, payload []byte, segments ...string) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := u.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		endpoint, err := url.JoinPath(u.cfg.BaseURL, segments...)
		if err != nil {
			return nil, fmt.Errorf("upi api: build url: %w", err)
		}
		var reqBody *bytes.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		} else {
			reqBody = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("upi api: build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := u.client.Do(req)
		if err != nil {
			return nil, unavailable(ProviderUPI, "api", err)
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, unavailable(ProviderUPI, "api", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			u.tokens.Invalidate()
			u.logger.Warn("upi token rejected, refetching")
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, unavailable(ProviderUPI, "api",
				fmt.Errorf("unexpected http status %d", resp.StatusCode))
		}
		return body, nil
	}
	return nil, unavailable(ProviderUPI, "api", fmt.Errorf("token rejected twice"))
}

// mapUPIState переводит словарь UPI-шлюза в общий словарь состояний.
func mapUPIState(s string) domain.ProviderState {
	switch s {
	case "CREATED", "INITIATED":
		return domain.ProviderStateInitiated
	case "SUCCESS":
		return domain.ProviderStateCompleted
	case "FAILURE", "DECLINED":
		return domain.ProviderStateFailed
	case "EXPIRED", "TIMED_OUT":
		return domain.ProviderStateExpired
	default:
		return domain.ProviderStatePending
	}
}
