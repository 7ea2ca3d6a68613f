package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/confirm"
)

const (
	idempotencyHeader = "Idempotency-Key"
	signatureHeader   = "X-Signature"
	maxRequestBody    = 1 << 20
)

// Handler связывает HTTP-поверхность с сервисами checkout и confirm.
type Handler struct {
	checkout    *checkout.Service
	confirm     *confirm.Router
	idempotency domain.IdempotencyRepository
	// idempotencyTTL — срок хранения ключей идемпотентности.
	idempotencyTTL time.Duration
	logger         *log.Entry
}

// NewHandler создает обработчики API. idempotency может быть nil: тогда
// заголовок Idempotency-Key игнорируется.
func NewHandler(
	checkoutSvc *checkout.Service,
	confirmRouter *confirm.Router,
	idempotency domain.IdempotencyRepository,
	idempotencyTTL time.Duration,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http-handler")
	}
	if idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}
	return &Handler{
		checkout:       checkoutSvc,
		confirm:        confirmRouter,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		logger:         logger,
	}
}

type itemPayload struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Qty       int32  `json:"qty"`
}

// createIntentPayload принимает корзину и свободную форму контактных полей.
// Тоталы от клиента не принимаются вовсе.
type createIntentPayload struct {
	Items      []itemPayload `json:"items"`
	CouponCode string        `json:"coupon_code"`
	Provider   string        `json:"provider"`
	checkout.RawContact
}

type totalsPayload struct {
	SubtotalMinor    int64  `json:"subtotal_minor"`
	ShippingFeeMinor int64  `json:"shipping_fee_minor"`
	TaxMinor         int64  `json:"tax_minor"`
	DiscountMinor    int64  `json:"discount_minor"`
	TotalMinor       int64  `json:"total_minor"`
	Currency         string `json:"currency"`
}

type intentResponse struct {
	IntentID string        `json:"intent_id"`
	Status   string        `json:"status"`
	Totals   totalsPayload `json:"totals"`
}

// CreateIntent — POST /api/v1/checkout/intents.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var payload createIntentPayload
	if err := decodeBody(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	items := make([]domain.OrderLine, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, domain.OrderLine{
			ProductID:       item.ProductID,
			VariantSelector: item.Variant,
			Qty:             item.Qty,
		})
	}
	customer, shippingAddr := checkout.Normalize(payload.RawContact)
	req := checkout.CreateIntentRequest{
		Items:      items,
		CouponCode: payload.CouponCode,
		Provider:   payload.Provider,
		Customer:   customer,
		Shipping:   shippingAddr,
	}

	key := r.Header.Get(idempotencyHeader)
	if h.idempotency == nil || key == "" {
		h.createIntent(w, req)
		return
	}
	h.withIdempotency(w, key, req, func() (int, interface{}, error) {
		intent, err := h.checkout.CreateIntent(req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, intentToResponse(intent), nil
	})
}

func (h *Handler) createIntent(w http.ResponseWriter, req checkout.CreateIntentRequest) {
	intent, err := h.checkout.CreateIntent(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intentToResponse(intent))
}

// withIdempotency выполняет операцию под ключом идемпотентности: первый
// запрос регистрирует ключ, повторные получают сохранённый ответ; тот же
// ключ с другим телом отклоняется.
func (h *Handler) withIdempotency(w http.ResponseWriter, key string, req checkout.CreateIntentRequest, op func() (int, interface{}, error)) {
	hash, err := checkout.RequestHash(req)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.idempotency.CreateProcessing(key, hash, time.Now().UTC().Add(h.idempotencyTTL)); err != nil {
		if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
			writeError(w, err)
			return
		}
		record, getErr := h.idempotency.Get(key)
		if getErr != nil {
			writeError(w, getErr)
			return
		}
		if record.RequestHash != hash {
			writeError(w, domain.ErrIdempotencyHashMismatch)
			return
		}
		if record.Status == domain.IdempotencyStatusProcessing {
			// Первый запрос ещё в полёте.
			writeError(w, domain.ErrIdempotencyKeyAlreadyExists)
			return
		}
		h.logger.WithField("idempotency_key", key).Info("replaying stored response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
		return
	}

	status, body, opErr := op()
	if opErr != nil {
		errBody, _ := json.Marshal(errorResponse{Error: opErr.Error()})
		if err := h.idempotency.MarkFailed(key, errBody, statusFor(opErr)); err != nil {
			h.logger.WithError(err).WithField("idempotency_key", key).Warn("mark idempotency key failed")
		}
		writeError(w, opErr)
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.idempotency.MarkDone(key, data, status); err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("mark idempotency key done")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type createOrderPayload struct {
	RedirectURL string `json:"redirect_url"`
	CallbackURL string `json:"callback_url"`
}

type gatewayOrderResponse struct {
	IntentID        string         `json:"intent_id"`
	MerchantOrderID string         `json:"merchant_order_id"`
	GatewayOrderID  string         `json:"gateway_order_id,omitempty"`
	RedirectURL     string         `json:"redirect_url,omitempty"`
	State           string         `json:"state"`
	AmountMinor     int64          `json:"amount_minor"`
	Order           *orderResponse `json:"order,omitempty"`
}

// CreateGatewayOrder — POST /api/v1/checkout/intents/{id}/order.
func (h *Handler) CreateGatewayOrder(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "id")

	var payload createOrderPayload
	if err := decodeBody(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	result, err := h.confirm.CreateGatewayOrder(r.Context(), intentID, payload.RedirectURL, payload.CallbackURL)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := gatewayOrderResponse{
		IntentID:        result.IntentID,
		MerchantOrderID: result.MerchantOrderID,
		GatewayOrderID:  result.GatewayOrderID,
		RedirectURL:     result.RedirectURL,
		State:           string(result.State),
		AmountMinor:     result.AmountMinor,
	}
	if result.Order != nil {
		order := orderToResponse(*result.Order)
		resp.Order = &order
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	State    string         `json:"state"`
	IntentID string         `json:"intent_id,omitempty"`
	Order    *orderResponse `json:"order,omitempty"`
	Warning  string         `json:"warning,omitempty"`
}

// CheckStatus — GET /api/v1/checkout/status. Принимает intent_id либо
// merchant_order_id, один разрешается из другого.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	intentID := r.URL.Query().Get("intent_id")
	merchantOrderID := r.URL.Query().Get("merchant_order_id")
	if intentID == "" && merchantOrderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "intent_id or merchant_order_id is required"})
		return
	}

	result, err := h.confirm.CheckStatus(r.Context(), intentID, merchantOrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(result))
}

// HandleWebhook — POST /api/v1/gateway/webhook. Подписанный push-канал.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "provider is required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
		return
	}

	result, err := h.confirm.HandleWebhook(r.Context(), provider, body, r.Header.Get(signatureHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(result))
}

type callbackPayload struct {
	MerchantOrderID string `json:"merchant_order_id"`
}

// HandleCallback — POST /api/v1/gateway/callback. Legacy-канал: телу не
// доверяем, истина выводится опросом провайдера.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var payload callbackPayload
	if err := decodeBody(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if payload.MerchantOrderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "merchant_order_id is required"})
		return
	}

	result, err := h.confirm.HandleCallback(r.Context(), payload.MerchantOrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultToResponse(result))
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	DisplayName string `json:"display_name"`
	Variant     string `json:"variant,omitempty"`
	Qty         int32  `json:"qty"`
	UnitPrice   int64  `json:"unit_price_minor"`
}

type orderResponse struct {
	OrderID        string              `json:"order_id"`
	Status         string              `json:"status"`
	Items          []orderItemResponse `json:"items"`
	Totals         totalsPayload       `json:"totals"`
	TrackingNumber string              `json:"tracking_number,omitempty"`
	CarrierName    string              `json:"carrier_name,omitempty"`
}

func intentToResponse(intent domain.PaymentIntent) intentResponse {
	return intentResponse{
		IntentID: intent.ID,
		Status:   string(intent.Status),
		Totals: totalsPayload{
			SubtotalMinor:    intent.Totals.SubtotalMinor,
			ShippingFeeMinor: intent.Totals.ShippingFeeMinor,
			TaxMinor:         intent.Totals.TaxMinor,
			DiscountMinor:    intent.Totals.DiscountMinor,
			TotalMinor:       intent.Totals.TotalMinor,
			Currency:         intent.Currency,
		},
	}
}

func orderToResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:   item.ProductID,
			DisplayName: item.DisplayName,
			Variant:     item.VariantSelector,
			Qty:         item.Qty,
			UnitPrice:   item.UnitPriceMinor,
		})
	}
	return orderResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
		Items:   items,
		Totals: totalsPayload{
			SubtotalMinor:    order.Totals.SubtotalMinor,
			ShippingFeeMinor: order.Totals.ShippingFeeMinor,
			TaxMinor:         order.Totals.TaxMinor,
			DiscountMinor:    order.Totals.DiscountMinor,
			TotalMinor:       order.Totals.TotalMinor,
			Currency:         order.Currency,
		},
		TrackingNumber: order.Delivery.TrackingNumber,
		CarrierName:    order.Delivery.CarrierName,
	}
}

func resultToResponse(result confirm.Result) statusResponse {
	resp := statusResponse{
		State:    string(result.State),
		IntentID: result.Intent.ID,
		Warning:  result.Warning,
	}
	if result.Order != nil {
		order := orderToResponse(*result.Order)
		resp.Order = &order
	}
	return resp
}

func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}
