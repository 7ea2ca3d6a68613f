package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// errorResponse — единый формат ошибок API.
type errorResponse struct {
	Error         string             `json:"error"`
	MissingFields []string           `json:"missing_fields,omitempty"`
	Shortfalls    []shortfallPayload `json:"shortfalls,omitempty"`
}

type shortfallPayload struct {
	ProductID       string `json:"product_id"`
	VariantSelector string `json:"variant,omitempty"`
	Requested       int32  `json:"requested"`
	Available       int32  `json:"available"`
}

// statusFor отображает таксономию ошибок домена в HTTP-статусы:
// валидация 400, not found 404, подпись 401, конфликт 409, провайдер 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrItemProductRequired),
		errors.Is(err, domain.ErrCurrencyRequired),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrUnknownProvider),
		isShippingAddressError(err):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrIntentNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrVariantNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUnauthorizedSignature):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrIntentStateConflict),
		errors.Is(err, domain.ErrMerchantOrderIDAssigned),
		errors.Is(err, domain.ErrIdempotencyHashMismatch),
		errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

func isShippingAddressError(err error) bool {
	var addrErr *domain.ShippingAddressError
	return errors.As(err, &addrErr)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var addrErr *domain.ShippingAddressError
	if errors.As(err, &addrErr) {
		resp.MissingFields = addrErr.Missing
	}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		for _, s := range stockErr.Shortfalls {
			resp.Shortfalls = append(resp.Shortfalls, shortfallPayload{
				ProductID:       s.ProductID,
				VariantSelector: s.VariantSelector,
				Requested:       s.Requested,
				Available:       s.Available,
			})
		}
	}

	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
