package gateway

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Провайдерские коды, под которыми adapter-ы регистрируются в router-е.
const (
	ProviderCardpay = "cardpay"
	ProviderUPI     = "upi"
	ProviderCOD     = "cod"
)

// defaultTimeout ограничивает каждый удалённый вызов провайдеру.
// Таймаут трактуется как "неизвестно", а не как отказ в оплате.
const defaultTimeout = 8 * time.Second

// maxResponseBody ограничивает размер читаемого ответа провайдера.
const maxResponseBody = 1 << 20

// unavailable оборачивает сетевую ошибку или таймаут в ErrGatewayUnavailable.
// По этой ошибке router оставляет интент без изменений и предлагает retry.
func unavailable(provider, op string, err error) error {
	return fmt.Errorf("%s %s: %w: %v", provider, op, domain.ErrGatewayUnavailable, err)
}

// readBody вычитывает тело ответа с ограничением размера.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
}

// newHTTPClient создает HTTP-клиент с таймаутом по умолчанию.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
