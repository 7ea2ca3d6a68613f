package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/pricing"
)

const intentIDPrefix = "pi_"

// CreateIntentRequest — уже нормализованный запрос на создание интента.
// Клиент передаёт только корзину: суммы считаются исключительно на сервере.
type CreateIntentRequest struct {
	Items      []domain.OrderLine
	CouponCode string
	Provider   string
	Customer   domain.CustomerInfo
	Shipping   domain.ShippingAddress
}

// Service создаёт payment intent-ы. Доступен и гостевым (неаутентифицированным)
// покупателям.
type Service struct {
	intents    domain.IntentRepository
	calculator *pricing.Calculator
	timeline   domain.TimelineRepository
	outbox     domain.OutboxRepository
	providers  map[string]struct{}
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
}

// ServiceOption настраивает Service.
type ServiceOption func(*Service)

// WithServiceMetrics подключает метрики.
func WithServiceMetrics(m *metrics.CheckoutMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceOutbox подключает outbox для публикации intent-событий.
func WithServiceOutbox(outbox domain.OutboxRepository) ServiceOption {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// NewService конструирует сервис создания интентов. providers — коды
// зарегистрированных платёжных провайдеров.
func NewService(
	intents domain.IntentRepository,
	calculator *pricing.Calculator,
	timeline domain.TimelineRepository,
	providers []string,
	logger *log.Entry,
	options ...ServiceOption,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}

	known := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		known[p] = struct{}{}
	}

	s := &Service{
		intents:    intents,
		calculator: calculator,
		timeline:   timeline,
		providers:  known,
		logger:     logger,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateIntent валидирует корзину и адрес, считает авторитетные тоталы и
// сохраняет новый интент в статусе pending.
//
// Полнота адреса проверяется до расчёта тоталов и до любой записи:
// материализатор не умеет задним числом синтезировать адрес доставки.
func (s *Service) CreateIntent(req CreateIntentRequest) (domain.PaymentIntent, error) {
	if len(req.Items) == 0 {
		return domain.PaymentIntent{}, domain.ErrItemsRequired
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return domain.PaymentIntent{}, domain.ErrItemProductRequired
		}
		if item.Qty <= 0 {
			return domain.PaymentIntent{}, domain.ErrItemQtyInvalid
		}
	}

	if missing := req.Shipping.MissingFields(); len(missing) > 0 {
		return domain.PaymentIntent{}, &domain.ShippingAddressError{Missing: missing}
	}

	if _, ok := s.providers[req.Provider]; !ok {
		return domain.PaymentIntent{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, req.Provider)
	}

	now := time.Now().UTC()
	quote, err := s.calculator.Quote(req.Items, req.CouponCode, now)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	// Снимок позиций обогащается разрешёнными ценами и именами: после
	// создания интента каталог для этих данных больше не читается.
	lines := make([]domain.OrderLine, 0, len(quote.Lines))
	for _, ql := range quote.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:       ql.ProductID,
			VariantSelector: ql.VariantSelector,
			Qty:             ql.Qty,
			DisplayName:     ql.DisplayName,
			UnitPriceMinor:  ql.UnitPriceMinor,
		})
	}

	intent := domain.PaymentIntent{
		ID:         intentIDPrefix + uuid.NewString(),
		Provider:   req.Provider,
		Currency:   "INR",
		Items:      lines,
		CouponCode: req.CouponCode,
		Customer:   req.Customer,
		Shipping:   req.Shipping,
		Totals:     quote.Totals,
		Status:     domain.IntentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if errs := intent.ValidateInvariants(); len(errs) > 0 {
		return domain.PaymentIntent{}, errs[0]
	}

	if err := s.intents.Create(intent); err != nil {
		s.logger.WithError(err).Error("failed to persist payment intent")
		return domain.PaymentIntent{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordIntentCreated()
	}
	s.appendTimeline(intent.ID, string(kafka.EventTypeIntentCreated), now)
	s.emitIntentCreated(intent)

	return intent, nil
}

// emitIntentCreated кладёт событие создания интента в outbox.
func (s *Service) emitIntentCreated(intent domain.PaymentIntent) {
	if s.outbox == nil {
		return
	}

	event := kafka.NewIntentEvent(kafka.EventTypeIntentCreated, intent.ID, string(intent.Status), map[string]interface{}{
		"provider":    intent.Provider,
		"total_minor": intent.Totals.TotalMinor,
		"currency":    intent.Currency,
	})
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithField("intent_id", intent.ID).Error("marshal intent event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateTypeIntent,
		AggregateID:   intent.ID,
		EventType:     string(kafka.EventTypeIntentCreated),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("intent_id", intent.ID).Error("enqueue intent event failed")
	} else if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func (s *Service) appendTimeline(intentID, eventType string, occurred time.Time) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		AggregateID: intentID,
		Type:        eventType,
		Occurred:    occurred,
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"intent_id": intentID,
			"event":     eventType,
		}).Warn("append timeline event failed")
	} else if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// RequestHash считает детерминированный hash запроса для idempotency-слоя.
func RequestHash(req CreateIntentRequest) (string, error) {
	data, err := json.Marshal(struct {
		Items    []domain.OrderLine
		Coupon   string
		Provider string
		Shipping domain.ShippingAddress
	}{req.Items, req.CouponCode, req.Provider, req.Shipping})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
