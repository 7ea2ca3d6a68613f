package confirm

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	// orderIDPrefix — префикс публичного идентификатора заказа.
	orderIDPrefix = "ORD-"
	// pushErrorMaxLen ограничивает длину сохраняемого текста ошибки push.
	pushErrorMaxLen = 255
)

// Materializer превращает оплаченный payment intent ровно в один заказ
// с побочными эффектами. Вызывается только изнутри paid-перехода.
type Materializer struct {
	intents  domain.IntentRepository
	orders   domain.OrderRepository
	catalog  domain.CatalogRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	shipping domain.ShippingPusher
	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics

	// newOrderID генерирует публичный идентификатор заказа; подменяется в тестах.
	newOrderID func() string
}

// MaterializerOption настраивает Materializer.
type MaterializerOption func(*Materializer)

// WithMaterializerMetrics подключает метрики.
func WithMaterializerMetrics(m *metrics.CheckoutMetrics) MaterializerOption {
	return func(mat *Materializer) {
		mat.metrics = m
	}
}

// WithOrderIDGenerator задаёт генератор публичных идентификаторов заказов.
func WithOrderIDGenerator(gen func() string) MaterializerOption {
	return func(mat *Materializer) {
		mat.newOrderID = gen
	}
}

// NewMaterializer конструирует материализатор заказов.
func NewMaterializer(
	intents domain.IntentRepository,
	orders domain.OrderRepository,
	catalog domain.CatalogRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	shipping domain.ShippingPusher,
	notifier domain.Notifier,
	logger *log.Entry,
	options ...MaterializerOption,
) *Materializer {
	if logger == nil {
		logger = log.New().WithField("component", "materializer")
	}
	m := &Materializer{
		intents:    intents,
		orders:     orders,
		catalog:    catalog,
		outbox:     outbox,
		timeline:   timeline,
		shipping:   shipping,
		notifier:   notifier,
		logger:     logger,
		newOrderID: defaultOrderID,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func defaultOrderID() string {
	return orderIDPrefix + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

// Materialize создаёт заказ для оплаченного интента. Контракт — exactly-once:
// гонка каналов подтверждения разрешается constraint-ом хранилища, проигравшие
// уходят в update-путь и доводят незавершённые побочные эффекты.
func (m *Materializer) Materialize(ctx context.Context, intent domain.PaymentIntent) (domain.Order, error) {
	now := time.Now().UTC()

	order := m.buildOrder(intent, now)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		m.flagReconciliation(intent.ID, "order invariants violated at materialization")
		return domain.Order{}, errs[0]
	}

	created := true
	if err := m.orders.Create(order); err != nil {
		if !errors.Is(err, domain.ErrOrderExists) {
			// Авторитетный шаг провалился: интент остаётся paid, но без заказа.
			// Молча терять оплаченный платёж нельзя.
			m.logger.WithError(err).WithField("intent_id", intent.ID).Error("order insert failed")
			m.flagReconciliation(intent.ID, "paid intent failed to materialize: "+err.Error())
			return domain.Order{}, err
		}

		existing, getErr := m.orders.GetByIntentID(intent.ID)
		if getErr != nil {
			m.logger.WithError(getErr).WithField("intent_id", intent.ID).Error("duplicate order lookup failed")
			return domain.Order{}, getErr
		}
		created = false
		order = existing

		if intent.GatewayTransactionID != "" && intent.GatewayTransactionID != order.GatewayTransactionID {
			if err := m.orders.UpdatePaymentInfo(order.ID, intent.GatewayTransactionID); err != nil {
				m.logger.WithError(err).WithField("order_id", order.ID).Warn("refresh payment info failed")
			} else {
				order.GatewayTransactionID = intent.GatewayTransactionID
			}
		}
	}

	if created {
		if m.metrics != nil {
			m.metrics.RecordOrderMaterialized()
		}
		m.emitOrderCreated(order)
	}

	m.adjustStock(intent)
	m.pushShipping(ctx, &order)
	m.sendEmail(ctx, &order)

	return order, nil
}

// buildOrder собирает заказ из неизменяемого снимка интента.
func (m *Materializer) buildOrder(intent domain.PaymentIntent, now time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(intent.Items))
	for _, line := range intent.Items {
		items = append(items, domain.OrderItem{
			ID:              ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			ProductID:       line.ProductID,
			DisplayName:     line.DisplayName,
			VariantSelector: line.VariantSelector,
			Qty:             line.Qty,
			UnitPriceMinor:  line.UnitPriceMinor,
			CreatedAt:       now,
		})
	}

	return domain.Order{
		ID:                   m.newOrderID(),
		IntentID:             intent.ID,
		MerchantOrderID:      intent.MerchantOrderID,
		Customer:             intent.Customer,
		Shipping:             intent.Shipping,
		Items:                items,
		Currency:             intent.Currency,
		Totals:               intent.Totals,
		Status:               domain.OrderStatusPending,
		PaymentProvider:      intent.Provider,
		GatewayTransactionID: intent.GatewayTransactionID,
		Delivery:             domain.ShippingInfo{PushStatus: domain.ShippingPushPending},
		EmailStatus:          domain.EmailPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// adjustStock списывает остатки ровно один раз на интент. Гонку повторных
// материализаций решает атомарный переход stock_adjusted false→true: списание
// выполняет только победитель.
func (m *Materializer) adjustStock(intent domain.PaymentIntent) {
	winner, err := m.intents.TryMarkStockAdjusted(intent.ID)
	if err != nil {
		m.logger.WithError(err).WithField("intent_id", intent.ID).Error("stock adjusted flag update failed")
		return
	}
	if !winner {
		return
	}

	if m.metrics != nil {
		m.metrics.RecordStockDecrement()
	}

	for _, line := range intent.Items {
		if _, err := m.catalog.DecrementStock(line.ProductID, line.VariantSelector, line.Qty); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"intent_id":  intent.ID,
				"product_id": line.ProductID,
			}).Error("stock decrement failed")
			m.flagReconciliation(intent.ID, "stock decrement incomplete for product "+line.ProductID)
			continue
		}

		product, err := m.catalog.Get(line.ProductID)
		if err != nil {
			m.logger.WithError(err).WithField("product_id", line.ProductID).Warn("product reload failed after decrement")
			continue
		}
		if product.Active && product.TotalStock() == 0 {
			if err := m.catalog.Deactivate(line.ProductID); err != nil {
				m.logger.WithError(err).WithField("product_id", line.ProductID).Warn("deactivate sold-out product failed")
			} else {
				m.logger.WithField("product_id", line.ProductID).Info("product sold out, listing deactivated")
			}
		}
	}
}

// pushShipping — best-effort передача заказа в сервис доставки.
func (m *Materializer) pushShipping(ctx context.Context, order *domain.Order) {
	if m.shipping == nil || order.Delivery.PushStatus == domain.ShippingPushDone {
		return
	}

	info, err := m.shipping.Push(ctx, *order)
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("shipping push failed")
		order.Delivery.PushStatus = domain.ShippingPushFailed
		order.Delivery.PushError = truncate(err.Error(), pushErrorMaxLen)
	} else {
		info.PushStatus = domain.ShippingPushDone
		info.PushError = ""
		order.Delivery = info
		m.emitOrderShipped(*order)
	}

	if err := m.orders.SetDelivery(order.ID, order.Delivery); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("persist delivery state failed")
	}
}

// sendEmail — best-effort письмо-подтверждение.
func (m *Materializer) sendEmail(ctx context.Context, order *domain.Order) {
	if m.notifier == nil || order.EmailStatus == domain.EmailSent {
		return
	}

	status := domain.EmailSent
	if err := m.notifier.SendOrderConfirmation(ctx, *order, order.Customer.Email); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("confirmation email failed")
		status = domain.EmailFailed
	}
	order.EmailStatus = status

	if err := m.orders.SetEmailStatus(order.ID, status); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Warn("persist email state failed")
	}
}

func (m *Materializer) flagReconciliation(intentID, note string) {
	if err := m.intents.MarkReconciliation(intentID, note); err != nil {
		m.logger.WithError(err).WithField("intent_id", intentID).Error("mark reconciliation failed")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordReconciliationFlagged()
	}
}

// emitOrderCreated кладёт событие материализации в outbox и timeline.
func (m *Materializer) emitOrderCreated(order domain.Order) {
	payload := map[string]interface{}{
		"order_id":    order.ID,
		"intent_id":   order.IntentID,
		"total_minor": order.Totals.TotalMinor,
		"currency":    order.Currency,
		"ts":          order.CreatedAt.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("marshal order event failed")
		return
	}

	if m.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: kafka.AggregateTypeOrder,
			AggregateID:   order.ID,
			EventType:     string(kafka.EventTypeOrderCreated),
			Payload:       data,
		}
		if _, err := m.outbox.Enqueue(msg); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue order event failed")
		} else if m.metrics != nil {
			m.metrics.RecordOutboxEvent()
		}
	}

	if m.timeline != nil {
		event := domain.TimelineEvent{
			AggregateID: order.IntentID,
			Type:        string(kafka.EventTypeOrderCreated),
			Occurred:    order.CreatedAt,
		}
		if err := m.timeline.Append(event); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
		} else if m.metrics != nil {
			m.metrics.RecordTimelineEvent()
		}
	}
}

// emitOrderShipped кладёт событие успешной передачи заказа в доставку.
func (m *Materializer) emitOrderShipped(order domain.Order) {
	if m.outbox == nil {
		return
	}

	event := kafka.NewOrderEvent(kafka.EventTypeOrderShipped, order.ID, order.IntentID, string(order.Status), map[string]interface{}{
		"carrier":         order.Delivery.CarrierName,
		"tracking_number": order.Delivery.TrackingNumber,
	})
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("marshal shipped event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     string(kafka.EventTypeOrderShipped),
		Payload:       data,
	}
	if _, err := m.outbox.Enqueue(msg); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue shipped event failed")
	} else if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
