package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики checkout-пайплайна.
type CheckoutMetrics struct {
	// Счётчики операций
	intentsCreated     prometheus.Counter
	ordersMaterialized prometheus.Counter
	stockDecrements    prometheus.Counter
	reconciliations    prometheus.Counter

	// Подтверждения по каналу и результату
	confirmations *prometheus.CounterVec

	// Гистограммы обращений к провайдерам
	gatewayCallDuration *prometheus.HistogramVec

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		intentsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_intents_created_total",
			Help: "Total number of payment intents created",
		}),
		ordersMaterialized: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_materialized_total",
			Help: "Total number of orders materialized from paid intents",
		}),
		stockDecrements: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_stock_decrements_total",
			Help: "Total number of inventory decrement passes performed",
		}),
		reconciliations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_reconciliations_flagged_total",
			Help: "Total number of intents flagged for manual reconciliation",
		}),
		confirmations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_confirmations_total",
			Help: "Total number of confirmation signals grouped by channel and result",
		}, []string{"channel", "result"}),
		gatewayCallDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_gateway_call_duration_seconds",
			Help:    "Duration of payment gateway calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"provider", "op"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordIntentCreated увеличивает счётчик созданных интентов.
func (m *CheckoutMetrics) RecordIntentCreated() {
	m.intentsCreated.Inc()
}

// RecordOrderMaterialized увеличивает счётчик материализованных заказов.
func (m *CheckoutMetrics) RecordOrderMaterialized() {
	m.ordersMaterialized.Inc()
}

// RecordStockDecrement увеличивает счётчик выполненных списаний остатков.
func (m *CheckoutMetrics) RecordStockDecrement() {
	m.stockDecrements.Inc()
}

// RecordReconciliationFlagged увеличивает счётчик интентов, помеченных
// для ручной сверки.
func (m *CheckoutMetrics) RecordReconciliationFlagged() {
	m.reconciliations.Inc()
}

// RecordConfirmation фиксирует сигнал подтверждения по каналу и результату.
func (m *CheckoutMetrics) RecordConfirmation(channel, result string) {
	m.confirmations.WithLabelValues(channel, result).Inc()
}

// RecordGatewayCall записывает длительность обращения к провайдеру.
func (m *CheckoutMetrics) RecordGatewayCall(provider, op string, duration time.Duration) {
	m.gatewayCallDuration.WithLabelValues(provider, op).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
