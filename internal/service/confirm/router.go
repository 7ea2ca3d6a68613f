package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/pricing"
)

// Каналы, по которым приходят сигналы подтверждения; нужны только для
// логов и метрик, на семантику перехода канал не влияет.
const (
	ChannelWebhook  = "webhook"
	ChannelPoll     = "poll"
	ChannelCallback = "callback"
	ChannelInline   = "inline"
)

const attemptResponseMaxLen = 512

// Result — ответ канала подтверждения.
type Result struct {
	State  domain.ProviderState
	Intent domain.PaymentIntent
	// Order заполняется, когда для интента существует материализованный заказ.
	Order *domain.Order
	// Warning выставляется для неизвестных корреляционных идентификаторов:
	// внешнему нотификатору отвечаем успехом, но фиксируем для ручной сверки.
	Warning string
}

// GatewayOrderResult — ответ операции создания транзакции у провайдера.
type GatewayOrderResult struct {
	IntentID        string
	MerchantOrderID string
	GatewayOrderID  string
	RedirectURL     string
	State           domain.ProviderState
	AmountMinor     int64
	// Order заполняется, когда провайдер завершает оплату синхронно (COD).
	Order *domain.Order
}

// Router — единственная реализация state machine подтверждений. Три канала
// (webhook push, клиентский poll, legacy callback) — тонкие адаптеры вокруг
// одной идемпотентной функции перехода.
type Router struct {
	intents      domain.IntentRepository
	orders       domain.OrderRepository
	calculator   *pricing.Calculator
	materializer *Materializer
	gateways     map[string]domain.GatewayAdapter
	outbox       domain.OutboxRepository
	logger       *log.Entry
	metrics      *metrics.CheckoutMetrics
}

// RouterOption настраивает Router.
type RouterOption func(*Router)

// WithRouterMetrics подключает метрики.
func WithRouterMetrics(m *metrics.CheckoutMetrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithRouterOutbox подключает outbox для публикации intent-событий.
func WithRouterOutbox(outbox domain.OutboxRepository) RouterOption {
	return func(r *Router) {
		r.outbox = outbox
	}
}

// NewRouter конструирует router подтверждений.
func NewRouter(
	intents domain.IntentRepository,
	orders domain.OrderRepository,
	calculator *pricing.Calculator,
	materializer *Materializer,
	gateways []domain.GatewayAdapter,
	logger *log.Entry,
	options ...RouterOption,
) *Router {
	if logger == nil {
		logger = log.New().WithField("component", "confirm-router")
	}

	byProvider := make(map[string]domain.GatewayAdapter, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}

	r := &Router{
		intents:      intents,
		orders:       orders,
		calculator:   calculator,
		materializer: materializer,
		gateways:     byProvider,
		logger:       logger,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// CreateGatewayOrder выполняет переход pending → initiated: присваивает
// merchant order id (идемпотентно), сверяет сумму с актуальным каталогом и
// открывает транзакцию у провайдера.
func (r *Router) CreateGatewayOrder(ctx context.Context, intentID, redirectURL, callbackURL string) (GatewayOrderResult, error) {
	intent, err := r.intents.Get(intentID)
	if err != nil {
		return GatewayOrderResult{}, err
	}

	if intent.Status.Terminal() {
		return GatewayOrderResult{}, fmt.Errorf("%w: intent %s is %s", domain.ErrIntentStateConflict, intent.ID, intent.Status)
	}

	adapter, ok := r.gateways[intent.Provider]
	if !ok {
		return GatewayOrderResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, intent.Provider)
	}

	merchantOrderID, err := r.intents.AssignMerchantOrderID(intent.ID, newMerchantOrderID())
	if err != nil {
		return GatewayOrderResult{}, err
	}
	intent.MerchantOrderID = merchantOrderID

	// Защита от дрейфа цен каталога между созданием интента и обращением
	// к провайдеру: пересчитываем тоталы и сравниваем минорные суммы.
	quote, err := r.calculator.Quote(intent.Items, intent.CouponCode, time.Now().UTC())
	if err != nil {
		return GatewayOrderResult{}, err
	}
	if quote.Totals.TotalMinor != intent.Totals.TotalMinor {
		r.logger.WithFields(log.Fields{
			"intent_id": intent.ID,
			"was_minor": intent.Totals.TotalMinor,
			"now_minor": quote.Totals.TotalMinor,
		}).Warn("catalog amount drift detected")
		if err := r.intents.UpdateStatus(intent.ID, domain.IntentStatusFailed, nil); err != nil && !domain.IsStateConflict(err) {
			r.logger.WithError(err).WithField("intent_id", intent.ID).Error("mark intent failed after amount mismatch")
		}
		return GatewayOrderResult{}, domain.ErrAmountMismatch
	}

	start := time.Now()
	gatewayOrder, callErr := adapter.CreateTransaction(ctx, merchantOrderID, intent.Totals.TotalMinor, redirectURL, callbackURL)
	if r.metrics != nil {
		r.metrics.RecordGatewayCall(intent.Provider, "create", time.Since(start))
	}

	// Attempt записывается независимо от исхода удалённого вызова.
	attempt := domain.Attempt{
		ID:          uuid.NewString(),
		Provider:    intent.Provider,
		AmountMinor: intent.Totals.TotalMinor,
		Status:      domain.AttemptStatusInitiated,
		CreatedAt:   time.Now().UTC(),
	}
	if callErr != nil {
		attempt.Status = domain.AttemptStatusFailed
		attempt.ProviderResponse = truncate(callErr.Error(), attemptResponseMaxLen)
	} else {
		attempt.ProviderResponse = truncate(string(gatewayOrder.Raw), attemptResponseMaxLen)
	}
	if err := r.intents.AppendAttempt(intent.ID, attempt); err != nil {
		r.logger.WithError(err).WithField("intent_id", intent.ID).Error("append attempt failed")
	}

	if callErr != nil {
		// Таймаут/сетевая ошибка — «неизвестно», интент остаётся как был.
		return GatewayOrderResult{}, callErr
	}

	if err := r.intents.SetGatewayState(intent.ID, gatewayOrder.GatewayOrderID, "", gatewayOrder.Raw); err != nil {
		r.logger.WithError(err).WithField("intent_id", intent.ID).Warn("persist gateway state failed")
	}

	result := GatewayOrderResult{
		IntentID:        intent.ID,
		MerchantOrderID: merchantOrderID,
		GatewayOrderID:  gatewayOrder.GatewayOrderID,
		RedirectURL:     gatewayOrder.RedirectURL,
		State:           gatewayOrder.State,
		AmountMinor:     intent.Totals.TotalMinor,
	}

	// COD завершает оплату синхронно: прогоняем тот же paid-переход,
	// что и асинхронные каналы.
	if gatewayOrder.State == domain.ProviderStateCompleted {
		applied, err := r.apply(ctx, ChannelInline, intent.ID, domain.GatewayStatus{
			State: domain.ProviderStateCompleted,
			Raw:   gatewayOrder.Raw,
		})
		if err != nil {
			return GatewayOrderResult{}, err
		}
		result.Order = applied.Order
		return result, nil
	}

	if err := r.intents.UpdateStatus(intent.ID, domain.IntentStatusInitiated, nil); err != nil {
		// Параллельный вызов уже перевёл интент дальше — не откатываем.
		if !domain.IsStateConflict(err) {
			return GatewayOrderResult{}, err
		}
	}

	return result, nil
}

// HandleWebhook — канал (a): асинхронный push от провайдера. Payload
// доверяется только после проверки подписи; при несовпадении состояние
// не мутируется.
func (r *Router) HandleWebhook(ctx context.Context, provider string, body []byte, signature string) (Result, error) {
	adapter, ok := r.gateways[provider]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
	}
	source, ok := adapter.(domain.WebhookSource)
	if !ok {
		return Result{}, fmt.Errorf("%w: provider %s does not push webhooks", domain.ErrUnknownProvider, provider)
	}

	if !source.VerifySignature(body, signature) {
		r.recordConfirmation(ChannelWebhook, "unauthorized")
		return Result{}, domain.ErrUnauthorizedSignature
	}

	merchantOrderID, status, err := source.ParseWebhook(body)
	if err != nil {
		return Result{}, err
	}

	intent, err := r.intents.GetByMerchantOrderID(merchantOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrIntentNotFound) {
			// Неизвестный корреляционный id — не фабрикуем состояние,
			// наружу отдаём 404-эквивалент.
			r.logger.WithField("merchant_order_id", merchantOrderID).Warn("webhook for unknown correlation id")
			r.recordConfirmation(ChannelWebhook, "unknown")
		}
		return Result{}, err
	}

	return r.apply(ctx, ChannelWebhook, intent.ID, status)
}

// CheckStatus — канал (b): синхронный poll, инициированный клиентом после
// redirect. Сам опрашивает провайдера и применяет ту же функцию перехода.
// Принимает intent id либо merchant order id и разрешает один из другого.
func (r *Router) CheckStatus(ctx context.Context, intentID, merchantOrderID string) (Result, error) {
	intent, err := r.resolveIntent(intentID, merchantOrderID)
	if err != nil {
		return Result{}, err
	}

	// Терминальные интенты отвечаем из собственного состояния, провайдера
	// не дёргаем: ответ обязан быть быстрым и replay-safe.
	if intent.Status.Terminal() {
		return r.terminalResult(ChannelPoll, intent)
	}

	status, err := r.queryGateway(ctx, intent)
	if err != nil {
		return Result{}, err
	}

	return r.apply(ctx, ChannelPoll, intent.ID, status)
}

// HandleCallback — канал (c): legacy endpoint. Телу callback-а не доверяем:
// истина заново выводится запросом статуса у провайдера.
func (r *Router) HandleCallback(ctx context.Context, merchantOrderID string) (Result, error) {
	intent, err := r.intents.GetByMerchantOrderID(merchantOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrIntentNotFound) {
			// Отвечаем нотифицирующей стороне успехом-с-предупреждением,
			// чтобы она не ретраила бесконечно; себе оставляем след.
			r.logger.WithField("merchant_order_id", merchantOrderID).Warn("callback for unknown correlation id, manual reconciliation required")
			r.recordConfirmation(ChannelCallback, "unknown")
			return Result{
				State:   domain.ProviderStatePending,
				Warning: "unknown merchant order id",
			}, nil
		}
		return Result{}, err
	}

	if intent.Status.Terminal() {
		return r.terminalResult(ChannelCallback, intent)
	}

	status, err := r.queryGateway(ctx, intent)
	if err != nil {
		return Result{}, err
	}

	return r.apply(ctx, ChannelCallback, intent.ID, status)
}

// apply — единственная функция перехода {pending|initiated} → {paid|failed|expired}.
// Идемпотентна: для уже оплаченного интента возвращает успех без побочных
// эффектов; терминальные состояния никогда не регрессируют.
func (r *Router) apply(ctx context.Context, channel, intentID string, status domain.GatewayStatus) (Result, error) {
	intent, err := r.intents.Get(intentID)
	if err != nil {
		return Result{}, err
	}

	if intent.Status == domain.IntentStatusPaid {
		// Replay-safe: повторная доставка подтверждения ничего не делает.
		r.recordConfirmation(channel, "replay")
		return r.terminalResult(channel, intent)
	}

	switch status.State {
	case domain.ProviderStateCompleted:
		return r.applyPaid(ctx, channel, intent, status)

	case domain.ProviderStateFailed, domain.ProviderStateExpired:
		target := domain.IntentStatusFailed
		if status.State == domain.ProviderStateExpired {
			target = domain.IntentStatusExpired
		}
		if err := r.intents.UpdateStatus(intent.ID, target, nil); err != nil {
			if !domain.IsStateConflict(err) {
				return Result{}, err
			}
			// Другой канал уже довёл интент до терминального статуса.
			fresh, freshErr := r.intents.Get(intent.ID)
			if freshErr != nil {
				return Result{}, freshErr
			}
			return r.terminalResult(channel, fresh)
		}
		if err := r.intents.SetGatewayState(intent.ID, "", status.TransactionID, status.Raw); err != nil {
			r.logger.WithError(err).WithField("intent_id", intent.ID).Warn("persist gateway state failed")
		}
		eventType := kafka.EventTypeIntentFailed
		if target == domain.IntentStatusExpired {
			eventType = kafka.EventTypeIntentExpired
		}
		r.emitIntentEvent(eventType, intent.ID, target)
		r.recordConfirmation(channel, string(target))
		intent.Status = target
		return Result{State: status.State, Intent: intent}, nil

	default:
		// Всё прочее — «ещё не решено»: статус не мутируем.
		r.recordConfirmation(channel, "pending")
		return Result{State: domain.ProviderStatePending, Intent: intent}, nil
	}
}

// applyPaid выполняет paid-переход и материализацию. Проверка идемпотентности
// заказа выполняется по корреляционному идентификатору внутри материализатора,
// а не по intent.Status: второй конкурентный вызов может проскочить проверку
// статуса до того, как первый его запишет.
func (r *Router) applyPaid(ctx context.Context, channel string, intent domain.PaymentIntent, status domain.GatewayStatus) (Result, error) {
	now := time.Now().UTC()

	if err := r.intents.SetGatewayState(intent.ID, "", status.TransactionID, status.Raw); err != nil {
		r.logger.WithError(err).WithField("intent_id", intent.ID).Warn("persist gateway state failed")
	}
	intent.GatewayTransactionID = status.TransactionID

	if err := r.intents.UpdateStatus(intent.ID, domain.IntentStatusPaid, &now); err != nil {
		if !domain.IsStateConflict(err) {
			return Result{}, err
		}

		fresh, freshErr := r.intents.Get(intent.ID)
		if freshErr != nil {
			return Result{}, freshErr
		}
		if fresh.Status != domain.IntentStatusPaid {
			// COMPLETED от провайдера при уже failed/expired интенте: деньги
			// взяты, а мы успели отказать. Только ручная сверка.
			r.logger.WithFields(log.Fields{
				"intent_id": intent.ID,
				"status":    fresh.Status,
			}).Error("completed signal for terminally failed intent")
			if err := r.intents.MarkReconciliation(intent.ID, "completed signal arrived after "+string(fresh.Status)); err != nil {
				r.logger.WithError(err).WithField("intent_id", intent.ID).Error("mark reconciliation failed")
			}
			r.emitIntentEvent(kafka.EventTypeIntentFlagged, intent.ID, fresh.Status)
			r.recordConfirmation(channel, "conflict")
			return r.terminalResult(channel, fresh)
		}
		// Гонку выиграл другой канал; материализация идемпотентна, продолжаем.
		intent = fresh
	} else {
		intent.Status = domain.IntentStatusPaid
		intent.PaidAt = &now
		r.emitIntentEvent(kafka.EventTypeIntentPaid, intent.ID, domain.IntentStatusPaid)
	}

	order, err := r.materializer.Materialize(ctx, intent)
	if err != nil {
		return Result{}, err
	}

	r.recordConfirmation(channel, "completed")
	return Result{State: domain.ProviderStateCompleted, Intent: intent, Order: &order}, nil
}

// terminalResult собирает ответ для интента в терминальном статусе.
func (r *Router) terminalResult(channel string, intent domain.PaymentIntent) (Result, error) {
	result := Result{Intent: intent}
	switch intent.Status {
	case domain.IntentStatusPaid:
		result.State = domain.ProviderStateCompleted
		if order, err := r.orders.GetByIntentID(intent.ID); err == nil {
			result.Order = &order
		} else if !errors.Is(err, domain.ErrOrderNotFound) {
			return Result{}, err
		}
	case domain.IntentStatusFailed:
		result.State = domain.ProviderStateFailed
	case domain.IntentStatusExpired:
		result.State = domain.ProviderStateExpired
	default:
		result.State = domain.ProviderStatePending
	}
	return result, nil
}

func (r *Router) resolveIntent(intentID, merchantOrderID string) (domain.PaymentIntent, error) {
	if intentID != "" {
		return r.intents.Get(intentID)
	}
	if merchantOrderID != "" {
		return r.intents.GetByMerchantOrderID(merchantOrderID)
	}
	return domain.PaymentIntent{}, domain.ErrIntentNotFound
}

func (r *Router) queryGateway(ctx context.Context, intent domain.PaymentIntent) (domain.GatewayStatus, error) {
	adapter, ok := r.gateways[intent.Provider]
	if !ok {
		return domain.GatewayStatus{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, intent.Provider)
	}
	if intent.MerchantOrderID == "" {
		// Транзакция ещё не открывалась: провайдеру нечего рассказать.
		return domain.GatewayStatus{State: domain.ProviderStatePending}, nil
	}

	start := time.Now()
	status, err := adapter.QueryStatus(ctx, intent.MerchantOrderID)
	if r.metrics != nil {
		r.metrics.RecordGatewayCall(intent.Provider, "status", time.Since(start))
	}
	if err != nil {
		// Ошибка самого запроса статуса — не угадываем, отдаём наружу
		// для повтора; состояние интента не трогаем.
		return domain.GatewayStatus{}, err
	}
	return status, nil
}

// emitIntentEvent кладёт событие жизненного цикла интента в outbox.
func (r *Router) emitIntentEvent(eventType kafka.EventType, intentID string, status domain.IntentStatus) {
	if r.outbox == nil {
		return
	}

	event := kafka.NewIntentEvent(eventType, intentID, string(status), nil)
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.WithError(err).WithField("intent_id", intentID).Error("marshal intent event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateTypeIntent,
		AggregateID:   intentID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := r.outbox.Enqueue(msg); err != nil {
		r.logger.WithError(err).WithField("intent_id", intentID).Error("enqueue intent event failed")
	} else if r.metrics != nil {
		r.metrics.RecordOutboxEvent()
	}
}

func (r *Router) recordConfirmation(channel, result string) {
	if r.metrics != nil {
		r.metrics.RecordConfirmation(channel, result)
	}
}

func newMerchantOrderID() string {
	return "mo_" + uuid.NewString()
}
