package confirm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

// failingOrderRepo симулирует отказ авторитетного шага вставки заказа.
type failingOrderRepo struct {
	domain.OrderRepository
}

func (f *failingOrderRepo) Create(order domain.Order) error {
	return errors.New("storage offline")
}

// stubShipping и stubNotifier позволяют управлять исходом побочных эффектов.
type stubShipping struct {
	err   error
	calls int
}

func (s *stubShipping) Push(ctx context.Context, order domain.Order) (domain.ShippingInfo, error) {
	s.calls++
	if s.err != nil {
		return domain.ShippingInfo{}, s.err
	}
	return domain.ShippingInfo{
		CarrierName:    "ShipFast",
		CarrierOrderID: "sf_1",
		TrackingNumber: "TRK9",
	}, nil
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) SendOrderConfirmation(ctx context.Context, order domain.Order, recipient string) error {
	s.calls++
	return s.err
}

type materializerEnv struct {
	intents  domain.IntentRepository
	orders   domain.OrderRepository
	catalog  domain.CatalogRepository
	outbox   domain.OutboxRepository
	shipping *stubShipping
	notifier *stubNotifier
}

func newMaterializerEnv(t *testing.T) (*Materializer, *materializerEnv) {
	t.Helper()

	env := &materializerEnv{
		intents:  memory.NewIntentRepository(),
		orders:   memory.NewOrderRepository(),
		catalog:  memory.NewCatalogRepository(),
		shipping: &stubShipping{},
		notifier: &stubNotifier{},
	}
	outbox := memory.NewOutboxRepository()
	env.outbox = outbox

	if err := env.catalog.Upsert(domain.Product{
		ID:             "p1",
		Name:           "Ceramic Mug",
		BasePriceMinor: 24900,
		BaseStock:      10,
		Active:         true,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	m := NewMaterializer(env.intents, env.orders, env.catalog, outbox, memory.NewTimelineRepository(), env.shipping, env.notifier, nil)
	return m, env
}

func paidIntent(t *testing.T, intents domain.IntentRepository, id string) domain.PaymentIntent {
	t.Helper()

	now := time.Now().UTC()
	intent := domain.PaymentIntent{
		ID:              id,
		MerchantOrderID: "mo_" + id,
		Provider:        "cardpay",
		Currency:        "INR",
		Items: []domain.OrderLine{{
			ProductID:      "p1",
			Qty:            2,
			DisplayName:    "Ceramic Mug",
			UnitPriceMinor: 24900,
		}},
		Customer: domain.CustomerInfo{Name: "Asha", Email: "asha@example.com"},
		Shipping: domain.ShippingAddress{
			Address: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Phone: "+91-900000001",
		},
		Totals:               domain.Totals{SubtotalMinor: 49800, ShippingFeeMinor: 5000, TotalMinor: 54800},
		Status:               domain.IntentStatusPaid,
		GatewayTransactionID: "txn_1",
		PaidAt:               &now,
	}
	if err := intents.Create(intent); err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	return intent
}

func TestMaterializeCreatesOrderWithSnapshot(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")

	order, err := m.Materialize(context.Background(), intent)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	if !strings.HasPrefix(order.ID, "ORD-") {
		t.Errorf("public order id must have ORD- prefix, got %s", order.ID)
	}
	if order.IntentID != "pi_1" || order.MerchantOrderID != "mo_pi_1" {
		t.Errorf("correlation ids not copied: %+v", order)
	}
	if len(order.Items) != 1 || order.Items[0].UnitPriceMinor != 24900 || order.Items[0].DisplayName != "Ceramic Mug" {
		t.Errorf("items must be denormalized from the intent snapshot: %+v", order.Items)
	}
	if order.Totals != intent.Totals {
		t.Errorf("order totals must mirror intent totals: %+v", order.Totals)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected order status pending, got %s", order.Status)
	}

	// Каталожная цена после материализации не влияет на заказ.
	if err := env.catalog.Upsert(domain.Product{ID: "p1", Name: "Ceramic Mug", BasePriceMinor: 99900, BaseStock: 8, Active: true}); err != nil {
		t.Fatalf("reprice product: %v", err)
	}
	stored, err := env.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if stored.Items[0].UnitPriceMinor != 24900 {
		t.Errorf("order must be independent of later catalog changes, got %d", stored.Items[0].UnitPriceMinor)
	}
}

func TestMaterializeSecondCallTakesUpdatePath(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")

	first, err := m.Materialize(context.Background(), intent)
	if err != nil {
		t.Fatalf("first Materialize failed: %v", err)
	}

	intent.GatewayTransactionID = "txn_2"
	second, err := m.Materialize(context.Background(), intent)
	if err != nil {
		t.Fatalf("second Materialize failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second materialization must reuse the order, got %s and %s", first.ID, second.ID)
	}

	stored, _ := env.orders.Get(first.ID)
	if stored.GatewayTransactionID != "txn_2" {
		t.Errorf("update path must refresh payment info, got %s", stored.GatewayTransactionID)
	}

	product, _ := env.catalog.Get("p1")
	if product.BaseStock != 8 {
		t.Errorf("stock must be decremented exactly once, got %d", product.BaseStock)
	}
}

func TestMaterializeInsertFailureFlagsReconciliation(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")

	m.orders = &failingOrderRepo{OrderRepository: env.orders}

	if _, err := m.Materialize(context.Background(), intent); err == nil {
		t.Fatal("expected error when order insert fails")
	}

	stored, _ := env.intents.Get("pi_1")
	if !stored.NeedsReconciliation {
		t.Error("paid intent without order must be flagged for reconciliation")
	}

	product, _ := env.catalog.Get("p1")
	if product.BaseStock != 10 {
		t.Errorf("failed materialization must not decrement stock, got %d", product.BaseStock)
	}
}

func TestMaterializeShippingFailureRecorded(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")
	env.shipping.err = fmt.Errorf("carrier api: %s", strings.Repeat("x", 400))

	order, err := m.Materialize(context.Background(), intent)
	if err != nil {
		t.Fatalf("shipping failure must not fail materialization: %v", err)
	}

	stored, _ := env.orders.Get(order.ID)
	if stored.Delivery.PushStatus != domain.ShippingPushFailed {
		t.Errorf("expected push status %s, got %s", domain.ShippingPushFailed, stored.Delivery.PushStatus)
	}
	if len(stored.Delivery.PushError) > pushErrorMaxLen {
		t.Errorf("push error must be truncated to %d chars, got %d", pushErrorMaxLen, len(stored.Delivery.PushError))
	}
}

func TestMaterializeEmailFailureRecorded(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")
	env.notifier.err = errors.New("smtp down")

	order, err := m.Materialize(context.Background(), intent)
	if err != nil {
		t.Fatalf("email failure must not fail materialization: %v", err)
	}

	stored, _ := env.orders.Get(order.ID)
	if stored.EmailStatus != domain.EmailFailed {
		t.Errorf("expected email status %s, got %s", domain.EmailFailed, stored.EmailStatus)
	}
}

func TestMaterializeRetriesIncompleteSideEffects(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")
	env.shipping.err = errors.New("carrier down")

	if _, err := m.Materialize(context.Background(), intent); err != nil {
		t.Fatalf("first Materialize failed: %v", err)
	}

	// Повторное подтверждение доводит незавершённый push.
	env.shipping.err = nil
	order, err := m.Materialize(context.Background(), intent)
	if err != nil {
		t.Fatalf("second Materialize failed: %v", err)
	}

	stored, _ := env.orders.Get(order.ID)
	if stored.Delivery.PushStatus != domain.ShippingPushDone {
		t.Errorf("retried push must succeed, got %s", stored.Delivery.PushStatus)
	}
	if stored.Delivery.CarrierOrderID != "sf_1" {
		t.Errorf("carrier ids not recorded: %+v", stored.Delivery)
	}
	if env.shipping.calls != 2 {
		t.Errorf("expected 2 push attempts, got %d", env.shipping.calls)
	}
}

func TestMaterializeEmitsEventsOnce(t *testing.T) {
	m, env := newMaterializerEnv(t)
	intent := paidIntent(t, env.intents, "pi_1")

	if _, err := m.Materialize(context.Background(), intent); err != nil {
		t.Fatalf("first Materialize failed: %v", err)
	}
	if _, err := m.Materialize(context.Background(), intent); err != nil {
		t.Fatalf("second Materialize failed: %v", err)
	}

	pending, err := env.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("PullPending failed: %v", err)
	}

	counts := make(map[string]int, len(pending))
	for _, msg := range pending {
		counts[msg.EventType]++
		if msg.AggregateType != kafka.AggregateTypeOrder {
			t.Errorf("unexpected aggregate type %s for %s", msg.AggregateType, msg.EventType)
		}
	}
	if counts[string(kafka.EventTypeOrderCreated)] != 1 {
		t.Errorf("expected exactly one %s event, got %d", kafka.EventTypeOrderCreated, counts[string(kafka.EventTypeOrderCreated)])
	}
	if counts[string(kafka.EventTypeOrderShipped)] != 1 {
		t.Errorf("expected exactly one %s event, got %d", kafka.EventTypeOrderShipped, counts[string(kafka.EventTypeOrderShipped)])
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending events, got %d", len(pending))
	}
}

func TestMaterializeFailedPushEmitsNoShippedEvent(t *testing.T) {
	m, env := newMaterializerEnv(t)
	env.shipping.err = errors.New("courier api down")
	intent := paidIntent(t, env.intents, "pi_1")

	if _, err := m.Materialize(context.Background(), intent); err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	pending, err := env.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("PullPending failed: %v", err)
	}
	for _, msg := range pending {
		if msg.EventType == string(kafka.EventTypeOrderShipped) {
			t.Error("shipped event must not be emitted for a failed push")
		}
	}
}
