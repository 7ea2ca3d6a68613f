package checkout

import (
	"errors"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/service/pricing"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

// countingIntentRepo фиксирует число вставок, чтобы проверять, что отклонённые
// запросы не доходят до хранилища.
type countingIntentRepo struct {
	domain.IntentRepository
	creates int
}

func (c *countingIntentRepo) Create(intent domain.PaymentIntent) error {
	c.creates++
	return c.IntentRepository.Create(intent)
}

func newTestService(t *testing.T) (*Service, *countingIntentRepo) {
	t.Helper()

	catalog := memory.NewCatalogRepository()
	if err := catalog.Upsert(domain.Product{
		ID:             "p1",
		Name:           "Ceramic Mug",
		BasePriceMinor: 24900,
		BaseStock:      10,
		Active:         true,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	intents := &countingIntentRepo{IntentRepository: memory.NewIntentRepository()}
	calculator := pricing.NewCalculator(catalog, memory.NewCouponRepository(), pricing.DefaultConfig(), nil)
	service := NewService(intents, calculator, memory.NewTimelineRepository(), []string{"cardpay", "upi", "cod"}, nil)
	return service, intents
}

func validRequest() CreateIntentRequest {
	return CreateIntentRequest{
		Items:    []domain.OrderLine{{ProductID: "p1", Qty: 2}},
		Provider: "cardpay",
		Customer: domain.CustomerInfo{Name: "Asha", Email: "asha@example.com", Phone: "+91-900000001"},
		Shipping: domain.ShippingAddress{
			Address:    "12 MG Road",
			City:       "Pune",
			State:      "MH",
			PostalCode: "411001",
			Phone:      "+91-900000001",
		},
	}
}

func TestCreateIntent(t *testing.T) {
	service, repo := newTestService(t)

	intent, err := service.CreateIntent(validRequest())
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	if !strings.HasPrefix(intent.ID, "pi_") {
		t.Errorf("intent id must have pi_ prefix, got %s", intent.ID)
	}
	if intent.Status != domain.IntentStatusPending {
		t.Errorf("expected status pending, got %s", intent.Status)
	}
	if intent.Totals.TotalMinor != 54800 {
		t.Errorf("expected server-computed total 54800, got %d", intent.Totals.TotalMinor)
	}
	if intent.Currency != "INR" {
		t.Errorf("expected currency INR, got %s", intent.Currency)
	}
	if intent.StockAdjusted {
		t.Error("new intent must have stockAdjusted=false")
	}
	if len(intent.Attempts) != 0 {
		t.Errorf("new intent must have no attempts, got %d", len(intent.Attempts))
	}
	// Снимок позиций обогащён разрешёнными ценой и именем.
	if intent.Items[0].UnitPriceMinor != 24900 || intent.Items[0].DisplayName != "Ceramic Mug" {
		t.Errorf("order line snapshot not enriched: %+v", intent.Items[0])
	}
	if repo.creates != 1 {
		t.Errorf("expected one insert, got %d", repo.creates)
	}

	stored, err := service.intents.Get(intent.ID)
	if err != nil {
		t.Fatalf("intent not persisted: %v", err)
	}
	if stored.Totals != intent.Totals {
		t.Errorf("persisted totals differ: %+v vs %+v", stored.Totals, intent.Totals)
	}
}

func TestCreateIntentIncompleteShippingRejectedBeforePersistence(t *testing.T) {
	service, repo := newTestService(t)

	req := validRequest()
	req.Shipping.City = ""
	req.Shipping.Phone = ""

	_, err := service.CreateIntent(req)
	var addrErr *domain.ShippingAddressError
	if !errors.As(err, &addrErr) {
		t.Fatalf("expected ShippingAddressError, got %v", err)
	}
	if len(addrErr.Missing) != 2 {
		t.Errorf("expected missing [city phone], got %v", addrErr.Missing)
	}
	if repo.creates != 0 {
		t.Errorf("rejected request must not be persisted, creates=%d", repo.creates)
	}
}

func TestCreateIntentValidatesItemShape(t *testing.T) {
	service, repo := newTestService(t)

	cases := []struct {
		name  string
		items []domain.OrderLine
		want  error
	}{
		{"empty list", nil, domain.ErrItemsRequired},
		{"zero qty", []domain.OrderLine{{ProductID: "p1", Qty: 0}}, domain.ErrItemQtyInvalid},
		{"missing product", []domain.OrderLine{{Qty: 1}}, domain.ErrItemProductRequired},
	}
	for _, tc := range cases {
		req := validRequest()
		req.Items = tc.items
		if _, err := service.CreateIntent(req); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if repo.creates != 0 {
		t.Errorf("invalid requests must not be persisted, creates=%d", repo.creates)
	}
}

func TestCreateIntentUnknownProvider(t *testing.T) {
	service, _ := newTestService(t)

	req := validRequest()
	req.Provider = "barter"
	if _, err := service.CreateIntent(req); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestCreateIntentInsufficientStock(t *testing.T) {
	service, repo := newTestService(t)

	req := validRequest()
	req.Items = []domain.OrderLine{{ProductID: "p1", Qty: 50}}
	if _, err := service.CreateIntent(req); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if repo.creates != 0 {
		t.Errorf("out-of-stock request must not be persisted, creates=%d", repo.creates)
	}
}

func TestCreateIntentEmitsCreatedEvent(t *testing.T) {
	catalog := memory.NewCatalogRepository()
	if err := catalog.Upsert(domain.Product{
		ID:             "p1",
		Name:           "Ceramic Mug",
		BasePriceMinor: 24900,
		BaseStock:      10,
		Active:         true,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	calculator := pricing.NewCalculator(catalog, memory.NewCouponRepository(), pricing.DefaultConfig(), nil)
	service := NewService(memory.NewIntentRepository(), calculator, timeline, []string{"cardpay"}, nil, WithServiceOutbox(outbox))

	intent, err := service.CreateIntent(validRequest())
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("PullPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending event, got %d", len(pending))
	}
	if pending[0].EventType != string(kafka.EventTypeIntentCreated) {
		t.Errorf("unexpected event type %s", pending[0].EventType)
	}
	if pending[0].AggregateType != kafka.AggregateTypeIntent {
		t.Errorf("unexpected aggregate type %s", pending[0].AggregateType)
	}
	if pending[0].AggregateID != intent.ID {
		t.Errorf("aggregate id %s does not match intent %s", pending[0].AggregateID, intent.ID)
	}

	events, err := timeline.List(intent.ID)
	if err != nil {
		t.Fatalf("timeline List failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != string(kafka.EventTypeIntentCreated) {
		t.Errorf("unexpected timeline events: %+v", events)
	}
}

func TestRequestHashDeterministic(t *testing.T) {
	a, err := RequestHash(validRequest())
	if err != nil {
		t.Fatalf("RequestHash failed: %v", err)
	}
	b, err := RequestHash(validRequest())
	if err != nil {
		t.Fatalf("RequestHash failed: %v", err)
	}
	if a != b {
		t.Error("hash must be deterministic for identical requests")
	}

	changed := validRequest()
	changed.Items[0].Qty = 3
	c, err := RequestHash(changed)
	if err != nil {
		t.Fatalf("RequestHash failed: %v", err)
	}
	if a == c {
		t.Error("hash must differ for different requests")
	}
}
