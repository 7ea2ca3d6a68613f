package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func sampleIntent(id string, createdAt time.Time) domain.PaymentIntent {
	return domain.PaymentIntent{
		ID:       id,
		Provider: "cardpay",
		Currency: "INR",
		Items: []domain.OrderLine{
			{ProductID: "p1", Qty: 2, DisplayName: "Ceramic Mug", UnitPriceMinor: 24900},
		},
		Customer: domain.CustomerInfo{Name: "Asha", Email: "asha@example.com", Phone: "+911234567890"},
		Shipping: domain.ShippingAddress{
			Address:    "12 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
			Phone:      "+911234567890",
		},
		Totals: domain.Totals{
			SubtotalMinor:    49800,
			ShippingFeeMinor: 5000,
			TotalMinor:       54800,
		},
		Status:    domain.IntentStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestIntentRepository_PostgresCreateGetAndDuplicates(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIntentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	intent := sampleIntent("pi_pg_1", now)

	if err := repo.Create(intent); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if err := repo.Create(intent); !errors.Is(err, domain.ErrIntentVersionConflict) {
		t.Fatalf("expected ErrIntentVersionConflict on duplicate, got %v", err)
	}

	got, err := repo.Get(intent.ID)
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if got.Status != domain.IntentStatusPending || got.Totals.TotalMinor != 54800 {
		t.Fatalf("unexpected intent payload: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].DisplayName != "Ceramic Mug" {
		t.Fatalf("unexpected intent items: %+v", got.Items)
	}

	if _, err := repo.Get("pi_missing"); !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestIntentRepository_PostgresMerchantOrderIDAssignedOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIntentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.Create(sampleIntent("pi_pg_2", now)); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	assigned, err := repo.AssignMerchantOrderID("pi_pg_2", "mo_first")
	if err != nil {
		t.Fatalf("assign merchant order id: %v", err)
	}
	if assigned != "mo_first" {
		t.Fatalf("unexpected assigned id: %s", assigned)
	}

	again, err := repo.AssignMerchantOrderID("pi_pg_2", "mo_second")
	if err != nil {
		t.Fatalf("re-assign merchant order id: %v", err)
	}
	if again != "mo_first" {
		t.Fatalf("merchant order id must be sticky: got %s", again)
	}

	byMerchant, err := repo.GetByMerchantOrderID("mo_first")
	if err != nil {
		t.Fatalf("get by merchant order id: %v", err)
	}
	if byMerchant.ID != "pi_pg_2" {
		t.Fatalf("unexpected intent by merchant id: %s", byMerchant.ID)
	}
}

func TestIntentRepository_PostgresConditionalStatusTransitions(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIntentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.Create(sampleIntent("pi_pg_3", now)); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if err := repo.UpdateStatus("pi_pg_3", domain.IntentStatusInitiated, nil); err != nil {
		t.Fatalf("pending->initiated: %v", err)
	}

	paidAt := now.Add(time.Minute)
	if err := repo.UpdateStatus("pi_pg_3", domain.IntentStatusPaid, &paidAt); err != nil {
		t.Fatalf("initiated->paid: %v", err)
	}

	// Терминальный статус не регрессирует.
	if err := repo.UpdateStatus("pi_pg_3", domain.IntentStatusFailed, nil); !errors.Is(err, domain.ErrIntentStateConflict) {
		t.Fatalf("expected ErrIntentStateConflict after paid, got %v", err)
	}

	got, err := repo.Get("pi_pg_3")
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if got.Status != domain.IntentStatusPaid {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected paid_at: %v", got.PaidAt)
	}
}

func TestIntentRepository_PostgresStockAdjustedSingleWinner(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIntentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.Create(sampleIntent("pi_pg_4", now)); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	first, err := repo.TryMarkStockAdjusted("pi_pg_4")
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	second, err := repo.TryMarkStockAdjusted("pi_pg_4")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if !first || second {
		t.Fatalf("expected exactly one winner: first=%v second=%v", first, second)
	}
}

func TestIntentRepository_PostgresAttemptsAppendOnly(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIntentRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.Create(sampleIntent("pi_pg_5", now)); err != nil {
		t.Fatalf("create intent: %v", err)
	}

	for i, status := range []domain.AttemptStatus{domain.AttemptStatusFailed, domain.AttemptStatusInitiated} {
		attempt := domain.Attempt{
			ID:          "att_" + string(rune('a'+i)),
			Provider:    "cardpay",
			AmountMinor: 54800,
			Status:      status,
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}
		if err := repo.AppendAttempt("pi_pg_5", attempt); err != nil {
			t.Fatalf("append attempt %d: %v", i, err)
		}
	}

	got, err := repo.Get("pi_pg_5")
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if len(got.Attempts) != 2 {
		t.Fatalf("unexpected attempts count: %d", len(got.Attempts))
	}
	if got.Attempts[0].Status != domain.AttemptStatusFailed || got.Attempts[1].Status != domain.AttemptStatusInitiated {
		t.Fatalf("attempts out of order: %+v", got.Attempts)
	}
}
