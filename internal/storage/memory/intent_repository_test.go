package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func testIntent(id string) domain.PaymentIntent {
	now := time.Now().UTC()
	return domain.PaymentIntent{
		ID:       id,
		Provider: "cardpay",
		Currency: "INR",
		Items: []domain.OrderLine{
			{ProductID: "p1", Qty: 2, DisplayName: "Ceramic Mug", UnitPriceMinor: 24900},
		},
		Totals:    domain.Totals{SubtotalMinor: 49800, ShippingFeeMinor: 5000, TotalMinor: 54800},
		Status:    domain.IntentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestIntentRepository_CreateAndGet(t *testing.T) {
	repo := NewIntentRepository()

	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(testIntent("pi_1")); !errors.Is(err, domain.ErrIntentVersionConflict) {
		t.Fatalf("expected ErrIntentVersionConflict on duplicate, got %v", err)
	}

	got, err := repo.Get("pi_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.IntentStatusPending || got.Totals.TotalMinor != 54800 {
		t.Fatalf("unexpected intent: %+v", got)
	}

	if _, err := repo.Get("pi_missing"); !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestIntentRepository_CloneOnReturn(t *testing.T) {
	repo := NewIntentRepository()
	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := repo.Get("pi_1")
	got.Items[0].Qty = 99
	got.Status = domain.IntentStatusPaid

	fresh, _ := repo.Get("pi_1")
	if fresh.Items[0].Qty != 2 {
		t.Fatalf("stored items must not be mutable through returned copy: qty=%d", fresh.Items[0].Qty)
	}
	if fresh.Status != domain.IntentStatusPending {
		t.Fatalf("stored status must not be mutable: %s", fresh.Status)
	}
}

func TestIntentRepository_MerchantOrderIDSticky(t *testing.T) {
	repo := NewIntentRepository()
	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := repo.AssignMerchantOrderID("pi_1", "mo_1")
	if err != nil || first != "mo_1" {
		t.Fatalf("first assign: %s, %v", first, err)
	}
	second, err := repo.AssignMerchantOrderID("pi_1", "mo_2")
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if second != "mo_1" {
		t.Fatalf("merchant order id must be sticky, got %s", second)
	}

	byMerchant, err := repo.GetByMerchantOrderID("mo_1")
	if err != nil || byMerchant.ID != "pi_1" {
		t.Fatalf("get by merchant: %+v, %v", byMerchant, err)
	}
}

func TestIntentRepository_UpdateStatusTransitions(t *testing.T) {
	repo := NewIntentRepository()
	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateStatus("pi_1", domain.IntentStatusInitiated, nil); err != nil {
		t.Fatalf("pending->initiated: %v", err)
	}

	paidAt := time.Now().UTC()
	if err := repo.UpdateStatus("pi_1", domain.IntentStatusPaid, &paidAt); err != nil {
		t.Fatalf("initiated->paid: %v", err)
	}

	if err := repo.UpdateStatus("pi_1", domain.IntentStatusFailed, nil); !errors.Is(err, domain.ErrIntentStateConflict) {
		t.Fatalf("terminal status must not regress, got %v", err)
	}

	got, _ := repo.Get("pi_1")
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected paid_at: %v", got.PaidAt)
	}
}

func TestIntentRepository_TryMarkStockAdjustedSingleWinner(t *testing.T) {
	repo := NewIntentRepository()
	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const goroutines = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			won, err := repo.TryMarkStockAdjusted("pi_1")
			if err != nil {
				t.Errorf("mark stock adjusted: %v", err)
				return
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestIntentRepository_AppendAttemptKeepsOrder(t *testing.T) {
	repo := NewIntentRepository()
	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, id := range []string{"att_1", "att_2", "att_3"} {
		if err := repo.AppendAttempt("pi_1", domain.Attempt{ID: id, Status: domain.AttemptStatusInitiated}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	got, _ := repo.Get("pi_1")
	if len(got.Attempts) != 3 {
		t.Fatalf("unexpected attempts count: %d", len(got.Attempts))
	}
	for i, want := range []string{"att_1", "att_2", "att_3"} {
		if got.Attempts[i].ID != want {
			t.Fatalf("attempts out of order at %d: %s", i, got.Attempts[i].ID)
		}
	}
}

func TestIntentRepository_MarkReconciliation(t *testing.T) {
	repo := NewIntentRepository()
	if err := repo.Create(testIntent("pi_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkReconciliation("pi_1", "completed after failed"); err != nil {
		t.Fatalf("mark reconciliation: %v", err)
	}

	got, _ := repo.Get("pi_1")
	if !got.NeedsReconciliation || got.ReconciliationNote != "completed after failed" {
		t.Fatalf("unexpected reconciliation state: %+v", got)
	}
}
