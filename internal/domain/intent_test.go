package domain

import (
	"errors"
	"testing"
	"time"
)

func validIntent() PaymentIntent {
	now := time.Now().UTC()
	return PaymentIntent{
		ID:       "pi-1",
		Provider: "cardpay",
		Currency: "INR",
		Items: []OrderLine{
			{ProductID: "prod-1", Qty: 2},
		},
		Customer: CustomerInfo{Name: "Test", Email: "test@example.com", Phone: "+911234567890"},
		Shipping: ShippingAddress{
			Address:    "12 MG Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560001",
			Phone:      "+911234567890",
		},
		Totals:    Totals{SubtotalMinor: 20000, ShippingFeeMinor: 5000, TotalMinor: 25000},
		Status:    IntentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestIntentStatusTerminal(t *testing.T) {
	tests := []struct {
		status IntentStatus
		want   bool
	}{
		{IntentStatusPending, false},
		{IntentStatusInitiated, false},
		{IntentStatusPaid, true},
		{IntentStatusFailed, true},
		{IntentStatusExpired, true},
	}

	for _, tc := range tests {
		if got := tc.status.Terminal(); got != tc.want {
			t.Fatalf("status %q terminal=%v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestTransitionSources(t *testing.T) {
	if got := TransitionSources(IntentStatusInitiated); len(got) != 1 || got[0] != IntentStatusPending {
		t.Fatalf("initiated sources = %v, want [pending]", got)
	}

	for _, target := range []IntentStatus{IntentStatusPaid, IntentStatusFailed, IntentStatusExpired} {
		sources := TransitionSources(target)
		if len(sources) != 2 {
			t.Fatalf("%q sources = %v, want pending+initiated", target, sources)
		}
		for _, s := range sources {
			if s.Terminal() {
				t.Fatalf("terminal status %q listed as transition source for %q", s, target)
			}
		}
	}

	// Обратный переход в pending запрещён из любого статуса.
	if got := TransitionSources(IntentStatusPending); got != nil {
		t.Fatalf("pending must be unreachable, got sources %v", got)
	}
}

func TestIntentValidateInvariants(t *testing.T) {
	intent := validIntent()
	if errs := intent.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("valid intent produced errors: %v", errs)
	}

	broken := validIntent()
	broken.Items = nil
	broken.Totals.TotalMinor = 0
	broken.Shipping.City = ""

	errs := broken.ValidateInvariants()
	if len(errs) != 3 {
		t.Fatalf("expected 3 invariant errors, got %d: %v", len(errs), errs)
	}

	var addrErr *ShippingAddressError
	found := false
	for _, err := range errs {
		if errors.As(err, &addrErr) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ShippingAddressError among invariant errors")
	}
	if len(addrErr.Missing) != 1 || addrErr.Missing[0] != "city" {
		t.Fatalf("expected missing [city], got %v", addrErr.Missing)
	}
}

func TestShippingAddressMissingFields(t *testing.T) {
	var empty ShippingAddress
	missing := empty.MissingFields()
	if len(missing) != 5 {
		t.Fatalf("expected 5 missing fields, got %v", missing)
	}

	full := ShippingAddress{Address: "a", City: "b", State: "c", PostalCode: "d", Phone: "e"}
	if got := full.MissingFields(); len(got) != 0 {
		t.Fatalf("expected no missing fields, got %v", got)
	}
}

func TestInsufficientStockErrorIs(t *testing.T) {
	err := &InsufficientStockError{Shortfalls: []StockShortfall{
		{ProductID: "prod-1", Requested: 3, Available: 1},
	}}

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("expected errors.Is match with ErrInsufficientStock")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error text")
	}
}
