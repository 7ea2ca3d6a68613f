package app

import (
	"context"
	"testing"
)

func TestNewDependencies_MemoryMode(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	if deps.Store != nil {
		t.Error("memory mode must not open postgres store")
	}
	if deps.Intents == nil || deps.Orders == nil || deps.Catalog == nil {
		t.Error("repositories must be initialized")
	}
	if deps.Checkout == nil || deps.Confirm == nil || deps.Materializer == nil {
		t.Error("services must be initialized")
	}
	if deps.Idempotency == nil || deps.Outbox == nil || deps.Timeline == nil {
		t.Error("supporting repositories must be initialized")
	}
}

func TestBuildGateways_CODAlwaysRegistered(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	if len(deps.Gateways) != 1 {
		t.Fatalf("expected only cod gateway, got %d", len(deps.Gateways))
	}
	if deps.Gateways[0].Provider() != "cod" {
		t.Errorf("unexpected provider: %s", deps.Gateways[0].Provider())
	}
}

func TestBuildGateways_AllProviders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cardpay.BaseURL = "https://cardpay.example.com"
	cfg.UPI.BaseURL = "https://upi.example.com"

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	providers := map[string]bool{}
	for _, g := range deps.Gateways {
		providers[g.Provider()] = true
	}
	for _, want := range []string{"cod", "cardpay", "upi"} {
		if !providers[want] {
			t.Errorf("provider %s is not registered", want)
		}
	}
}
