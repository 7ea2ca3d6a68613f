package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func testOrder() domain.Order {
	return domain.Order{
		ID:              "ORD-01ARZ3NDEKTSV4RRFFQ69G5FAV",
		PaymentProvider: "cardpay",
		Customer:        domain.CustomerInfo{Name: "Asha", Email: "asha@example.com"},
		Shipping: domain.ShippingAddress{
			Address:    "12 MG Road",
			City:       "Pune",
			State:      "MH",
			PostalCode: "411001",
			Phone:      "+91-900000001",
		},
		Items:  []domain.OrderItem{{ProductID: "p1", DisplayName: "Ceramic Mug", Qty: 2, UnitPriceMinor: 24900}},
		Totals: domain.Totals{TotalMinor: 54800},
	}
}

func TestPusherPush(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/shipments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Token apikey" {
			t.Errorf("unexpected authorization %s", r.Header.Get("Authorization"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["amount_due"].(float64) != 0 {
			t.Errorf("prepaid order must carry zero amount_due, got %v", body["amount_due"])
		}
		w.Write([]byte(`{"carrier_name":"ShipFast","carrier_order_id":"sf_1","tracking_number":"TRK9"}`))
	}))
	defer server.Close()

	pusher := NewPusher(Config{BaseURL: server.URL, APIKey: "apikey"})

	info, err := pusher.Push(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if info.CarrierOrderID != "sf_1" || info.TrackingNumber != "TRK9" {
		t.Errorf("carrier ids not recorded: %+v", info)
	}
	if info.PushStatus != domain.ShippingPushDone {
		t.Errorf("expected push status %s, got %s", domain.ShippingPushDone, info.PushStatus)
	}
}

func TestPusherCODCarriesAmountDue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["amount_due"].(float64) != 54800 {
			t.Errorf("cod order must carry the total as amount_due, got %v", body["amount_due"])
		}
		w.Write([]byte(`{"carrier_name":"ShipFast","carrier_order_id":"sf_2"}`))
	}))
	defer server.Close()

	pusher := NewPusher(Config{BaseURL: server.URL})

	order := testOrder()
	order.PaymentProvider = "cod"
	if _, err := pusher.Push(context.Background(), order); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
}

func TestPusherServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pusher := NewPusher(Config{BaseURL: server.URL})

	if _, err := pusher.Push(context.Background(), testOrder()); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
