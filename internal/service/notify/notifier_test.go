package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestSendOrderConfirmation(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	notifier := NewNotifier(Config{Host: "smtp.example.com", Port: 587, From: "shop@example.com"})
	notifier.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	order := domain.Order{
		ID:       "ORD-01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Currency: "INR",
		Customer: domain.CustomerInfo{Name: "Asha"},
		Items:    []domain.OrderItem{{DisplayName: "Ceramic Mug", Qty: 2}},
		Totals:   domain.Totals{TotalMinor: 54800},
	}

	if err := notifier.SendOrderConfirmation(context.Background(), order, "asha@example.com"); err != nil {
		t.Fatalf("SendOrderConfirmation failed: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("unexpected smtp addr %s", gotAddr)
	}
	if gotFrom != "shop@example.com" || len(gotTo) != 1 || gotTo[0] != "asha@example.com" {
		t.Errorf("unexpected envelope %s -> %v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "ORD-01ARZ3NDEKTSV4RRFFQ69G5FAV") {
		t.Error("message must contain the order id")
	}
	if !strings.Contains(body, "548.00 INR") {
		t.Errorf("message must contain the paid amount, got:\n%s", body)
	}
	if !strings.Contains(body, "Ceramic Mug x2") {
		t.Error("message must list order items")
	}
}

func TestSendOrderConfirmationEmptyRecipient(t *testing.T) {
	notifier := NewNotifier(Config{})
	notifier.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("send must not be called for empty recipient")
		return nil
	}

	if err := notifier.SendOrderConfirmation(context.Background(), domain.Order{}, ""); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}
