package memory

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestCouponRepository_CaseInsensitiveCode(t *testing.T) {
	repo := NewCouponRepository()

	err := repo.Upsert(domain.Coupon{
		Code:   " flat100 ",
		Kind:   domain.CouponKindFlat,
		Value:  10000,
		Active: true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Get("FLAT100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != "FLAT100" || got.Value != 10000 {
		t.Fatalf("unexpected coupon: %+v", got)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestTimelineRepository_AppendOrder(t *testing.T) {
	repo := NewTimelineRepository()

	for _, eventType := range []string{"intent.created", "intent.initiated", "intent.paid"} {
		if err := repo.Append(domain.TimelineEvent{AggregateID: "pi_1", Type: eventType}); err != nil {
			t.Fatalf("append %s: %v", eventType, err)
		}
	}

	events, err := repo.List("pi_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("unexpected events count: %d", len(events))
	}
	if events[0].Type != "intent.created" || events[2].Type != "intent.paid" {
		t.Fatalf("events out of order: %+v", events)
	}

	empty, err := repo.List("pi_other")
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no events, got %d", len(empty))
	}
}
