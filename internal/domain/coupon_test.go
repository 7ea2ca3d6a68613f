package domain

import (
	"testing"
	"time"
)

func TestCouponDiscount(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	flat100 := Coupon{
		Code:             "FLAT100",
		Kind:             CouponKindFlat,
		Value:            10000,
		MinSubtotalMinor: 49900,
		ExpiresAt:        now.Add(24 * time.Hour),
		Active:           true,
	}

	tests := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{name: "below minimum", coupon: flat100, subtotal: 40000, want: 0},
		{name: "at minimum", coupon: flat100, subtotal: 49900, want: 10000},
		{name: "above minimum", coupon: flat100, subtotal: 60000, want: 10000},
		{
			name: "expired",
			coupon: Coupon{
				Code: "OLD", Kind: CouponKindFlat, Value: 5000,
				ExpiresAt: now.Add(-time.Hour), Active: true,
			},
			subtotal: 60000,
			want:     0,
		},
		{
			name: "inactive",
			coupon: Coupon{
				Code: "OFF", Kind: CouponKindFlat, Value: 5000,
				ExpiresAt: now.Add(time.Hour), Active: false,
			},
			subtotal: 60000,
			want:     0,
		},
		{
			name: "percent",
			coupon: Coupon{
				Code: "SAVE10", Kind: CouponKindPercent, Value: 10,
				ExpiresAt: now.Add(time.Hour), Active: true,
			},
			subtotal: 60000,
			want:     6000,
		},
		{
			name: "flat clamped to subtotal",
			coupon: Coupon{
				Code: "HUGE", Kind: CouponKindFlat, Value: 999999,
				ExpiresAt: now.Add(time.Hour), Active: true,
			},
			subtotal: 1500,
			want:     1500,
		},
		{
			name: "unknown kind",
			coupon: Coupon{
				Code: "WAT", Kind: CouponKind("bogus"), Value: 10,
				ExpiresAt: now.Add(time.Hour), Active: true,
			},
			subtotal: 60000,
			want:     0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.coupon.Discount(tc.subtotal, now)
			if got != tc.want {
				t.Fatalf("discount = %d, want %d", got, tc.want)
			}
			if got > tc.subtotal {
				t.Fatalf("discount %d exceeds subtotal %d", got, tc.subtotal)
			}
		})
	}
}
