package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCheckoutMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newCheckoutMetricsWithRegisterer(registry)

	m.RecordIntentCreated()
	m.RecordIntentCreated()
	m.RecordOrderMaterialized()
	m.RecordStockDecrement()
	m.RecordReconciliationFlagged()

	if got := testutil.ToFloat64(m.intentsCreated); got != 2 {
		t.Fatalf("intents created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ordersMaterialized); got != 1 {
		t.Fatalf("orders materialized = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.stockDecrements); got != 1 {
		t.Fatalf("stock decrements = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reconciliations); got != 1 {
		t.Fatalf("reconciliations = %v, want 1", got)
	}
}

func TestCheckoutMetrics_ConfirmationLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newCheckoutMetricsWithRegisterer(registry)

	m.RecordConfirmation("webhook", "completed")
	m.RecordConfirmation("webhook", "completed")
	m.RecordConfirmation("poll", "pending")

	if got := testutil.ToFloat64(m.confirmations.WithLabelValues("webhook", "completed")); got != 2 {
		t.Fatalf("webhook/completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.confirmations.WithLabelValues("poll", "pending")); got != 1 {
		t.Fatalf("poll/pending = %v, want 1", got)
	}
}

func TestCheckoutMetrics_DoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(registry)
	second := newCheckoutMetricsWithRegisterer(registry)

	// Повторная регистрация переиспользует существующие коллекторы.
	first.RecordIntentCreated()
	second.RecordIntentCreated()

	if got := testutil.ToFloat64(first.intentsCreated); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestCheckoutMetrics_GatewayCallDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newCheckoutMetricsWithRegisterer(registry)

	m.RecordGatewayCall("cardpay", "create", 120*time.Millisecond)
	m.RecordGatewayCall("cardpay", "status", 40*time.Millisecond)

	count := testutil.CollectAndCount(m.gatewayCallDuration)
	if count != 2 {
		t.Fatalf("expected 2 histogram series, got %d", count)
	}
}
