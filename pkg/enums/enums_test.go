package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tt.from, tt.to, tt.ok, got)
		}
	}
	if !OrderStatusDelivered.IsTerminal() || !OrderStatusCancelled.IsTerminal() {
		t.Fatal("delivered and cancelled must be terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	got, err := ParseOrderStatus("shipped")
	if err != nil || got != OrderStatusShipped {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
}

func TestParseCurrencyNormalizes(t *testing.T) {
	got, err := ParseCurrency(" inr ")
	if err != nil || got != CurrencyINR {
		t.Fatalf("unexpected currency %q %v", got, err)
	}
	if _, err := ParseCurrency("XYZ"); err == nil {
		t.Fatal("expected unknown currency to fail")
	}
}

func TestOutboxEventAggregates(t *testing.T) {
	for _, event := range []OutboxEventType{EventOrderConfirmed, EventOrderStatusChanged, EventOrderCancelled} {
		if !event.IsValid() || event.Aggregate() != AggregateOrder {
			t.Fatalf("%s should belong to the order aggregate", event)
		}
	}
	if OutboxEventType("order_shipped").IsValid() || OutboxEventType("order_shipped").Aggregate() != "" {
		t.Fatal("unknown events have no aggregate")
	}
}

func TestParseFoldsOnlyWhereConfigured(t *testing.T) {
	if got, err := ParsePaymentMethod(" UPI "); err != nil || got != PaymentMethodUPI {
		t.Fatalf("unexpected payment method %q %v", got, err)
	}
	if got, err := ParseOrderStatus("Shipped"); err != nil || got != OrderStatusShipped {
		t.Fatalf("unexpected order status %q %v", got, err)
	}
	if _, err := ParseUserRole("Admin"); err == nil {
		t.Fatal("roles are matched exactly")
	}
	if UserRole("").IsValid() {
		t.Fatal("empty role must not be valid")
	}
}
