package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petalpost/storefront-backend/pkg/enums"
)

// OrderConfirmedEvent is emitted once per order when payment is confirmed.
type OrderConfirmedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         enums.Currency  `json:"currency"`
	ItemCount        int             `json:"item_count"`
	CustomerEmail    string          `json:"customer_email"`
	DeliveryDate     *time.Time      `json:"delivery_date,omitempty"`
	// Source is submit, verify or reconcile.
	Source      string    `json:"source"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// OrderStatusChangedEvent follows admin fulfilment transitions.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled by an admin or by expiry.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Subject returns the order the event is about. Resolve checks it against the
// row's aggregate_id.
func (e OrderConfirmedEvent) Subject() uuid.UUID { return e.OrderID }

func (e OrderStatusChangedEvent) Subject() uuid.UUID { return e.OrderID }

func (e OrderCancelledEvent) Subject() uuid.UUID { return e.OrderID }
