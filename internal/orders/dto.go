package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/types"
)

// PaymentDetails ties a submitted order to the gateway round trip.
type PaymentDetails struct {
	Method           enums.PaymentMethod `json:"method,omitempty"`
	GatewayOrderID   string              `json:"razorpayOrderId" validate:"required,max=64"`
	GatewayPaymentID string              `json:"razorpayPaymentId" validate:"required,max=64"`
	Signature        string              `json:"razorpaySignature,omitempty" validate:"omitempty,hexadecimal,len=64"`
}

// SubmitInput is the full checkout payload sent after payment verification.
type SubmitInput struct {
	ShippingDetails types.ShippingDetails `json:"shippingDetails" validate:"required"`
	Items           types.OrderItems      `json:"items" validate:"required,min=1,max=50,dive"`
	PaymentDetails  PaymentDetails        `json:"paymentDetails" validate:"required"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	GiftDetails     *types.GiftDetails    `json:"giftDetails,omitempty" validate:"omitempty"`
}

// SubmitResult reports whether Submit wrote a new order or replayed an existing one.
type SubmitResult struct {
	Order   *models.Order
	Created bool
}

// OrderDraft is the order payload known before payment starts.
type OrderDraft struct {
	ShippingDetails types.ShippingDetails `json:"shippingDetails" validate:"required"`
	Items           types.OrderItems      `json:"items" validate:"required,min=1,max=50,dive"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	GiftDetails     *types.GiftDetails    `json:"giftDetails,omitempty" validate:"omitempty"`
}

// PendingInput creates the pending order that shadows a gateway order.
type PendingInput struct {
	GatewayOrderID string
	Amount         int64
	Currency       enums.Currency
	Draft          OrderDraft
}

// ListFilters narrows the admin order listing.
type ListFilters struct {
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}

// OrderList is one page of orders, newest first.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// OrderDTO is the storefront's wire shape for an order.
type OrderDTO struct {
	ID               uuid.UUID             `json:"id"`
	OrderNumber      string                `json:"orderNumber"`
	Status           enums.OrderStatus     `json:"status"`
	ShippingDetails  types.ShippingDetails `json:"shippingDetails"`
	Items            types.OrderItems      `json:"items"`
	PaymentMethod    enums.PaymentMethod   `json:"paymentMethod"`
	GatewayOrderID   string                `json:"razorpayOrderId"`
	GatewayPaymentID *string               `json:"razorpayPaymentId,omitempty"`
	TotalAmount      decimal.Decimal       `json:"totalAmount"`
	Currency         enums.Currency        `json:"currency"`
	GiftDetails      *types.GiftDetails    `json:"giftDetails,omitempty"`
	ConfirmedAt      *time.Time            `json:"confirmedAt,omitempty"`
	CancelledAt      *time.Time            `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
}

func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	return &OrderDTO{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		Status:           o.Status,
		ShippingDetails:  o.ShippingDetails,
		Items:            o.Items,
		PaymentMethod:    o.PaymentMethod,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		TotalAmount:      o.TotalAmount,
		Currency:         o.Currency,
		GiftDetails:      o.GiftDetails,
		ConfirmedAt:      o.ConfirmedAt,
		CancelledAt:      o.CancelledAt,
		CreatedAt:        o.CreatedAt,
	}
}

// OrderSummaryDTO is the order view for callers that have not proven they own
// the order. It carries no shipping, gift or payment identifiers.
type OrderSummaryDTO struct {
	OrderNumber string            `json:"orderNumber"`
	Status      enums.OrderStatus `json:"status"`
	Items       types.OrderItems  `json:"items"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Currency    enums.Currency    `json:"currency"`
	ConfirmedAt *time.Time        `json:"confirmedAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func SummaryFromModel(o *models.Order) *OrderSummaryDTO {
	if o == nil {
		return nil
	}
	return &OrderSummaryDTO{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		ConfirmedAt: o.ConfirmedAt,
		CreatedAt:   o.CreatedAt,
	}
}

// OrderListDTO is OrderList rendered for the admin panel.
type OrderListDTO struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

func ListFromModel(list *OrderList) *OrderListDTO {
	out := &OrderListDTO{Orders: []OrderDTO{}}
	if list == nil {
		return out
	}
	for i := range list.Orders {
		out.Orders = append(out.Orders, *FromModel(&list.Orders[i]))
	}
	out.NextCursor = list.NextCursor
	return out
}
